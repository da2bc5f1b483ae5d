// Package kafka publishes index events to Kafka as JSON messages.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a crawler.Publisher over a kafka.Writer. The writer carries
// no default topic; each message names its own.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// New dials nothing until the first write.
func New(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	return newWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}), nil
}

func newWithWriter(w messageWriter) *Publisher {
	return &Publisher{writer: w, now: time.Now}
}

// Publish marshals payload to JSON and writes it to topic. Messages are
// keyed by the event URL when the payload is a crawler.PageIndexedEvent so
// events for one page land on one partition.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("kafka topic is required")
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.NewString()
	key := id
	if evt, ok := payload.(crawler.PageIndexedEvent); ok {
		if evt.EventID != "" {
			id = evt.EventID
		}
		key = evt.URL
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("kafka write: %w", err)
	}
	return id, nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ crawler.Publisher = (*Publisher)(nil)
