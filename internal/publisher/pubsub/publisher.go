// Package pubsub publishes index events to Google Cloud Pub/Sub topics.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsubapi "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

type publisherClient interface {
	Publish(ctx context.Context, req *pubsubpb.PublishRequest, opts ...gax.CallOption) (*pubsubpb.PublishResponse, error)
	Close() error
}

// Publisher is a crawler.Publisher. The topic argument of Publish is a topic
// ID within the configured project.
type Publisher struct {
	client    publisherClient
	projectID string
}

// Open creates a publisher client for projectID.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsubapi.NewPublisherClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub publisher: %w", err)
	}
	return &Publisher{client: client, projectID: projectID}, nil
}

// Publish marshals payload to JSON and publishes it, returning the server
// assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("pubsub topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsubpb.PubsubMessage{Data: data}
	if evt, ok := payload.(crawler.PageIndexedEvent); ok {
		msg.Attributes = map[string]string{"event_id": evt.EventID, "url": evt.URL}
	}

	resp, err := p.client.Publish(ctx, &pubsubpb.PublishRequest{
		Topic:    fmt.Sprintf("projects/%s/topics/%s", p.projectID, topic),
		Messages: []*pubsubpb.PubsubMessage{msg},
	})
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	ids := resp.GetMessageIds()
	if len(ids) == 0 {
		return "", errors.New("publish returned no message id")
	}
	return ids[0], nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ crawler.Publisher = (*Publisher)(nil)
