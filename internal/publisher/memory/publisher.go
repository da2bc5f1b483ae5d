// Package memory records published events in process. It backs the
// "memory" events backend and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

// Message is one recorded publish.
type Message struct {
	Topic   string
	Payload any
}

// Publisher is a crawler.Publisher that keeps every message.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

var _ crawler.Publisher = (*Publisher)(nil)
