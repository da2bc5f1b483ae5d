// Package pubsub implements crawler.WorkQueue on Google Cloud Pub/Sub. Each
// queue is a topic plus one shared pull subscription; the subscription's ack
// deadline is the visibility timeout.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsubapi "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/queue"
)

// Config identifies the topic and subscription backing one queue.
type Config struct {
	ProjectID    string
	Topic        string
	Subscription string
}

func (c Config) topicPath() string {
	return fmt.Sprintf("projects/%s/topics/%s", c.ProjectID, c.Topic)
}

func (c Config) subscriptionPath() string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", c.ProjectID, c.Subscription)
}

// Validate reports missing identifiers.
func (c Config) Validate() error {
	switch {
	case c.ProjectID == "":
		return errors.New("pubsub project id is required")
	case c.Topic == "":
		return errors.New("pubsub topic is required")
	case c.Subscription == "":
		return errors.New("pubsub subscription is required")
	}
	return nil
}

type publisherClient interface {
	Publish(ctx context.Context, req *pubsubpb.PublishRequest, opts ...gax.CallOption) (*pubsubpb.PublishResponse, error)
	Close() error
}

type subscriberClient interface {
	Pull(ctx context.Context, req *pubsubpb.PullRequest, opts ...gax.CallOption) (*pubsubpb.PullResponse, error)
	Acknowledge(ctx context.Context, req *pubsubpb.AcknowledgeRequest, opts ...gax.CallOption) error
	Close() error
}

// Queue is a Pub/Sub backed work queue.
type Queue struct {
	pub   publisherClient
	sub   subscriberClient
	topic string
	subID string
}

// Open dials Pub/Sub using application default credentials unless opts say
// otherwise.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pub, err := pubsubapi.NewPublisherClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub publisher: %w", err)
	}
	sub, err := pubsubapi.NewSubscriberClient(ctx, opts...)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create pubsub subscriber: %w", err)
	}
	return newQueue(pub, sub, cfg), nil
}

func newQueue(pub publisherClient, sub subscriberClient, cfg Config) *Queue {
	return &Queue{
		pub:   pub,
		sub:   sub,
		topic: cfg.topicPath(),
		subID: cfg.subscriptionPath(),
	}
}

// Enqueue publishes the encoded work item.
func (q *Queue) Enqueue(ctx context.Context, item crawler.WorkItem) error {
	body, err := crawler.EncodeWorkItem(item)
	if err != nil {
		return err
	}
	resp, err := q.pub.Publish(ctx, &pubsubpb.PublishRequest{
		Topic:    q.topic,
		Messages: []*pubsubpb.PubsubMessage{{Data: body}},
	})
	if err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	if len(resp.GetMessageIds()) == 0 {
		return errors.New("pubsub publish returned no message id")
	}
	return nil
}

// Claim pulls at most one message, waiting up to maxWait. A pull that times
// out is reported as empty.
func (q *Queue) Claim(ctx context.Context, maxWait time.Duration) (crawler.Claim, bool, error) {
	pullCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	resp, err := q.sub.Pull(pullCtx, &pubsubpb.PullRequest{
		Subscription: q.subID,
		MaxMessages:  1,
	})
	if err != nil {
		if ctx.Err() != nil {
			return crawler.Claim{}, false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
			return crawler.Claim{}, false, nil
		}
		return crawler.Claim{}, false, fmt.Errorf("pubsub pull: %w", err)
	}
	msgs := resp.GetReceivedMessages()
	if len(msgs) == 0 {
		return crawler.Claim{}, false, nil
	}
	msg := msgs[0]
	return crawler.Claim{Token: msg.GetAckId(), Body: msg.GetMessage().GetData()}, true, nil
}

// Acknowledge acks the delivery. Pub/Sub does not report stale ack ids, so
// an expired token is silently accepted.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if token == "" {
		return queue.ErrUnknownClaim
	}
	if err := q.sub.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: q.subID,
		AckIds:       []string{token},
	}); err != nil {
		return fmt.Errorf("pubsub acknowledge: %w", err)
	}
	return nil
}

// Close releases both clients.
func (q *Queue) Close() error {
	return errors.Join(q.pub.Close(), q.sub.Close())
}

var _ crawler.WorkQueue = (*Queue)(nil)
