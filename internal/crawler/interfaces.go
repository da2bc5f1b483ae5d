package crawler

import (
	"context"
	"io"
	"time"
)

// WorkQueue is the durable at-least-once queue shared by frontier and index
// writer instances.
type WorkQueue interface {
	// Enqueue adds a work item to the queue.
	Enqueue(ctx context.Context, item WorkItem) error
	// Claim waits up to maxWait for a delivery. The boolean is false when
	// nothing became available within the wait window.
	Claim(ctx context.Context, maxWait time.Duration) (Claim, bool, error)
	// Acknowledge permanently removes a claimed delivery.
	Acknowledge(ctx context.Context, token string) error
}

// IndexStore persists postings keyed by (keyword, url).
type IndexStore interface {
	Upsert(ctx context.Context, posting Posting) error
	QueryByKeyword(ctx context.Context, keyword string) ([]Posting, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes index events to a topic (Kafka or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// LinkGraph records the hyperlink edges discovered while crawling.
type LinkGraph interface {
	RecordLinks(ctx context.Context, from string, to []string) error
}

// Hasher computes digests for object naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces claim tokens and event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
