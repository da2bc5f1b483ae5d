// Package memory provides an in-process WorkQueue with claim/acknowledge
// semantics for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/nexus-search/internal/clock/system"
	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/id/uuid"
	"github.com/JakeFAU/nexus-search/internal/queue"
)

const defaultVisibilityTimeout = 30 * time.Second

type inflight struct {
	body     []byte
	deadline time.Time
}

// Queue holds pending payloads and in-flight claims. A claim that is not
// acknowledged before its visibility timeout becomes claimable again.
type Queue struct {
	mu         sync.Mutex
	pending    [][]byte
	inflight   map[string]inflight
	notify     chan struct{}
	closed     bool
	visibility time.Duration
	clock      crawler.Clock
	ids        crawler.IDGenerator
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for visibility deadlines.
func WithClock(c crawler.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithIDGenerator overrides how claim tokens are minted.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(q *Queue) { q.ids = ids }
}

// NewQueue constructs a queue. visibility <= 0 uses a 30s timeout.
func NewQueue(visibility time.Duration, opts ...Option) *Queue {
	if visibility <= 0 {
		visibility = defaultVisibilityTimeout
	}
	q := &Queue{
		inflight:   make(map[string]inflight),
		notify:     make(chan struct{}),
		visibility: visibility,
		clock:      system.New(),
		ids:        uuid.New(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends the work item to the pending list.
func (q *Queue) Enqueue(ctx context.Context, item crawler.WorkItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	body, err := crawler.EncodeWorkItem(item)
	if err != nil {
		return err
	}
	return q.EnqueueRaw(ctx, body)
}

// EnqueueRaw appends an already encoded payload. Tests use it to inject
// malformed bodies.
func (q *Queue) EnqueueRaw(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	q.pending = append(q.pending, append([]byte(nil), body...))
	q.wakeLocked()
	return nil
}

// Claim waits up to maxWait for a payload. Expired claims are returned to the
// pending list before each attempt.
func (q *Queue) Claim(ctx context.Context, maxWait time.Duration) (crawler.Claim, bool, error) {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return crawler.Claim{}, false, queue.ErrClosed
		}
		q.requeueExpiredLocked()
		if len(q.pending) > 0 {
			claim, err := q.claimLocked()
			q.mu.Unlock()
			if err != nil {
				return crawler.Claim{}, false, err
			}
			return claim, true, nil
		}
		notify := q.notify
		nextExpiry := q.nextExpiryLocked()
		q.mu.Unlock()

		var expiry <-chan time.Time
		var expiryTimer *time.Timer
		if !nextExpiry.IsZero() {
			expiryTimer = time.NewTimer(nextExpiry.Sub(q.clock.Now()))
			expiry = expiryTimer.C
		}

		woke := true
		select {
		case <-ctx.Done():
			woke = false
		case <-timer.C:
			woke = false
		case <-notify:
		case <-expiry:
		}
		if expiryTimer != nil {
			expiryTimer.Stop()
		}
		if !woke {
			if err := ctx.Err(); err != nil {
				return crawler.Claim{}, false, fmt.Errorf("claim canceled: %w", err)
			}
			return crawler.Claim{}, false, nil
		}
	}
}

// Acknowledge deletes the in-flight claim identified by token.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("acknowledge canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[token]; !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownClaim, token)
	}
	delete(q.inflight, token)
	return nil
}

// Pending reports how many payloads are waiting to be claimed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports how many claims are outstanding.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Close wakes blocked claimers and rejects further operations. Safe to call twice.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}

func (q *Queue) claimLocked() (crawler.Claim, error) {
	token, err := q.ids.NewID()
	if err != nil {
		return crawler.Claim{}, fmt.Errorf("claim token: %w", err)
	}
	body := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inflight[token] = inflight{body: body, deadline: q.clock.Now().Add(q.visibility)}
	return crawler.Claim{Token: token, Body: append([]byte(nil), body...)}, nil
}

func (q *Queue) requeueExpiredLocked() {
	now := q.clock.Now()
	for token, msg := range q.inflight {
		if now.Before(msg.deadline) {
			continue
		}
		delete(q.inflight, token)
		q.pending = append(q.pending, msg.body)
	}
}

func (q *Queue) nextExpiryLocked() time.Time {
	var next time.Time
	for _, msg := range q.inflight {
		if next.IsZero() || msg.deadline.Before(next) {
			next = msg.deadline
		}
	}
	return next
}

func (q *Queue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

var _ crawler.WorkQueue = (*Queue)(nil)
