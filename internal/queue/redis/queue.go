// Package redis implements a WorkQueue on Redis. Pending payloads live in a
// list, claimed ones in a sorted set scored by their visibility deadline, and
// claim bodies in a hash keyed by token. Claim and acknowledge run as Lua
// scripts so each is atomic across competing workers.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/nexus-search/internal/clock/system"
	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/id/uuid"
	"github.com/JakeFAU/nexus-search/internal/queue"
)

const (
	defaultVisibilityTimeout = 30 * time.Second
	defaultPollInterval      = 200 * time.Millisecond
)

var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, tok in ipairs(expired) do
	local body = redis.call('HGET', KEYS[3], tok)
	if body then
		redis.call('RPUSH', KEYS[1], body)
	end
	redis.call('ZREM', KEYS[2], tok)
	redis.call('HDEL', KEYS[3], tok)
end
local body = redis.call('LPOP', KEYS[1])
if not body then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[3], body)
return body
`)

var ackScript = redis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return removed
`)

// Config names the queue and tunes its timings.
type Config struct {
	Name              string
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
}

// Queue is a Redis-backed crawler.WorkQueue.
type Queue struct {
	client       redis.UniversalClient
	pendingKey   string
	inflightKey  string
	payloadsKey  string
	visibility   time.Duration
	pollInterval time.Duration
	clock        crawler.Clock
	ids          crawler.IDGenerator
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

// New builds a queue on an existing client.
func New(client redis.UniversalClient, cfg Config, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("queue name is required")
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = defaultVisibilityTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	q := &Queue{
		client:       client,
		pendingKey:   cfg.Name + ":pending",
		inflightKey:  cfg.Name + ":inflight",
		payloadsKey:  cfg.Name + ":payloads",
		visibility:   cfg.VisibilityTimeout,
		pollInterval: cfg.PollInterval,
		clock:        system.New(),
		ids:          uuid.New(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue appends the encoded work item to the pending list.
func (q *Queue) Enqueue(ctx context.Context, item crawler.WorkItem) error {
	body, err := crawler.EncodeWorkItem(item)
	if err != nil {
		return err
	}
	return q.EnqueueRaw(ctx, body)
}

// EnqueueRaw appends an already encoded payload.
func (q *Queue) EnqueueRaw(ctx context.Context, body []byte) error {
	if err := q.client.RPush(ctx, q.pendingKey, body).Err(); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

// Claim polls every PollInterval until a payload is claimed or maxWait passes.
func (q *Queue) Claim(ctx context.Context, maxWait time.Duration) (crawler.Claim, bool, error) {
	deadline := time.Now().Add(maxWait)
	for {
		claim, ok, err := q.tryClaim(ctx)
		if err != nil || ok {
			return claim, ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return crawler.Claim{}, false, nil
		}
		wait := min(q.pollInterval, remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.Claim{}, false, fmt.Errorf("claim canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (q *Queue) tryClaim(ctx context.Context) (crawler.Claim, bool, error) {
	token, err := q.ids.NewID()
	if err != nil {
		return crawler.Claim{}, false, fmt.Errorf("claim token: %w", err)
	}
	now := q.clock.Now()
	body, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey, q.inflightKey, q.payloadsKey},
		now.UnixMilli(), now.Add(q.visibility).UnixMilli(), token,
	).Text()
	if errors.Is(err, redis.Nil) {
		return crawler.Claim{}, false, nil
	}
	if err != nil {
		return crawler.Claim{}, false, fmt.Errorf("redis claim: %w", err)
	}
	return crawler.Claim{Token: token, Body: []byte(body)}, true, nil
}

// Acknowledge removes the claim. A token whose deadline already passed and
// was requeued by another claimer yields queue.ErrUnknownClaim.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	removed, err := ackScript.Run(ctx, q.client, []string{q.inflightKey, q.payloadsKey}, token).Int()
	if err != nil {
		return fmt.Errorf("redis acknowledge: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", queue.ErrUnknownClaim, token)
	}
	return nil
}

// Pending reports the length of the pending list.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pending: %w", err)
	}
	return n, nil
}

// InFlight reports how many claims are outstanding.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.inflightKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis inflight: %w", err)
	}
	return n, nil
}

var _ crawler.WorkQueue = (*Queue)(nil)
