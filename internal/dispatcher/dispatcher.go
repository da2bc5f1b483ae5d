// Package dispatcher runs a pool of index writers over one queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

// Runner is a blocking loop that returns when its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// Dispatcher fans queue work out to a pool of runners.
type Dispatcher struct {
	queue   crawler.WorkQueue
	runners []Runner
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue crawler.WorkQueue, runners []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, runners: runners, logger: logger.Named("dispatcher")}
}

// Size reports how many runners the pool holds.
func (d *Dispatcher) Size() int {
	return len(d.runners)
}

// Run starts every runner and blocks until the context finishes and all of
// them have returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, r := range d.runners {
		wg.Add(1)
		go func(id int, runner Runner) {
			defer wg.Done()
			err := runner.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				d.logger.Error("runner stopped", zap.Int("runner", id), zap.Error(err))
			}
		}(i, r)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue normalizes rawURL and submits it to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, rawURL string) (string, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil || !crawler.IsCrawlable(normalized) {
		return "", fmt.Errorf("%w: %q", crawler.ErrMalformedWorkItem, rawURL)
	}
	if err := d.queue.Enqueue(ctx, crawler.WorkItem{URL: normalized}); err != nil {
		return "", fmt.Errorf("queue enqueue: %w", err)
	}
	return normalized, nil
}
