// Package frontier runs the crawl loop: claim a URL, skip it if this instance
// already fetched it, fetch it, push its outbound links back onto the queue
// and wait out the politeness delay.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/extractor"
	"github.com/JakeFAU/nexus-search/internal/metrics"
)

const (
	// DefaultUserAgent identifies crawl fetches.
	DefaultUserAgent = "Nexus-Bot/1.0"

	metricsRole = "frontier"
)

// ErrIdleLimit is returned by Start when Options.MaxIdlePolls consecutive
// polls came back empty or failed.
var ErrIdleLimit = errors.New("frontier idle poll limit reached")

// Options tunes the crawl loop.
type Options struct {
	ClaimWait       time.Duration
	EmptyBackoff    time.Duration
	PolitenessDelay time.Duration
	UserAgent       string
	// MaxIdlePolls bounds consecutive unproductive polls. Zero polls forever.
	MaxIdlePolls int
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		ClaimWait:       2 * time.Second,
		EmptyBackoff:    2 * time.Second,
		PolitenessDelay: time.Second,
		UserAgent:       DefaultUserAgent,
	}
}

// Stats summarizes one Start call.
type Stats struct {
	PagesCrawled  int
	LinksEnqueued int
	FetchFailures int
	Duplicates    int
	Malformed     int
}

// Frontier owns one crawl loop and its VisitedSet.
type Frontier struct {
	queue      crawler.WorkQueue
	fetcher    crawler.Fetcher
	indexQueue crawler.WorkQueue
	graph      crawler.LinkGraph
	visited    VisitedSet
	pauser     pauser
	opts       Options
	logger     *zap.Logger
}

// Option wires optional collaborators.
type Option func(*Frontier)

// WithIndexQueue forwards every crawled URL to q so index writers see every
// page, not only the ones they win from the shared queue.
func WithIndexQueue(q crawler.WorkQueue) Option {
	return func(f *Frontier) { f.indexQueue = q }
}

// WithLinkGraph records page -> outbound link edges in g.
func WithLinkGraph(g crawler.LinkGraph) Option {
	return func(f *Frontier) { f.graph = g }
}

// New constructs a Frontier. Zero-valued timings fall back to DefaultOptions.
func New(
	queue crawler.WorkQueue,
	fetcher crawler.Fetcher,
	opts Options,
	logger *zap.Logger,
	options ...Option,
) *Frontier {
	defaults := DefaultOptions()
	if opts.ClaimWait <= 0 {
		opts.ClaimWait = defaults.ClaimWait
	}
	if opts.EmptyBackoff <= 0 {
		opts.EmptyBackoff = defaults.EmptyBackoff
	}
	if opts.PolitenessDelay < 0 {
		opts.PolitenessDelay = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Frontier{
		queue:   queue,
		fetcher: fetcher,
		visited: NewVisitedSet(),
		pauser:  timerPauser{},
		opts:    opts,
		logger:  logger.Named("frontier"),
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Visited exposes the set of URLs this instance has fetched.
func (f *Frontier) Visited() VisitedSet {
	return f.visited
}

// Start enqueues seedURL (when non-empty) and crawls until maxPages pages
// have been processed. An empty queue is waited out, never treated as the
// end of the crawl. Start returns early only when ctx ends or the idle poll
// limit is hit.
func (f *Frontier) Start(ctx context.Context, seedURL string, maxPages int) (Stats, error) {
	var stats Stats

	if seed := strings.TrimSpace(seedURL); seed != "" {
		if normalized, err := crawler.NormalizeURL(seed); err == nil {
			seed = normalized
		}
		if err := f.queue.Enqueue(ctx, crawler.WorkItem{URL: seed}); err != nil {
			return stats, fmt.Errorf("enqueue seed: %w", err)
		}
		f.logger.Info("seed enqueued", zap.String("url", seed))
	}

	idle := 0
	for stats.PagesCrawled < maxPages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		claim, ok, err := f.queue.Claim(ctx, f.opts.ClaimWait)
		if err != nil || !ok {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			if err != nil {
				metrics.ObserveClaim(metricsRole, metrics.OutcomeFailed)
				f.logger.Warn("queue claim failed", zap.Error(err))
			} else {
				metrics.ObserveClaim(metricsRole, metrics.OutcomeEmpty)
				f.logger.Debug("queue empty, backing off", zap.Duration("backoff", f.opts.EmptyBackoff))
			}
			idle++
			if f.opts.MaxIdlePolls > 0 && idle >= f.opts.MaxIdlePolls {
				return stats, ErrIdleLimit
			}
			f.pauser.Pause(ctx, f.opts.EmptyBackoff)
			continue
		}
		idle = 0
		metrics.ObserveClaim(metricsRole, metrics.OutcomeSuccess)

		item, err := crawler.DecodeWorkItem(claim.Body)
		if errors.Is(err, crawler.ErrUncrawlableURL) {
			// Counted as a failed fetch.
			f.visited.Add(item.URL)
			stats.FetchFailures++
			metrics.ObserveFrontierPage(item.URL, metrics.OutcomeFailed, 0)
			f.logger.Warn("uncrawlable url dropped", zap.String("url", item.URL), zap.Error(err))
			f.acknowledge(ctx, claim.Token, item.URL)
			stats.PagesCrawled++
			continue
		}
		if err != nil {
			stats.Malformed++
			metrics.ObserveFrontierPage("", metrics.OutcomeMalformed, 0)
			f.logger.Warn("malformed work item left for redelivery", zap.Error(err))
			continue
		}
		pageURL := item.URL
		if normalized, err := crawler.NormalizeURL(pageURL); err == nil {
			pageURL = normalized
		}

		if !f.visited.Add(pageURL) {
			stats.Duplicates++
			metrics.ObserveFrontierPage(pageURL, metrics.OutcomeDuplicate, 0)
			f.acknowledge(ctx, claim.Token, pageURL)
			continue
		}

		f.crawl(ctx, pageURL, &stats)
		f.acknowledge(ctx, claim.Token, pageURL)

		if stats.PagesCrawled+1 < maxPages {
			f.pauser.Pause(ctx, f.opts.PolitenessDelay)
		}
		stats.PagesCrawled++
	}

	f.logger.Info("crawl finished",
		zap.Int("pages", stats.PagesCrawled),
		zap.Int("links_enqueued", stats.LinksEnqueued),
		zap.Int("fetch_failures", stats.FetchFailures),
		zap.Int("duplicates", stats.Duplicates),
	)
	return stats, nil
}

func (f *Frontier) crawl(ctx context.Context, pageURL string, stats *Stats) {
	logger := f.logger.With(zap.String("url", pageURL))

	resp, err := f.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     pageURL,
		Headers: http.Header{"User-Agent": {f.opts.UserAgent}},
	})
	if err != nil {
		stats.FetchFailures++
		metrics.ObserveFrontierPage(pageURL, metrics.OutcomeFailed, 0)
		logger.Warn("fetch failed", zap.Error(err))
		return
	}
	if !resp.OK() {
		stats.FetchFailures++
		metrics.ObserveFrontierPage(pageURL, metrics.OutcomeSkipped, len(resp.Body))
		logger.Info("non-success status, no links followed", zap.Int("status", resp.StatusCode))
		return
	}
	metrics.ObserveFrontierPage(pageURL, metrics.OutcomeSuccess, len(resp.Body))

	base := pageURL
	if resp.URL != "" {
		base = resp.URL
	}
	links, err := extractor.ExtractLinks(string(resp.Body), base)
	if err != nil {
		logger.Warn("link extraction failed", zap.Error(err))
	}

	fresh := make([]string, 0, len(links))
	for _, link := range links {
		if f.visited.Contains(link) {
			continue
		}
		if err := f.queue.Enqueue(ctx, crawler.WorkItem{URL: link}); err != nil {
			logger.Warn("enqueue link failed", zap.String("link", link), zap.Error(err))
			continue
		}
		fresh = append(fresh, link)
	}
	stats.LinksEnqueued += len(fresh)
	metrics.ObserveLinksEnqueued(len(fresh))
	logger.Debug("page crawled", zap.Int("links", len(links)), zap.Int("enqueued", len(fresh)))

	if f.graph != nil && len(links) > 0 {
		if err := f.graph.RecordLinks(ctx, pageURL, links); err != nil {
			logger.Warn("record link graph failed", zap.Error(err))
		}
	}
	f.forwardForIndexing(ctx, pageURL)
}

// forwardForIndexing hands a successfully fetched page to index writers.
func (f *Frontier) forwardForIndexing(ctx context.Context, pageURL string) {
	if f.indexQueue == nil {
		return
	}
	if err := f.indexQueue.Enqueue(ctx, crawler.WorkItem{URL: pageURL}); err != nil {
		f.logger.Warn("forward to index queue failed", zap.String("url", pageURL), zap.Error(err))
	}
}

func (f *Frontier) acknowledge(ctx context.Context, token, pageURL string) {
	if err := f.queue.Acknowledge(ctx, token); err != nil {
		f.logger.Warn("acknowledge failed", zap.String("url", pageURL), zap.Error(err))
	}
}
