// Package indexer implements the index writer loop: claim a URL, fetch it,
// score its text and upsert one posting per kept term.
package indexer

import (
	"bytes"
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
	"github.com/JakeFAU/nexus-search/internal/scoring"
)

const (
	// DefaultUserAgent identifies index fetches.
	DefaultUserAgent = "Nexus-Worker/1.0"
	// DefaultMaxPostings caps successful upserts per page.
	DefaultMaxPostings = 50

	archiveContentType = "text/html; charset=utf-8"
	metricsRole        = "indexer"
)

// Config tunes a Writer.
type Config struct {
	ClaimWait    time.Duration
	ErrorBackoff time.Duration
	MaxPostings  int
	UserAgent    string
	// ArchivePrefix is prepended to archived page paths.
	ArchivePrefix string
	// EventTopic names the topic PageIndexed events go to.
	EventTopic string
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		ClaimWait:     5 * time.Second,
		ErrorBackoff:  time.Second,
		MaxPostings:   DefaultMaxPostings,
		UserAgent:     DefaultUserAgent,
		ArchivePrefix: "pages",
		EventTopic:    "nexus.page-indexed",
	}
}

// Writer consumes work items and writes postings to the index store.
type Writer struct {
	queue     crawler.WorkQueue
	store     crawler.IndexStore
	fetcher   crawler.Fetcher
	blobStore crawler.BlobStore
	hasher    crawler.Hasher
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	pauser    pauser
	cfg       Config
	logger    *zap.Logger
}

// Option wires optional collaborators.
type Option func(*Writer)

// WithArchive stores each indexed page's raw HTML, named by the hash of its URL.
func WithArchive(store crawler.BlobStore, hasher crawler.Hasher) Option {
	return func(w *Writer) {
		w.blobStore = store
		w.hasher = hasher
	}
}

// WithPublisher emits a PageIndexedEvent after each page. ids and clock
// stamp the event.
func WithPublisher(p crawler.Publisher, ids crawler.IDGenerator, clock crawler.Clock) Option {
	return func(w *Writer) {
		w.publisher = p
		w.ids = ids
		w.clock = clock
	}
}

// New constructs a Writer. Zero-valued settings fall back to DefaultConfig.
func New(
	queue crawler.WorkQueue,
	store crawler.IndexStore,
	fetcher crawler.Fetcher,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Writer {
	defaults := DefaultConfig()
	if cfg.ClaimWait <= 0 {
		cfg.ClaimWait = defaults.ClaimWait
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if cfg.MaxPostings <= 0 {
		cfg.MaxPostings = defaults.MaxPostings
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = defaults.ArchivePrefix
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = defaults.EventTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		queue:   queue,
		store:   store,
		fetcher: fetcher,
		pauser:  timerPauser{},
		cfg:     cfg,
		logger:  logger.Named("indexer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run claims and processes one work item at a time until ctx ends, then
// returns ctx.Err(). Per-item failures never stop the loop.
func (w *Writer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.step(ctx)
	}
}

func (w *Writer) step(ctx context.Context) {
	claim, ok, err := w.queue.Claim(ctx, w.cfg.ClaimWait)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ObserveClaim(metricsRole, metrics.OutcomeFailed)
		w.logger.Warn("queue claim failed", zap.Error(err))
		w.pauser.Pause(ctx, w.cfg.ErrorBackoff)
		return
	}
	if !ok {
		// The bounded claim wait is the only throttle on an idle queue.
		metrics.ObserveClaim(metricsRole, metrics.OutcomeEmpty)
		return
	}
	metrics.ObserveClaim(metricsRole, metrics.OutcomeSuccess)
	metrics.IncActiveWriters()
	defer metrics.DecActiveWriters()

	item, err := crawler.DecodeWorkItem(claim.Body)
	if errors.Is(err, crawler.ErrUncrawlableURL) {
		metrics.ObserveIndexPage(item.URL, metrics.OutcomeSkipped, 0)
		w.logger.Warn("uncrawlable url dropped", zap.String("url", item.URL), zap.Error(err))
		if err := w.queue.Acknowledge(ctx, claim.Token); err != nil {
			w.logger.Warn("acknowledge failed", zap.String("url", item.URL), zap.Error(err))
		}
		return
	}
	if err != nil {
		metrics.ObserveIndexPage("", metrics.OutcomeMalformed, 0)
		w.logger.Warn("malformed work item left for redelivery", zap.Error(err))
		return
	}

	if !w.indexPage(ctx, item.URL) {
		return
	}
	if err := w.queue.Acknowledge(ctx, claim.Token); err != nil {
		w.logger.Warn("acknowledge failed", zap.String("url", item.URL), zap.Error(err))
	}
}

// indexPage processes one URL and reports whether its claim should be
// acknowledged. Fetch, parse and transient status failures return false so
// the queue redelivers the item.
func (w *Writer) indexPage(ctx context.Context, pageURL string) bool {
	logger := w.logger.With(zap.String("url", pageURL))

	resp, err := w.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     pageURL,
		Headers: http.Header{"User-Agent": {w.cfg.UserAgent}},
	})
	if err != nil {
		metrics.ObserveIndexPage(pageURL, metrics.OutcomeFailed, 0)
		logger.Warn("fetch failed, leaving for redelivery", zap.Error(err))
		return false
	}
	if resp.Transient() {
		metrics.ObserveIndexPage(pageURL, metrics.OutcomeFailed, len(resp.Body))
		logger.Warn("transient status, leaving for redelivery", zap.Int("status", resp.StatusCode))
		return false
	}
	if !resp.OK() {
		metrics.ObserveIndexPage(pageURL, metrics.OutcomeSkipped, len(resp.Body))
		logger.Info("nothing to index", zap.Int("status", resp.StatusCode))
		return true
	}

	doc, err := extractor.ParseDocument(pageURL, resp.Body)
	if err != nil {
		metrics.ObserveIndexPage(pageURL, metrics.OutcomeFailed, len(resp.Body))
		logger.Warn("parse failed, leaving for redelivery", zap.Error(err))
		return false
	}

	written, failed := w.writePostings(ctx, pageURL, doc.Title, scoring.Score(doc.RawText))
	metrics.ObservePostings(written, failed)
	metrics.ObserveIndexPage(pageURL, metrics.OutcomeSuccess, len(resp.Body))

	archiveURI := w.archive(ctx, pageURL, resp.Body)
	w.publish(ctx, crawler.PageIndexedEvent{
		URL:        pageURL,
		Title:      doc.Title,
		Postings:   written,
		Failed:     failed,
		ArchiveURI: archiveURI,
	})

	logger.Info("page indexed",
		zap.String("title", doc.Title),
		zap.Int("postings", written),
		zap.Int("failed", failed),
	)
	return true
}

// writePostings upserts one posting per term until MaxPostings succeed.
// A failed upsert is logged and skipped.
func (w *Writer) writePostings(
	ctx context.Context,
	pageURL string,
	title string,
	terms []crawler.TermFrequency,
) (written int, failed int) {
	for _, tf := range terms {
		if written >= w.cfg.MaxPostings {
			break
		}
		posting := crawler.Posting{
			Keyword: tf.Term,
			URL:     pageURL,
			Title:   title,
			Score:   tf.Frequency,
		}
		if err := w.store.Upsert(ctx, posting); err != nil {
			failed++
			w.logger.Warn("posting upsert failed",
				zap.String("url", pageURL),
				zap.String("keyword", tf.Term),
				zap.Error(err),
			)
			continue
		}
		written++
	}
	return written, failed
}

func (w *Writer) archive(ctx context.Context, pageURL string, body []byte) string {
	if w.blobStore == nil || w.hasher == nil {
		return ""
	}
	name, err := w.hasher.Hash([]byte(pageURL))
	if err != nil {
		w.logger.Warn("hash page url failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	path := name + ".html"
	if prefix := strings.Trim(w.cfg.ArchivePrefix, "/"); prefix != "" {
		path = fmt.Sprintf("%s/%s", prefix, path)
	}
	uri, err := w.blobStore.PutObject(ctx, path, archiveContentType, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("archive page failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Writer) publish(ctx context.Context, event crawler.PageIndexedEvent) {
	if w.publisher == nil {
		return
	}
	if w.ids != nil {
		id, err := w.ids.NewID()
		if err != nil {
			w.logger.Warn("event id generation failed", zap.Error(err))
		}
		event.EventID = id
	}
	if w.clock != nil {
		event.IndexedAt = w.clock.Now()
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.EventTopic, event); err != nil {
		w.logger.Warn("publish page indexed event failed", zap.String("url", event.URL), zap.Error(err))
	}
}
