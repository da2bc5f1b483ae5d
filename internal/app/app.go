// Package app builds the long-lived services a nexus command needs from
// configuration and owns their shutdown.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/api"
	"github.com/JakeFAU/nexus-search/internal/clock/system"
	"github.com/JakeFAU/nexus-search/internal/config"
	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/nexus-search/internal/fetcher/colly"
	"github.com/JakeFAU/nexus-search/internal/frontier"
	"github.com/JakeFAU/nexus-search/internal/graph"
	"github.com/JakeFAU/nexus-search/internal/hash/sha256"
	"github.com/JakeFAU/nexus-search/internal/id/uuid"
	"github.com/JakeFAU/nexus-search/internal/indexer"
	"github.com/JakeFAU/nexus-search/internal/policy/ratelimit"
	kafkapub "github.com/JakeFAU/nexus-search/internal/publisher/kafka"
	mempub "github.com/JakeFAU/nexus-search/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/nexus-search/internal/publisher/pubsub"
	memqueue "github.com/JakeFAU/nexus-search/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/nexus-search/internal/queue/pubsub"
	redisqueue "github.com/JakeFAU/nexus-search/internal/queue/redis"
	"github.com/JakeFAU/nexus-search/internal/search"
	"github.com/JakeFAU/nexus-search/internal/storage/gcs"
	memstore "github.com/JakeFAU/nexus-search/internal/storage/memory"
	"github.com/JakeFAU/nexus-search/internal/storage/postgres"
	redisstore "github.com/JakeFAU/nexus-search/internal/storage/redis"
)

type closer struct {
	name string
	fn   func() error
}

// App holds the shared services for one process.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	crawlQueue crawler.WorkQueue
	indexQueue crawler.WorkQueue
	store      crawler.IndexStore
	archive    crawler.BlobStore
	publisher  crawler.Publisher
	graph      crawler.LinkGraph
	checks     map[string]api.ReadinessCheck
	closers    []closer
}

// New connects every configured backend. On error, anything already opened
// is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		checks: make(map[string]api.ReadinessCheck),
	}
	steps := []func(context.Context) error{
		a.buildQueues,
		a.buildIndexStore,
		a.buildArchive,
		a.buildPublisher,
		a.buildGraph,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	logger.Info("application services initialized",
		zap.String("queue", cfg.Queue.Backend),
		zap.String("index", cfg.Index.Backend),
		zap.String("events", cfg.Events.Backend),
		zap.String("graph", cfg.Graph.Backend),
		zap.String("archive", cfg.Archive.Backend),
	)
	return a, nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) redisClient(name string, rc config.RedisConfig) redis.UniversalClient {
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	a.onClose(name, client.Close)
	a.checks[name] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return client
}

func (a *App) buildQueues(ctx context.Context) error {
	qc := a.cfg.Queue
	switch qc.Backend {
	case config.BackendMemory:
		a.crawlQueue = memqueue.NewQueue(qc.VisibilityTimeout)
		a.indexQueue = a.crawlQueue
		if qc.IndexName != "" {
			a.indexQueue = memqueue.NewQueue(qc.VisibilityTimeout)
		}
		return nil
	case config.BackendRedis:
		client := a.redisClient("queue-redis", qc.Redis)
		open := func(name string) (crawler.WorkQueue, error) {
			q, err := redisqueue.New(client, redisqueue.Config{
				Name:              name,
				VisibilityTimeout: qc.VisibilityTimeout,
				PollInterval:      qc.Redis.PollInterval,
			})
			if err != nil {
				return nil, err
			}
			return q, nil
		}
		return a.openQueues(open)
	case config.BackendPubSub:
		open := func(name string) (crawler.WorkQueue, error) {
			topic, sub := pubsubNames(qc, name)
			q, err := pubsubqueue.Open(ctx, pubsubqueue.Config{
				ProjectID:    qc.PubSub.ProjectID,
				Topic:        topic,
				Subscription: sub,
			})
			if err != nil {
				return nil, err
			}
			a.onClose("pubsub-"+name, q.Close)
			return q, nil
		}
		return a.openQueues(open)
	}
	return fmt.Errorf("unknown queue backend %q", qc.Backend)
}

func (a *App) openQueues(open func(name string) (crawler.WorkQueue, error)) error {
	var err error
	if a.crawlQueue, err = open(a.cfg.Queue.Name); err != nil {
		return fmt.Errorf("open queue %s: %w", a.cfg.Queue.Name, err)
	}
	a.indexQueue = a.crawlQueue
	if a.cfg.Queue.IndexName != "" {
		if a.indexQueue, err = open(a.cfg.Queue.IndexName); err != nil {
			return fmt.Errorf("open index queue %s: %w", a.cfg.Queue.IndexName, err)
		}
	}
	return nil
}

// pubsubNames maps a queue name to its topic and subscription. Explicit
// settings win; otherwise the topic is the queue name and the subscription
// is "<topic>-sub".
func pubsubNames(qc config.QueueConfig, name string) (topic, sub string) {
	topic, sub = qc.PubSub.Topic, qc.PubSub.Subscription
	if name == qc.IndexName && qc.IndexName != "" {
		topic, sub = qc.PubSub.IndexTopic, qc.PubSub.IndexSubscription
	}
	if topic == "" {
		topic = name
	}
	if sub == "" {
		sub = topic + "-sub"
	}
	return topic, sub
}

func (a *App) buildIndexStore(ctx context.Context) error {
	ic := a.cfg.Index
	switch ic.Backend {
	case config.BackendMemory:
		a.store = memstore.NewIndexStore()
		return nil
	case config.BackendPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             ic.Postgres.DSN,
			Table:           ic.Postgres.Table,
			MaxConns:        ic.Postgres.MaxConns,
			MinConns:        ic.Postgres.MinConns,
			MaxConnLifetime: ic.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		a.onClose("postgres", func() error { store.Close(); return nil })
		a.checks["postgres"] = store.Ping
		if ic.Postgres.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		a.store = store
		return nil
	case config.BackendRedis:
		store, err := redisstore.New(a.redisClient("index-redis", ic.Redis), ic.Redis.Prefix)
		if err != nil {
			return err
		}
		a.store = store
		return nil
	}
	return fmt.Errorf("unknown index backend %q", ic.Backend)
}

func (a *App) buildArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.BackendNone:
		return nil
	case config.BackendMemory:
		a.archive = memstore.NewBlobStore()
		return nil
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return err
		}
		a.onClose("gcs", store.Close)
		a.archive = store
		return nil
	}
	return fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
}

func (a *App) buildPublisher(ctx context.Context) error {
	switch a.cfg.Events.Backend {
	case config.BackendNone:
		return nil
	case config.BackendMemory:
		a.publisher = mempub.New()
		return nil
	case config.BackendKafka:
		pub, err := kafkapub.New(a.cfg.Events.Kafka.Brokers)
		if err != nil {
			return err
		}
		a.onClose("kafka", pub.Close)
		a.publisher = pub
		return nil
	case config.BackendPubSub:
		pub, err := pubsubpub.Open(ctx, a.cfg.Queue.PubSub.ProjectID)
		if err != nil {
			return err
		}
		a.onClose("pubsub-events", pub.Close)
		a.publisher = pub
		return nil
	}
	return fmt.Errorf("unknown events backend %q", a.cfg.Events.Backend)
}

func (a *App) buildGraph(ctx context.Context) error {
	switch a.cfg.Graph.Backend {
	case config.BackendNone:
		return nil
	case config.BackendNeo4j:
		g, err := graph.Open(ctx, graph.Config{
			URI:      a.cfg.Graph.URI,
			Username: a.cfg.Graph.Username,
			Password: a.cfg.Graph.Password,
			Database: a.cfg.Graph.Database,
		}, a.logger)
		if err != nil {
			return err
		}
		a.onClose("neo4j", func() error { return g.Close(context.Background()) })
		a.graph = g
		return nil
	}
	return fmt.Errorf("unknown graph backend %q", a.cfg.Graph.Backend)
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// CrawlQueue is the queue the frontier consumes and feeds.
func (a *App) CrawlQueue() crawler.WorkQueue { return a.crawlQueue }

// IndexQueue is the queue index writers consume. It is the crawl queue
// unless queue.index_name is set.
func (a *App) IndexQueue() crawler.WorkQueue { return a.indexQueue }

// IndexStore returns the posting store.
func (a *App) IndexStore() crawler.IndexStore { return a.store }

// Archive returns the page archive, or nil when disabled.
func (a *App) Archive() crawler.BlobStore { return a.archive }

// Publisher returns the event publisher, or nil when disabled.
func (a *App) Publisher() crawler.Publisher { return a.publisher }

func (a *App) fetcher(userAgent string, opts ...collyfetcher.Option) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:          userAgent,
		Timeout:            a.cfg.HTTP.Timeout,
		InsecureSkipVerify: a.cfg.HTTP.InsecureSkipVerify,
		MaxBodyBytes:       a.cfg.HTTP.MaxBodyBytes,
	}, opts...)
}

// Frontier builds a spider over the crawl queue.
func (a *App) Frontier() *frontier.Frontier {
	fc := a.cfg.Frontier
	var opts []frontier.Option
	if a.cfg.Queue.IndexName != "" {
		opts = append(opts, frontier.WithIndexQueue(a.indexQueue))
	}
	if a.graph != nil {
		opts = append(opts, frontier.WithLinkGraph(a.graph))
	}
	return frontier.New(a.crawlQueue, a.fetcher(fc.UserAgent), frontier.Options{
		ClaimWait:       fc.ClaimWait,
		EmptyBackoff:    fc.EmptyBackoff,
		PolitenessDelay: fc.PolitenessDelay,
		UserAgent:       fc.UserAgent,
	}, a.logger, opts...)
}

// Writers builds worker.concurrency index writers sharing one rate-limited
// fetcher.
func (a *App) Writers() []*indexer.Writer {
	wc := a.cfg.Worker
	limiter := ratelimit.New(ratelimit.Config{RPS: wc.RateLimitRPS, Burst: wc.RateLimitBurst})
	fetcher := a.fetcher(wc.UserAgent, collyfetcher.WithLimiter(limiter))

	var opts []indexer.Option
	if a.archive != nil {
		opts = append(opts, indexer.WithArchive(a.archive, sha256.New()))
	}
	if a.publisher != nil {
		opts = append(opts, indexer.WithPublisher(a.publisher, uuid.New(), system.New()))
	}
	cfg := indexer.Config{
		ClaimWait:     wc.ClaimWait,
		ErrorBackoff:  wc.ErrorBackoff,
		MaxPostings:   wc.MaxPostings,
		UserAgent:     wc.UserAgent,
		ArchivePrefix: a.cfg.Archive.Prefix,
		EventTopic:    a.cfg.Events.Topic,
	}

	n := wc.Concurrency
	if n <= 0 {
		n = 1
	}
	writers := make([]*indexer.Writer, 0, n)
	for i := 0; i < n; i++ {
		logger := a.logger.With(zap.Int("writer", i))
		writers = append(writers, indexer.New(a.indexQueue, a.store, fetcher, cfg, logger, opts...))
	}
	return writers
}

// Dispatcher wraps the writers in a pool that submits to the index queue.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	writers := a.Writers()
	runners := make([]dispatcher.Runner, 0, len(writers))
	for _, w := range writers {
		runners = append(runners, w)
	}
	return dispatcher.New(a.indexQueue, runners, a.logger)
}

// Resolver builds the keyword query resolver.
func (a *App) Resolver() *search.Resolver {
	return search.NewResolver(a.store, a.logger)
}

// Server builds the HTTP API. URL submissions go to the crawl queue.
func (a *App) Server() *api.Server {
	opts := []api.Option{api.WithSubmitter(dispatcher.New(a.crawlQueue, nil, a.logger))}
	for name, check := range a.checks {
		opts = append(opts, api.WithReadinessCheck(name, check))
	}
	return api.NewServer(a.Resolver(), a.cfg, a.logger, opts...)
}

// Close shuts down every opened backend in reverse order and flushes the
// logger.
func (a *App) Close() {
	var errs []string
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, c.name)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.logger.Warn("shutdown finished with errors", zap.String("services", strings.Join(errs, ",")))
	}
	_ = a.logger.Sync()
}
