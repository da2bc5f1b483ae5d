// Package config loads and validates nexus configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the selector keys.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPubSub   = "pubsub"
	BackendPostgres = "postgres"
	BackendKafka    = "kafka"
	BackendNeo4j    = "neo4j"
	BackendGCS      = "gcs"
)

// Config captures every knob loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Index    IndexConfig    `mapstructure:"index"`
	Frontier FrontierConfig `mapstructure:"frontier"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Events   EventsConfig   `mapstructure:"events"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the query API listener.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// QueueConfig selects the work queue. Name is the identity every process
// must share and has no default.
type QueueConfig struct {
	Backend           string        `mapstructure:"backend"`
	Name              string        `mapstructure:"name"`
	IndexName         string        `mapstructure:"index_name"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	Redis             RedisConfig   `mapstructure:"redis"`
	PubSub            PubSubConfig  `mapstructure:"pubsub"`
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Prefix       string        `mapstructure:"prefix"`
}

// PubSubConfig names the Pub/Sub resources behind the queues. The queue
// name is used as the topic and "<name>-sub" as the subscription unless
// overridden.
type PubSubConfig struct {
	ProjectID         string `mapstructure:"project_id"`
	Topic             string `mapstructure:"topic"`
	Subscription      string `mapstructure:"subscription"`
	IndexTopic        string `mapstructure:"index_topic"`
	IndexSubscription string `mapstructure:"index_subscription"`
}

// IndexConfig selects the posting store.
type IndexConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// FrontierConfig drives the spider.
type FrontierConfig struct {
	SeedURL         string        `mapstructure:"seed_url"`
	MaxPages        int           `mapstructure:"max_pages"`
	ClaimWait       time.Duration `mapstructure:"claim_wait"`
	EmptyBackoff    time.Duration `mapstructure:"empty_backoff"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// WorkerConfig drives the index writers.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	ClaimWait      time.Duration `mapstructure:"claim_wait"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff"`
	MaxPostings    int           `mapstructure:"max_postings"`
	UserAgent      string        `mapstructure:"user_agent"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxBodyBytes       int           `mapstructure:"max_body_bytes"`
}

// EventsConfig selects where PageIndexed events go.
type EventsConfig struct {
	Backend string      `mapstructure:"backend"`
	Topic   string      `mapstructure:"topic"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig lists the bootstrap brokers.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// GraphConfig selects the link graph sink.
type GraphConfig struct {
	Backend  string `mapstructure:"backend"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ArchiveConfig selects where raw pages are archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// Load builds a Config from a file plus NEXUS_* environment variables, then
// validates it. With an empty path, nexus.{yaml,json,toml} is looked up in
// the working directory, /etc/nexus and $HOME/.nexus, and may be absent.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nexus")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nexus/")
		v.AddConfigPath("$HOME/.nexus")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Every key gets a default, even an empty one, so AutomaticEnv can see it
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.name", "")
	v.SetDefault("queue.index_name", "")
	v.SetDefault("queue.visibility_timeout", 60*time.Second)
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.poll_interval", 250*time.Millisecond)
	v.SetDefault("queue.pubsub.project_id", "")
	v.SetDefault("queue.pubsub.topic", "")
	v.SetDefault("queue.pubsub.subscription", "")
	v.SetDefault("queue.pubsub.index_topic", "")
	v.SetDefault("queue.pubsub.index_subscription", "")

	v.SetDefault("index.backend", BackendMemory)
	v.SetDefault("index.postgres.dsn", "")
	v.SetDefault("index.postgres.table", "postings")
	v.SetDefault("index.postgres.max_conns", 10)
	v.SetDefault("index.postgres.min_conns", 0)
	v.SetDefault("index.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("index.postgres.ensure_schema", true)
	v.SetDefault("index.redis.addr", "localhost:6379")
	v.SetDefault("index.redis.password", "")
	v.SetDefault("index.redis.db", 0)
	v.SetDefault("index.redis.prefix", "nexus:index")

	v.SetDefault("frontier.seed_url", "")
	v.SetDefault("frontier.max_pages", 20)
	v.SetDefault("frontier.claim_wait", 2*time.Second)
	v.SetDefault("frontier.empty_backoff", 2*time.Second)
	v.SetDefault("frontier.politeness_delay", time.Second)
	v.SetDefault("frontier.user_agent", "Nexus-Bot/1.0")

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.claim_wait", 5*time.Second)
	v.SetDefault("worker.error_backoff", time.Second)
	v.SetDefault("worker.max_postings", 50)
	v.SetDefault("worker.user_agent", "Nexus-Worker/1.0")
	v.SetDefault("worker.rate_limit_rps", 2.0)
	v.SetDefault("worker.rate_limit_burst", 2)

	v.SetDefault("http.timeout", 5*time.Second)
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("http.max_body_bytes", 10<<20)

	v.SetDefault("events.backend", BackendNone)
	v.SetDefault("events.topic", "nexus.page-indexed")
	v.SetDefault("events.kafka.brokers", []string{})

	v.SetDefault("graph.backend", BackendNone)
	v.SetDefault("graph.uri", "neo4j://localhost:7687")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")

	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Queue.Name) == "" {
		return errors.New("queue.name is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("queue.visibility_timeout must be > 0")
	}

	if err := oneOf("queue.backend", c.Queue.Backend, BackendMemory, BackendRedis, BackendPubSub); err != nil {
		return err
	}
	if c.Queue.Backend == BackendPubSub && c.Queue.PubSub.ProjectID == "" {
		return fmt.Errorf("queue.pubsub.project_id must be set for the pubsub backend")
	}
	if err := oneOf("index.backend", c.Index.Backend, BackendMemory, BackendPostgres, BackendRedis); err != nil {
		return err
	}
	if c.Index.Backend == BackendPostgres && c.Index.Postgres.DSN == "" {
		return fmt.Errorf("index.postgres.dsn must be set for the postgres backend")
	}
	if err := oneOf("events.backend", c.Events.Backend, BackendNone, BackendMemory, BackendKafka, BackendPubSub); err != nil {
		return err
	}
	if c.Events.Backend == BackendKafka && len(c.Events.Kafka.Brokers) == 0 {
		return fmt.Errorf("events.kafka.brokers must be set for the kafka backend")
	}
	if c.Events.Backend == BackendPubSub && c.Queue.PubSub.ProjectID == "" {
		return fmt.Errorf("queue.pubsub.project_id must be set for pubsub events")
	}
	if err := oneOf("graph.backend", c.Graph.Backend, BackendNone, BackendNeo4j); err != nil {
		return err
	}
	if err := oneOf("archive.backend", c.Archive.Backend, BackendNone, BackendMemory, BackendGCS); err != nil {
		return err
	}
	if c.Archive.Backend == BackendGCS && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set for the gcs backend")
	}
	return nil
}

// IndexQueueName returns the queue the index writers consume: the separate
// index queue when configured, otherwise the shared crawl queue.
func (c Config) IndexQueueName() string {
	if c.Queue.IndexName != "" {
		return c.Queue.IndexName
	}
	return c.Queue.Name
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}
