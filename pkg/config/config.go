// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Crawl, Wikipedia, Kafka, Postgres, Analytics, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CrawlConfig controls traversal bounds and the process-wide fetch budget.
type CrawlConfig struct {
	MaxDepth             int           `yaml:"maxDepth"`
	FanOut               int           `yaml:"fanOut"`
	MaxConcurrentFetches int64         `yaml:"maxConcurrentFetches"`
	FetchDelay           time.Duration `yaml:"fetchDelay"`
	FetchTimeout         time.Duration `yaml:"fetchTimeout"`
	// DepthAwareCache keys the article cache by (title, depth) instead of
	// title alone.
	DepthAwareCache bool `yaml:"depthAwareCache"`
}

// WikipediaConfig holds MediaWiki API client settings.
type WikipediaConfig struct {
	Language       string        `yaml:"language"`
	BaseURL        string        `yaml:"baseUrl"`
	UserAgent      string        `yaml:"userAgent"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	MaxLinkPages   int           `yaml:"maxLinkPages"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	BreakerFailure int           `yaml:"breakerFailureThreshold"`
	BreakerReset   time.Duration `yaml:"breakerResetTimeout"`
}

// Endpoint returns the api.php URL for the configured language, unless
// BaseURL overrides it.
func (w WikipediaConfig) Endpoint() string {
	if w.BaseURL != "" {
		return w.BaseURL
	}
	return fmt.Sprintf("https://%s.wikipedia.org/w/api.php", w.Language)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CrawlEvents string `yaml:"crawlEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// AnalyticsConfig controls crawl-event publishing and snapshotting.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotEnabled  bool          `yaml:"snapshotEnabled"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// RateLimitConfig controls per-client request limiting on the query API.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the crawl limits of the public service and
// local-development endpoints for everything else.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			RequestTimeout:  5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Crawl: CrawlConfig{
			MaxDepth:             3,
			FanOut:               5,
			MaxConcurrentFetches: 5,
			FetchDelay:           time.Second,
			FetchTimeout:         30 * time.Second,
		},
		Wikipedia: WikipediaConfig{
			Language:       "en",
			UserAgent:      "wikipedia_word_frequency_dictionary/1.0 (https://github.com/Adithya-Monish-Kumar-K/wordfreq)",
			RequestTimeout: 20 * time.Second,
			MaxLinkPages:   10,
			RetryAttempts:  3,
			RetryDelay:     200 * time.Millisecond,
			BreakerFailure: 5,
			BreakerReset:   30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "wordfreq-analytics",
			Topics: KafkaTopics{
				CrawlEvents: "wordfreq-crawl-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "wordfreq",
			User:            "wordfreq",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:          false,
			BufferSize:       10000,
			SnapshotEnabled:  false,
			SnapshotInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerWindow: 60,
			Window:            time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects settings the crawl engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Crawl.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("crawl.maxDepth must be >= 0, got %d", c.Crawl.MaxDepth))
	}
	if c.Crawl.FanOut <= 0 {
		errs = append(errs, fmt.Errorf("crawl.fanOut must be > 0, got %d", c.Crawl.FanOut))
	}
	if c.Crawl.MaxConcurrentFetches <= 0 {
		errs = append(errs, fmt.Errorf("crawl.maxConcurrentFetches must be > 0, got %d", c.Crawl.MaxConcurrentFetches))
	}
	if c.Crawl.FetchDelay < 0 {
		errs = append(errs, fmt.Errorf("crawl.fetchDelay must not be negative, got %v", c.Crawl.FetchDelay))
	}
	if c.Wikipedia.Language == "" && c.Wikipedia.BaseURL == "" {
		errs = append(errs, errors.New("wikipedia.language or wikipedia.baseUrl is required"))
	}
	if c.Wikipedia.MaxLinkPages <= 0 {
		errs = append(errs, fmt.Errorf("wikipedia.maxLinkPages must be > 0, got %d", c.Wikipedia.MaxLinkPages))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads WF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WF_CRAWL_MAX_DEPTH"); v != "" {
		if depth, err := strconv.Atoi(v); err == nil {
			cfg.Crawl.MaxDepth = depth
		}
	}
	if v := os.Getenv("WF_CRAWL_MAX_CONCURRENT_FETCHES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Crawl.MaxConcurrentFetches = n
		}
	}
	if v := os.Getenv("WF_CRAWL_FETCH_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawl.FetchDelay = d
		}
	}
	if v := os.Getenv("WF_CRAWL_DEPTH_AWARE_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Crawl.DepthAwareCache = b
		}
	}
	if v := os.Getenv("WF_WIKIPEDIA_LANGUAGE"); v != "" {
		cfg.Wikipedia.Language = v
	}
	if v := os.Getenv("WF_WIKIPEDIA_BASE_URL"); v != "" {
		cfg.Wikipedia.BaseURL = v
	}
	if v := os.Getenv("WF_WIKIPEDIA_USER_AGENT"); v != "" {
		cfg.Wikipedia.UserAgent = v
	}
	if v := os.Getenv("WF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("WF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("WF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("WF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("WF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("WF_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("WF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WF_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
