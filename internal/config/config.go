// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Headless HeadlessConfig `mapstructure:"headless"`
	GDELT    GDELTConfig    `mapstructure:"gdelt"`
	EDGAR    EDGARConfig    `mapstructure:"edgar"`
	Prices   PricesConfig   `mapstructure:"prices"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig configures the HTTP client and retry behavior.
type FetchConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
}

// CacheConfig controls the disk-backed response cache.
type CacheConfig struct {
	Dir        string `mapstructure:"dir"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// CrawlConfig governs the bounded crawl scheduler.
type CrawlConfig struct {
	Concurrency    int      `mapstructure:"concurrency"`
	ParseWorkers   int      `mapstructure:"parse_workers"`
	DomainQPS      float64  `mapstructure:"domain_qps"`
	DomainBurst    int      `mapstructure:"domain_burst"`
	DropTextless   bool     `mapstructure:"drop_textless"`
	DefaultDomains []string `mapstructure:"default_domains"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinHTMLBytes  int  `mapstructure:"min_html_bytes"`
}

// GDELTConfig configures article discovery.
type GDELTConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	MaxRecords int    `mapstructure:"max_records"`
}

// EDGARConfig configures SEC filing access. SEC requires a contact-info
// user agent on every request.
type EDGARConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	DataBaseURL string `mapstructure:"data_base_url"`
	UserAgent   string `mapstructure:"user_agent"`
	CUSIPFile   string `mapstructure:"cusip_file"`
}

// PricesConfig configures daily price history retrieval.
type PricesConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Interval string `mapstructure:"interval"`
}

// StorageConfig sets paths and content types for snapshot persistence.
// GCSBucket takes precedence; LocalDir selects the filesystem store; both
// empty disables archiving.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN       string `mapstructure:"dsn"`
	TableName string `mapstructure:"table_name"`
}

// PubSubConfig holds metadata for run completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SinkConfig controls local JSON dumps of crawl output.
type SinkConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. path may be empty to rely on
// defaults and FINDATA_* environment variables alone.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FINDATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.user_agent", "findata-crawler/1.0 (+https://github.com/somonox/findata-crawler)")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial_ms", 1000)
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("crawl.concurrency", 50)
	v.SetDefault("crawl.parse_workers", 0)
	v.SetDefault("crawl.domain_qps", 2.0)
	v.SetDefault("crawl.domain_burst", 1)
	v.SetDefault("crawl.drop_textless", true)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.min_html_bytes", 2000)
	v.SetDefault("gdelt.max_records", 250)
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.data_base_url", "https://data.sec.gov")
	v.SetDefault("edgar.user_agent", "findata-crawler admin@somonox.dev")
	v.SetDefault("prices.interval", "1d")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.table_name", "articles")
	v.SetDefault("sink.dir", "data/dumps")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Cache.TTLMinutes < 0 {
		return fmt.Errorf("cache.ttl_minutes must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when a topic is configured")
	}
	return nil
}

// CacheTTL converts the configured TTL into a duration; zero disables the
// freshness cutoff for stale fallback.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// FetchTimeout is the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffBase is the initial retry delay; it doubles per attempt.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}
