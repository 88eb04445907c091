package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawl.Concurrency != 50 {
		t.Fatalf("expected default concurrency 50, got %d", cfg.Crawl.Concurrency)
	}
	if got := cfg.CacheTTL(); got != 60*time.Minute {
		t.Fatalf("expected default cache TTL 60m, got %v", got)
	}
	if got := cfg.BackoffBase(); got != time.Second {
		t.Fatalf("expected default backoff base 1s, got %v", got)
	}
	if cfg.EDGAR.DataBaseURL != "https://data.sec.gov" {
		t.Fatalf("unexpected edgar data base url %q", cfg.EDGAR.DataBaseURL)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
fetch:
  user_agent: findata-test
  timeout_seconds: 45
  max_attempts: 5
  backoff_initial_ms: 250
cache:
  dir: /tmp/cache
  ttl_minutes: 0
crawl:
  concurrency: 6
  domain_qps: 0.5
  drop_textless: false
  default_domains: ["reuters.com", "apnews.com"]
gdelt:
  max_records: 75
storage:
  gcs_bucket: bucket
  prefix: raw
pubsub:
  project_id: proj
  topic_name: runs
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.UserAgent != "findata-test" || cfg.Fetch.MaxAttempts != 5 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if got := cfg.CacheTTL(); got != 0 {
		t.Fatalf("expected unlimited cache TTL, got %v", got)
	}
	if cfg.Crawl.Concurrency != 6 || cfg.Crawl.DropTextless {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if len(cfg.Crawl.DefaultDomains) != 2 || cfg.Crawl.DefaultDomains[0] != "reuters.com" {
		t.Fatalf("expected domain list to load: %+v", cfg.Crawl.DefaultDomains)
	}
	if cfg.GDELT.MaxRecords != 75 {
		t.Fatalf("expected gdelt override, got %d", cfg.GDELT.MaxRecords)
	}
	if cfg.PubSub.ProjectID != "proj" || cfg.PubSub.TopicName != "runs" {
		t.Fatalf("expected pubsub overrides: %+v", cfg.PubSub)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.BackoffBase(); got != 250*time.Millisecond {
		t.Fatalf("expected backoff base 250ms, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Fetch:  FetchConfig{TimeoutSeconds: 10, MaxAttempts: 3},
		Crawl:  CrawlConfig{Concurrency: 1},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Fetch.TimeoutSeconds = 0
				return c
			}(),
			want: "fetch.timeout_seconds",
		},
		{
			name: "invalid attempts",
			cfg: func() Config {
				c := base
				c.Fetch.MaxAttempts = 0
				return c
			}(),
			want: "fetch.max_attempts",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Crawl.Concurrency = 0
				return c
			}(),
			want: "crawl.concurrency",
		},
		{
			name: "negative ttl",
			cfg: func() Config {
				c := base
				c.Cache.TTLMinutes = -1
				return c
			}(),
			want: "cache.ttl_minutes",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "topic without project",
			cfg: func() Config {
				c := base
				c.PubSub.TopicName = "runs"
				return c
			}(),
			want: "pubsub.project_id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
