// Package cmd defines and implements the CLI commands for the findata
// executable.
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/config"
	"github.com/somonox/findata-crawler/internal/fetch"
	collyfetcher "github.com/somonox/findata-crawler/internal/fetcher/colly"
	"github.com/somonox/findata-crawler/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findata",
		Short: "Resilient crawler for financial news, SEC filings, and prices.",
		Long: `findata collects financial market data from public sources: news
articles via GDELT, 13F holdings via SEC EDGAR, and daily price history.
Every HTTP request goes through a disk-backed cache with conditional
revalidation, bounded retry, and per-domain rate limiting.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus FINDATA_* env vars)")

	cmd.AddCommand(newNewsCmd())
	cmd.AddCommand(newFilingsCmd())
	cmd.AddCommand(newPricesCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newFetcher builds the full resilient fetch stack: Colly at the bottom,
// conditional cache in the middle, bounded retry on top.
func newFetcher() (fetch.Fetcher, error) {
	store, err := fetch.NewStore(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("init cache store: %w", err)
	}

	raw := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	client := fetch.NewClient(fetch.ClientConfig{
		Raw:   raw,
		Store: store,
		TTL:   cfg.CacheTTL(),
	}, logger)

	return fetch.NewRetrier(client, cfg.Fetch.MaxAttempts, cfg.BackoffBase(), logger), nil
}

func defaultHeaders(userAgent string) http.Header {
	h := http.Header{}
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return h
}
