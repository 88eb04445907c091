package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newNewsCmd() *cobra.Command {
	var (
		keyword    string
		domains    []string
		country    string
		language   string
		hoursBack  int
		maxRecords int
	)

	cmd := &cobra.Command{
		Use:   "news",
		Short: "Run one news collection pass",
		Long: `Searches GDELT for matching articles, crawls them through the
cached fetch layer, extracts article text, and persists the results to the
configured stores.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyword == "" && len(domains) == 0 && len(cfg.Crawl.DefaultDomains) == 0 {
				return errors.New("a --keyword or --domains filter is required")
			}

			runner, cleanup, err := buildNewsRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			q := buildQuery(keyword, domains, country, language, hoursBack, maxRecords)
			summary, _, err := runner.Run(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("news run: %w", err)
			}

			logger.Info("news collection finished",
				zap.String("run_id", summary.RunID),
				zap.Int("total", summary.Total),
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("failed", summary.Failed),
				zap.Int("extracted", summary.Extracted),
				zap.String("dump_path", summary.DumpPath),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyword, "keyword", "", "GDELT search keyword")
	cmd.Flags().StringSliceVar(&domains, "domains", nil, "restrict the search to these source domains")
	cmd.Flags().StringVar(&country, "country", "", "GDELT source country filter")
	cmd.Flags().StringVar(&language, "language", "", "GDELT source language filter")
	cmd.Flags().IntVar(&hoursBack, "hours", 24, "search window in hours back from now")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "maximum articles to crawl (default from config)")

	return cmd
}
