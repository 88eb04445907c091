package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/edgar"
)

func newFilingsCmd() *cobra.Command {
	var (
		cik       string
		out       string
		cusipFile string
	)

	cmd := &cobra.Command{
		Use:   "filings",
		Short: "Download and merge 13F holdings for one filer",
		Long: `Walks SEC EDGAR for a filer's recent 13F-HR filings, parses every
information table, merges same-position rows, and writes the combined
holdings as CSV. CIK must be the zero-padded 10-digit form.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(cik) != 10 {
				return errors.New("--cik must be the zero-padded 10-digit CIK")
			}

			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			client := edgar.NewClient(fetcher, edgar.Config{
				BaseURL:     cfg.EDGAR.BaseURL,
				DataBaseURL: cfg.EDGAR.DataBaseURL,
				UserAgent:   cfg.EDGAR.UserAgent,
			}, logger)

			filings, err := client.Holdings(cmd.Context(), cik)
			if err != nil {
				return fmt.Errorf("fetch holdings: %w", err)
			}

			var all []edgar.Holding
			for _, filing := range filings {
				all = append(all, filing...)
			}
			merged := edgar.GroupAndMerge(all)

			if cusipFile == "" {
				cusipFile = cfg.EDGAR.CUSIPFile
			}
			if cusipFile != "" {
				cusipMap, err := edgar.LoadCUSIPMap(cusipFile)
				if err != nil {
					return fmt.Errorf("load cusip map: %w", err)
				}
				edgar.EnrichTickers(merged, cusipMap)
			}

			if err := writeCSV(out, edgar.CSVRows(merged)); err != nil {
				return err
			}

			logger.Info("filings written",
				zap.String("cik", cik),
				zap.Int("filings", len(filings)),
				zap.Int("positions", len(merged)),
				zap.Int64("total_value_usd_thousands", edgar.TotalValue(merged)),
				zap.String("out", out),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&cik, "cik", "", "zero-padded 10-digit CIK of the filer")
	cmd.Flags().StringVar(&out, "out", "holdings.csv", "output CSV path")
	cmd.Flags().StringVar(&cusipFile, "cusip-map", "", "CSV mapping CUSIPs to tickers (default from config)")
	_ = cmd.MarkFlagRequired("cik")

	return cmd
}

// writeCSV writes rows to path, stdout when path is "-".
func writeCSV(path string, rows [][]string) error {
	var w *csv.Writer
	if path == "-" {
		w = csv.NewWriter(os.Stdout)
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = csv.NewWriter(f)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
