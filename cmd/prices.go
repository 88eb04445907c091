package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/prices"
)

func newPricesCmd() *cobra.Command {
	var (
		tickers  []string
		start    string
		end      string
		interval string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Download daily price history for tickers",
		Long: `Fetches OHLCV history for the given tickers through the cached
fetch layer and writes it as long-format CSV, one row per ticker per day.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tickers) == 0 {
				return errors.New("at least one --tickers entry is required")
			}

			startT, endT, err := parseDateRange(start, end)
			if err != nil {
				return err
			}
			if interval == "" {
				interval = cfg.Prices.Interval
			}

			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			client := prices.NewClient(fetcher, cfg.Prices.BaseURL, logger)

			var rows [][]string
			for _, ticker := range tickers {
				candles, err := client.History(cmd.Context(), prices.Query{
					Ticker:   ticker,
					Start:    startT,
					End:      endT,
					Interval: interval,
				})
				if err != nil {
					return fmt.Errorf("history for %s: %w", ticker, err)
				}
				tickerRows := prices.CSVRows(ticker, candles)
				if len(rows) == 0 {
					rows = tickerRows
				} else {
					rows = append(rows, tickerRows[1:]...)
				}
				logger.Info("price history fetched",
					zap.String("ticker", ticker),
					zap.Int("candles", len(candles)),
				)
			}

			if err := writeCSV(out, rows); err != nil {
				return err
			}
			logger.Info("prices written", zap.String("out", out), zap.Int("rows", len(rows)-1))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "tickers to download")
	cmd.Flags().StringVar(&start, "start", "", "range start, YYYY-MM-DD (default 1 year back)")
	cmd.Flags().StringVar(&end, "end", "", "range end, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval: 1d, 1wk, 1mo (default from config)")
	cmd.Flags().StringVar(&out, "out", "prices.csv", "output CSV path")
	_ = cmd.MarkFlagRequired("tickers")

	return cmd
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	endT := time.Now().UTC()
	if end != "" {
		var err error
		endT, err = time.Parse("2006-01-02", end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --end: %w", err)
		}
	}
	startT := endT.AddDate(-1, 0, 0)
	if start != "" {
		var err error
		startT, err = time.Parse("2006-01-02", start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --start: %w", err)
		}
	}
	if !startT.Before(endT) {
		return time.Time{}, time.Time{}, errors.New("--start must be before --end")
	}
	return startT, endT, nil
}
