// Package prices downloads daily OHLCV history from the Yahoo Finance chart
// API for the tickers held in tracked portfolios.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/fetch"
)

// DefaultBaseURL is the public chart endpoint.
const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Candle is one bar of history. AdjClose falls back to Close when the API
// omits adjusted prices for the requested interval.
type Candle struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjClose"`
	Volume   int64     `json:"volume"`
}

// Query describes one history download.
type Query struct {
	Ticker   string
	Start    time.Time
	End      time.Time
	Interval string // 1d, 1wk, 1mo; defaults to 1d
}

// Client fetches price history through the resilient fetch layer.
type Client struct {
	fetcher fetch.Fetcher
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a Client. baseURL may be empty for the public endpoint.
func NewClient(fetcher fetch.Fetcher, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: fetcher, baseURL: baseURL, logger: logger}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History downloads candles for one ticker. Bars with missing quote data
// (halted sessions) are dropped.
func (c *Client) History(ctx context.Context, q Query) ([]Candle, error) {
	if q.Ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	interval := q.Interval
	if interval == "" {
		interval = "1d"
	}

	params := url.Values{}
	params.Set("interval", interval)
	params.Set("events", "div,splits")
	if !q.Start.IsZero() {
		params.Set("period1", strconv.FormatInt(q.Start.Unix(), 10))
	}
	if !q.End.IsZero() {
		params.Set("period2", strconv.FormatInt(q.End.Unix(), 10))
	}
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(q.Ticker), params.Encode())

	res := c.fetcher.Get(ctx, reqURL, nil)
	if !res.OK() {
		if res.Err != nil {
			return nil, fmt.Errorf("chart %s: %w", q.Ticker, res.Err)
		}
		return nil, fmt.Errorf("chart %s: http status %d", q.Ticker, res.StatusCode)
	}

	var parsed chartResponse
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return nil, fmt.Errorf("chart %s decode: %w", q.Ticker, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s (%s)", q.Ticker, parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: empty result", q.Ticker)
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s: no quote data", q.Ticker)
	}
	quote := result.Indicators.Quote[0]

	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open := at(quote.Open, i)
		high := at(quote.High, i)
		low := at(quote.Low, i)
		cls := at(quote.Close, i)
		if open == nil || high == nil || low == nil || cls == nil {
			continue
		}
		candle := Candle{
			Date:     time.Unix(ts, 0).UTC(),
			Open:     *open,
			High:     *high,
			Low:      *low,
			Close:    *cls,
			AdjClose: *cls,
		}
		if a := at(adj, i); a != nil {
			candle.AdjClose = *a
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			candle.Volume = *quote.Volume[i]
		}
		candles = append(candles, candle)
	}
	c.logger.Debug("price history fetched",
		zap.String("ticker", q.Ticker),
		zap.Int("candles", len(candles)),
		zap.Bool("from_cache", res.FromCache),
	)
	return candles, nil
}

func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}

// CSVRows renders long-format rows (one bar per line), header first.
func CSVRows(ticker string, candles []Candle) [][]string {
	rows := [][]string{{"date", "ticker", "open", "high", "low", "close", "adjClose", "volume"}}
	for _, c := range candles {
		rows = append(rows, []string{
			c.Date.Format("2006-01-02"),
			ticker,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.AdjClose, 'f', -1, 64),
			strconv.FormatInt(c.Volume, 10),
		})
	}
	return rows
}
