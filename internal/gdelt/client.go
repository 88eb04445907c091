// Package gdelt queries the GDELT DOC 2.0 article-list API for news URLs
// to feed the crawl scheduler.
package gdelt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/crawl"
	"github.com/somonox/findata-crawler/internal/fetch"
)

// DefaultBaseURL is the public DOC 2.0 endpoint.
const DefaultBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"

const stampLayout = "20060102150405"

// Query describes one article search.
type Query struct {
	Keyword    string
	Domains    []string
	Country    string
	Language   string
	Start      time.Time
	End        time.Time
	MaxRecords int
}

// Article is one row from the artlist response.
type Article struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Domain   string `json:"domain"`
	SeenDate string `json:"seendate"`
	Source   string `json:"sourcecommonname"`
	Language string `json:"language"`
}

type artlistResponse struct {
	Articles []Article `json:"articles"`
}

// Client fetches article lists through the resilient fetch layer, so GDELT
// responses are cached and retried like any other URL.
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

// ArticleList runs one search and returns the matching articles. Rows
// without a URL are dropped.
func (c *Client) ArticleList(ctx context.Context, q Query) ([]Article, error) {
	reqURL, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	res := c.fetcher.Get(ctx, reqURL, nil)
	if !res.OK() {
		if res.Err != nil {
			return nil, fmt.Errorf("gdelt artlist: %w", res.Err)
		}
		return nil, fmt.Errorf("gdelt artlist: http status %d", res.StatusCode)
	}

	var parsed artlistResponse
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return nil, fmt.Errorf("gdelt artlist decode: %w", err)
	}

	articles := parsed.Articles[:0]
	for _, a := range parsed.Articles {
		if a.URL == "" {
			continue
		}
		if a.Domain == "" {
			if u, err := url.Parse(a.URL); err == nil {
				a.Domain = u.Hostname()
			}
		}
		articles = append(articles, a)
	}
	c.logger.Debug("gdelt artlist fetched",
		zap.String("keyword", q.Keyword),
		zap.Int("articles", len(articles)),
		zap.Bool("from_cache", res.FromCache),
	)
	return articles, nil
}

func (c *Client) buildURL(q Query) (string, error) {
	query := buildQueryExpr(q)
	if query == "" {
		return "", fmt.Errorf("gdelt query needs a keyword or domain filter")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("mode", "artlist")
	params.Set("format", "json")
	if !q.Start.IsZero() {
		params.Set("startdatetime", q.Start.UTC().Format(stampLayout))
	}
	if !q.End.IsZero() {
		params.Set("enddatetime", q.End.UTC().Format(stampLayout))
	}
	max := q.MaxRecords
	if max <= 0 {
		max = 250
	}
	params.Set("maxrecords", fmt.Sprint(max))

	return c.baseURL + "?" + params.Encode(), nil
}

// buildQueryExpr assembles the DOC query string: keyword, OR-grouped domain
// filters, then source country and language.
func buildQueryExpr(q Query) string {
	var parts []string
	if q.Keyword != "" {
		parts = append(parts, q.Keyword)
	}
	if len(q.Domains) == 1 {
		parts = append(parts, "domain:"+q.Domains[0])
	} else if len(q.Domains) > 1 {
		clauses := make([]string, len(q.Domains))
		for i, d := range q.Domains {
			clauses[i] = "domain:" + d
		}
		parts = append(parts, "("+strings.Join(clauses, " OR ")+")")
	}
	if q.Country != "" {
		parts = append(parts, "sourcecountry:"+q.Country)
	}
	if q.Language != "" {
		parts = append(parts, "sourcelang:"+q.Language)
	}
	return strings.Join(parts, " ")
}

// Items converts articles into crawl inputs, threading the search metadata
// through untouched.
func Items(articles []Article) []crawl.Item {
	items := make([]crawl.Item, 0, len(articles))
	for _, a := range articles {
		items = append(items, crawl.Item{
			URL: a.URL,
			Meta: map[string]string{
				"title":    a.Title,
				"domain":   a.Domain,
				"seendate": a.SeenDate,
				"source":   a.Source,
			},
		})
	}
	return items
}

// ParseSeenDate parses the timestamp formats GDELT emits.
func ParseSeenDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"20060102T150405Z", "20060102T150405-0700", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
