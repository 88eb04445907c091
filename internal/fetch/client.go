package fetch

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/metrics"
)

// Client is the conditional fetcher: it decides per URL whether to serve
// from cache, revalidate, or fetch fresh, and keeps the cache current.
// Many origin servers in this pipeline (SEC included) send no cache-control
// directives at all; conditional revalidation plus the disk fallback buys
// bandwidth savings and outage resilience without their cooperation.
type Client struct {
	raw    HTTPFetcher
	store  *Store
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger
}

// ClientConfig bundles the Client collaborators and knobs.
type ClientConfig struct {
	Raw HTTPFetcher
	// Store may be nil to disable caching entirely (raw pass-through).
	Store *Store
	// TTL gates the stale fallback: an entry older than TTL is not served
	// on transport failure. Zero means no limit.
	TTL   time.Duration
	Clock Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewClient constructs a conditional fetcher.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Client{
		raw:    cfg.Raw,
		store:  cfg.Store,
		ttl:    cfg.TTL,
		clock:  clock,
		logger: logger,
	}
}

// Get performs one conditional fetch for url. The outcome is always a
// Result; retry is the Retrier's responsibility, layered above.
func (c *Client) Get(ctx context.Context, url string, extra http.Header) Result {
	entry, ok := c.lookup(url)
	if !ok {
		return c.fetchFresh(ctx, url, extra)
	}
	return c.revalidate(ctx, url, extra, entry)
}

// lookup reads the cache, failing open: a storage read error is logged and
// treated as a miss so a bad cache medium never blocks fetching.
func (c *Client) lookup(url string) (Entry, bool) {
	if c.store == nil {
		return Entry{}, false
	}
	entry, ok, err := c.store.Get(url)
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", zap.String("url", url), zap.Error(err))
		return Entry{}, false
	}
	return entry, ok
}

func (c *Client) fetchFresh(ctx context.Context, url string, extra http.Header) Result {
	resp, err := c.raw.Fetch(ctx, Request{URL: url, Headers: extra})
	if err != nil {
		return Result{URL: url, Status: StatusFailed, ErrKind: ErrKindTransport, Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		c.storeEntry(url, resp)
		return Result{
			URL:        url,
			Status:     StatusSuccess,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
		}
	}
	return failedStatus(url, resp)
}

func (c *Client) revalidate(ctx context.Context, url string, extra http.Header, entry Entry) Result {
	headers := conditionalHeaders(entry, extra)

	resp, err := c.raw.Fetch(ctx, Request{URL: url, Headers: headers})
	if err != nil {
		if c.withinTTL(entry) {
			metrics.CacheStaleFallbacks.Inc()
			c.logger.Debug("transport failure, serving stale cache", zap.String("url", url), zap.Error(err))
			return fromCache(url, entry, true)
		}
		return Result{URL: url, Status: StatusFailed, ErrKind: ErrKindTransport, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		metrics.CacheHits.Inc()
		return fromCache(url, entry, false)
	case resp.StatusCode == http.StatusOK:
		c.storeEntry(url, resp)
		return Result{
			URL:        url,
			Status:     StatusSuccess,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
		}
	default:
		return failedStatus(url, resp)
	}
}

// conditionalHeaders merges caller headers with the validators; the
// validators win on conflict.
func conditionalHeaders(entry Entry, extra http.Header) http.Header {
	headers := http.Header{}
	for k, vs := range extra {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	if entry.ETag != "" {
		headers.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		headers.Set("If-Modified-Since", entry.LastModified)
	}
	return headers
}

// withinTTL reports whether the entry may still back a stale fallback.
// Age exactly equal to the TTL is still usable.
func (c *Client) withinTTL(entry Entry) bool {
	if c.ttl <= 0 {
		return true
	}
	age := c.clock.Now().Unix() - entry.StoredAt
	return age <= int64(c.ttl/time.Second)
}

// storeEntry caches a 200 response. Caching is best-effort: a write failure
// is logged and ignored, never surfaced to the caller.
func (c *Client) storeEntry(url string, resp Response) {
	if c.store == nil {
		return
	}
	entry := Entry{
		URL:          url,
		StoredAt:     c.clock.Now().Unix(),
		StatusCode:   resp.StatusCode,
		Headers:      resp.Headers,
		ETag:         resp.Headers.Get("ETag"),
		LastModified: resp.Headers.Get("Last-Modified"),
		Body:         resp.Body,
	}
	if err := c.store.Put(url, entry); err != nil {
		c.logger.Warn("cache write failed", zap.String("url", url), zap.Error(err))
	}
}

func fromCache(url string, entry Entry, stale bool) Result {
	status := StatusCached
	if stale {
		status = StatusStaleFallback
	}
	return Result{
		URL:        url,
		Status:     status,
		StatusCode: http.StatusOK,
		Headers:    SanitizeHeaders(entry.Headers),
		Body:       entry.Body,
		FromCache:  true,
		Stale:      stale,
	}
}

func failedStatus(url string, resp Response) Result {
	return Result{
		URL:        url,
		Status:     StatusFailed,
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		ErrKind:    ErrKindHTTP,
	}
}
