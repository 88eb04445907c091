// Package fetch implements the resilient HTTP layer: a disk-backed
// response cache with conditional revalidation, TTL-gated stale fallback,
// and bounded retry with exponential backoff.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// Status classifies the terminal outcome of one logical fetch.
type Status string

// Fetch outcome values carried on every Result.
const (
	StatusSuccess       Status = "success"
	StatusCached        Status = "cached"
	StatusStaleFallback Status = "stale_fallback"
	StatusFailed        Status = "failed"
)

// ErrKind is the error taxonomy attached to failed results.
type ErrKind string

// Error taxonomy values. ErrKindNone marks non-failure results.
const (
	ErrKindNone      ErrKind = ""
	ErrKindTransport ErrKind = "transport"
	ErrKindHTTP      ErrKind = "http_status"
	ErrKindStorage   ErrKind = "storage"
)

// Result is the immutable outcome of one fetch call. Failures are data,
// not panics: callers always receive a Result, with ErrKind describing
// what went wrong when Status is StatusFailed.
type Result struct {
	URL        string
	Status     Status
	StatusCode int
	Headers    http.Header
	Body       []byte
	FromCache  bool
	Stale      bool
	ErrKind    ErrKind
	Err        error
}

// OK reports whether the result carries a usable body.
func (r Result) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusCached || r.Status == StatusStaleFallback
}

// Request captures everything needed for one raw HTTP GET.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is what the raw HTTP boundary hands back. Non-2xx statuses are
// returned as data; err is reserved for transport-level failures
// (connect/read timeout, DNS, TLS).
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// HTTPFetcher is the raw fetch boundary consumed from the environment:
// GET with custom headers, per-attempt timeout, redirect following.
type HTTPFetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Fetcher is the cache-aware fetch contract the retry unit and the crawl
// scheduler build on.
type Fetcher interface {
	Get(ctx context.Context, url string, extra http.Header) Result
}

// Clock abstracts time for TTL checks (useful for testing).
type Clock interface {
	Now() time.Time
}

// hopHeaders are stripped when a response is rebuilt from cache: the stored
// body is already decoded, so re-forwarding these would make a downstream
// client attempt (and fail) a second decode.
var hopHeaders = []string{"Content-Encoding", "Transfer-Encoding", "Content-Length"}

// SanitizeHeaders returns a copy of h with compression and length headers
// removed. Comparison is case-insensitive via http.Header canonicalization.
func SanitizeHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	return out
}
