// Package collyfetcher implements the raw HTTP boundary using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/somonox/findata-crawler/internal/fetch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements fetch.HTTPFetcher using the Colly collector. Non-2xx
// statuses are recovered from the collector's error callback and handed back
// as data; only transport-level failures surface as errors.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled transport.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, req fetch.Request) (fetch.Response, error) {
	var (
		result   fetch.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(req, start, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return fetch.Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		// A populated result means the server answered; status handling is
		// the caller's job even when Colly reported the visit as an error.
		if result.StatusCode != 0 {
			return result, nil
		}
		if err != nil {
			return fetch.Response{}, fmt.Errorf("visit %s: %w", req.URL, err)
		}
		if fetchErr != nil {
			return fetch.Response{}, fmt.Errorf("fetch %s: %w", req.URL, fetchErr)
		}
		return result, nil
	}
}

func (f *Fetcher) buildCollector(req fetch.Request, start time.Time, result *fetch.Response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = responseFrom(r, start)
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx as an error but still carries the response.
		if r != nil && r.StatusCode != 0 {
			*result = responseFrom(r, start)
			return
		}
		*fetchErr = err
	})

	return collector
}

func responseFrom(r *colly.Response, start time.Time) fetch.Response {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	return fetch.Response{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
