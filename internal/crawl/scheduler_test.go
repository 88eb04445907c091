package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somonox/findata-crawler/internal/extract"
	"github.com/somonox/findata-crawler/internal/fetch"
)

// mapFetcher serves canned results per URL and tracks peak concurrency.
type mapFetcher struct {
	mu      sync.Mutex
	results map[string]fetch.Result
	inUse   int
	peak    int
	delay   time.Duration
}

func (f *mapFetcher) Get(_ context.Context, url string, _ http.Header) fetch.Result {
	f.mu.Lock()
	f.inUse++
	if f.inUse > f.peak {
		f.peak = f.inUse
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inUse--
	res, ok := f.results[url]
	f.mu.Unlock()

	if !ok {
		return fetch.Result{URL: url, Status: fetch.StatusFailed, ErrKind: fetch.ErrKindTransport, Err: errors.New("unknown url")}
	}
	res.URL = url
	return res
}

func htmlResult(body string) fetch.Result {
	return fetch.Result{
		Status:     fetch.StatusSuccess,
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func articleHTML(title string) string {
	body := strings.Repeat("Markets moved on the latest inflation print today. ", 8)
	return fmt.Sprintf(`<html><head><title>%s</title></head><body><article><p>%s</p></article></body></html>`, title, body)
}

func newScheduler(f fetch.Fetcher, cfg Config) *Scheduler {
	return NewScheduler(f, extract.NewChain(), nil, cfg, nil)
}

func TestCrawlOneFailureNeverBlocksSiblings(t *testing.T) {
	results := map[string]fetch.Result{}
	var items []Item
	for i := 0; i < 10; i++ {
		url := fmt.Sprintf("https://example.com/a%d", i)
		if i == 3 {
			results[url] = fetch.Result{Status: fetch.StatusFailed, ErrKind: fetch.ErrKindTransport, Err: errors.New("connection reset")}
		} else {
			results[url] = htmlResult(articleHTML(fmt.Sprintf("Story %d", i)))
		}
		items = append(items, Item{URL: url, Meta: map[string]string{"idx": fmt.Sprint(i)}})
	}

	s := newScheduler(&mapFetcher{results: results}, Config{Concurrency: 4})
	records := s.Crawl(context.Background(), items)
	require.Len(t, records, 10)

	var failed, succeeded int
	for _, rec := range records {
		if rec.Status == fetch.StatusFailed {
			failed++
			assert.Equal(t, "connection reset", rec.Error)
			assert.Empty(t, rec.Text)
		} else {
			succeeded++
			assert.NotEmpty(t, rec.Text)
			assert.Equal(t, len(rec.Text), rec.TextLength)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 9, succeeded)
}

func TestCrawlBoundsConcurrency(t *testing.T) {
	results := map[string]fetch.Result{}
	var items []Item
	for i := 0; i < 50; i++ {
		url := fmt.Sprintf("https://example.com/p%d", i)
		results[url] = htmlResult(articleHTML("x"))
		items = append(items, Item{URL: url})
	}
	f := &mapFetcher{results: results, delay: 5 * time.Millisecond}

	s := newScheduler(f, Config{Concurrency: 5})
	records := s.Crawl(context.Background(), items)
	require.Len(t, records, 50)
	assert.LessOrEqual(t, f.peak, 5)
	assert.Positive(t, f.peak)
}

func TestCrawlMetadataCarriedThrough(t *testing.T) {
	url := "https://example.com/a"
	meta := map[string]string{"title": "seed title", "domain": "example.com", "seendate": "20260801T000000Z"}
	f := &mapFetcher{results: map[string]fetch.Result{url: htmlResult(articleHTML("Real Title"))}}

	s := newScheduler(f, Config{Concurrency: 2})
	records := s.Crawl(context.Background(), []Item{{URL: url, Meta: meta}})
	require.Len(t, records, 1)
	assert.Equal(t, meta, records[0].Meta)
	assert.Equal(t, "Real Title", records[0].Title)
}

func TestCrawlSkipsNonHTML(t *testing.T) {
	url := "https://example.com/data.json"
	f := &mapFetcher{results: map[string]fetch.Result{url: {
		Status:     fetch.StatusSuccess,
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`{"ok":true}`),
	}}}

	s := newScheduler(f, Config{Concurrency: 2})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.Equal(t, fetch.StatusSuccess, records[0].Status)
	assert.Empty(t, records[0].Text)
	assert.Zero(t, records[0].TextLength)
}

func TestCrawlSniffsHTMLWithoutContentType(t *testing.T) {
	url := "https://example.com/no-ct"
	res := htmlResult(articleHTML("Sniffed"))
	res.Headers = http.Header{}
	f := &mapFetcher{results: map[string]fetch.Result{url: res}}

	s := newScheduler(f, Config{Concurrency: 2})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].Text)
}

func TestCrawlEmptyInput(t *testing.T) {
	s := newScheduler(&mapFetcher{}, Config{Concurrency: 2})
	assert.Nil(t, s.Crawl(context.Background(), nil))
}

func TestCrawlBelowThresholdYieldsTextlessRecord(t *testing.T) {
	url := "https://example.com/thin"
	f := &mapFetcher{results: map[string]fetch.Result{
		url: htmlResult(`<html><body><article><p>thin</p></article></body></html>`),
	}}

	s := newScheduler(f, Config{Concurrency: 2})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.True(t, records[0].Status == fetch.StatusSuccess)
	assert.Empty(t, records[0].Text)
}

func TestCrawlStaleResultsSurfaceFlags(t *testing.T) {
	url := "https://example.com/stale"
	res := htmlResult(articleHTML("Old News"))
	res.Status = fetch.StatusStaleFallback
	res.FromCache = true
	res.Stale = true
	f := &mapFetcher{results: map[string]fetch.Result{url: res}}

	s := newScheduler(f, Config{Concurrency: 2})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.True(t, records[0].FromCache)
	assert.True(t, records[0].Stale)
	assert.NotEmpty(t, records[0].Text)
}

type stubRenderer struct {
	body string
	err  error
	mu   sync.Mutex
	urls []string
}

func (r *stubRenderer) Render(_ context.Context, url string) (fetch.Response, error) {
	r.mu.Lock()
	r.urls = append(r.urls, url)
	r.mu.Unlock()
	if r.err != nil {
		return fetch.Response{}, r.err
	}
	return fetch.Response{
		URL:        url,
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(r.body),
	}, nil
}

type stubDetector struct{ needs bool }

func (d stubDetector) NeedsJS([]byte) bool { return d.needs }

func TestCrawlEscalatesAppShellsToRenderer(t *testing.T) {
	url := "https://example.com/spa"
	f := &mapFetcher{results: map[string]fetch.Result{
		url: htmlResult(`<html><body><div id="root"></div></body></html>`),
	}}
	renderer := &stubRenderer{body: articleHTML("Rendered Story")}

	s := newScheduler(f, Config{Concurrency: 2}).WithHeadless(renderer, stubDetector{needs: true})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.Equal(t, []string{url}, renderer.urls)
	assert.Equal(t, "Rendered Story", records[0].Title)
	assert.NotEmpty(t, records[0].Text)
}

func TestCrawlRenderFailureKeepsFastPathBody(t *testing.T) {
	url := "https://example.com/spa"
	f := &mapFetcher{results: map[string]fetch.Result{
		url: htmlResult(articleHTML("Fast Path")),
	}}
	renderer := &stubRenderer{err: errors.New("chrome crashed")}

	s := newScheduler(f, Config{Concurrency: 2}).WithHeadless(renderer, stubDetector{needs: true})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.Equal(t, fetch.StatusSuccess, records[0].Status)
	assert.Equal(t, "Fast Path", records[0].Title)
}

func TestCrawlSkipsRendererWhenNotNeeded(t *testing.T) {
	url := "https://example.com/plain"
	f := &mapFetcher{results: map[string]fetch.Result{url: htmlResult(articleHTML("Plain"))}}
	renderer := &stubRenderer{body: articleHTML("never used")}

	s := newScheduler(f, Config{Concurrency: 2}).WithHeadless(renderer, stubDetector{needs: false})
	records := s.Crawl(context.Background(), []Item{{URL: url}})
	require.Len(t, records, 1)
	assert.Empty(t, renderer.urls)
	assert.Equal(t, "Plain", records[0].Title)
}

func TestCrawlAllItemsReachTerminalState(t *testing.T) {
	results := map[string]fetch.Result{}
	var items []Item
	var want []string
	for i := 0; i < 20; i++ {
		url := fmt.Sprintf("https://example.com/t%d", i)
		results[url] = htmlResult(articleHTML("x"))
		items = append(items, Item{URL: url})
		want = append(want, url)
	}

	s := newScheduler(&mapFetcher{results: results}, Config{Concurrency: 3})
	records := s.Crawl(context.Background(), items)
	require.Len(t, records, 20)

	var got []string
	for _, rec := range records {
		got = append(got, rec.URL)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}
