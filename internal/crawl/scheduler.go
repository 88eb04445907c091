// Package crawl fans many URLs out through the resilient fetch layer under
// a global concurrency cap, extracting article text as responses arrive.
package crawl

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/extract"
	"github.com/somonox/findata-crawler/internal/fetch"
	"github.com/somonox/findata-crawler/internal/metrics"
)

// Item is one crawl input. Meta is caller-supplied and carried through to
// the output record untouched.
type Item struct {
	URL  string
	Meta map[string]string
}

// Record is the terminal outcome for one Item. Text is empty when the fetch
// failed, the body was not HTML, or extraction fell below the minimum
// threshold; callers decide whether to drop such records.
type Record struct {
	URL        string
	Meta       map[string]string
	Status     fetch.Status
	StatusCode int
	FromCache  bool
	Stale      bool
	Title      string
	Text       string
	TextLength int
	Error      string
	// Body is the raw HTML for successfully fetched pages, kept for
	// snapshot archiving but excluded from JSON dumps.
	Body []byte `json:"-"`
}

// RateWaiter paces requests per domain before a network slot is used.
type RateWaiter interface {
	Wait(ctx context.Context, url string) error
}

// Renderer produces a settled DOM for pages the fast path cannot parse.
type Renderer interface {
	Render(ctx context.Context, url string) (fetch.Response, error)
}

// JSDetector decides whether a fetched body is an empty app shell worth a
// render pass.
type JSDetector interface {
	NeedsJS(body []byte) bool
}

// Config controls Scheduler behavior.
type Config struct {
	// Concurrency caps in-flight fetches regardless of item count.
	Concurrency int
	// ParseWorkers sizes the extraction pool so CPU-bound parsing does not
	// stall network scheduling. Defaults to GOMAXPROCS.
	ParseWorkers int
	// Headers are sent on every request (contact-info user agent etc.).
	Headers http.Header
}

// Scheduler coordinates a bounded crawl.
type Scheduler struct {
	fetcher   fetch.Fetcher
	extractor extract.Extractor
	limiter   RateWaiter
	renderer  Renderer
	detector  JSDetector
	cfg       Config
	logger    *zap.Logger
}

// NewScheduler constructs a Scheduler. limiter may be nil to disable
// per-domain pacing.
func NewScheduler(fetcher fetch.Fetcher, extractor extract.Extractor, limiter RateWaiter, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithHeadless enables render escalation: bodies the detector flags as JS
// app shells are re-fetched through the renderer before extraction.
func (s *Scheduler) WithHeadless(renderer Renderer, detector JSDetector) *Scheduler {
	s.renderer = renderer
	s.detector = detector
	return s
}

type parseJob struct {
	item Item
	res  fetch.Result
}

// Crawl processes every item to a terminal state and returns one Record per
// item. Output order is completion order, not input order. A failing item
// never blocks or aborts its siblings.
func (s *Scheduler) Crawl(ctx context.Context, items []Item) []Record {
	if len(items) == 0 {
		return nil
	}

	results := make(chan Record, len(items))
	parseCh := make(chan parseJob)

	var parseWG sync.WaitGroup
	for i := 0; i < s.cfg.ParseWorkers; i++ {
		parseWG.Add(1)
		go func() {
			defer parseWG.Done()
			for job := range parseCh {
				results <- s.parseOne(job)
			}
		}()
	}

	// Admission gate: at most Concurrency fetches awaiting network I/O.
	gate := make(chan struct{}, s.cfg.Concurrency)
	var fetchWG sync.WaitGroup
	for _, item := range items {
		fetchWG.Add(1)
		go func(it Item) {
			defer fetchWG.Done()
			s.fetchOne(ctx, it, gate, parseCh, results)
		}(item)
	}

	fetchWG.Wait()
	close(parseCh)
	parseWG.Wait()
	close(results)

	records := make([]Record, 0, len(items))
	for rec := range results {
		records = append(records, rec)
	}
	return records
}

func (s *Scheduler) fetchOne(ctx context.Context, it Item, gate chan struct{}, parseCh chan<- parseJob, results chan<- Record) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("crawl item panicked", zap.String("url", it.URL), zap.Any("panic", r))
			results <- failedRecord(it, fmt.Sprintf("panic: %v", r))
		}
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, it.URL); err != nil {
			results <- failedRecord(it, err.Error())
			return
		}
	}

	gate <- struct{}{}
	metrics.CrawlInFlight.Inc()
	res := s.fetcher.Get(ctx, it.URL, s.cfg.Headers)
	metrics.CrawlInFlight.Dec()
	<-gate

	metrics.FetchesTotal.WithLabelValues(string(res.Status)).Inc()

	if !res.OK() {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		} else if res.StatusCode != 0 {
			errText = fmt.Sprintf("http status %d", res.StatusCode)
		}
		s.logger.Debug("crawl item failed", zap.String("url", it.URL), zap.String("error", errText))
		results <- Record{
			URL:        it.URL,
			Meta:       it.Meta,
			Status:     res.Status,
			StatusCode: res.StatusCode,
			Error:      errText,
		}
		return
	}

	if !looksHTML(res) {
		results <- Record{
			URL:        it.URL,
			Meta:       it.Meta,
			Status:     res.Status,
			StatusCode: res.StatusCode,
			FromCache:  res.FromCache,
			Stale:      res.Stale,
		}
		return
	}

	res = s.maybeRender(ctx, it, res)

	parseCh <- parseJob{item: it, res: res}
}

// maybeRender escalates an app-shell body to headless Chrome. The renderer
// bounds its own concurrency; a render failure keeps the fast-path body.
func (s *Scheduler) maybeRender(ctx context.Context, it Item, res fetch.Result) fetch.Result {
	if s.renderer == nil || s.detector == nil || !s.detector.NeedsJS(res.Body) {
		return res
	}
	rendered, err := s.renderer.Render(ctx, it.URL)
	if err != nil {
		s.logger.Warn("headless render failed, using fast-path body",
			zap.String("url", it.URL), zap.Error(err))
		return res
	}
	s.logger.Debug("headless render used", zap.String("url", it.URL))
	res.StatusCode = rendered.StatusCode
	res.Headers = fetch.SanitizeHeaders(rendered.Headers)
	res.Body = rendered.Body
	return res
}

// parseOne runs extraction for a fetched HTML body. Extraction faults are
// contained: a panic downgrades to a textless record.
func (s *Scheduler) parseOne(job parseJob) (rec Record) {
	rec = Record{
		URL:        job.item.URL,
		Meta:       job.item.Meta,
		Status:     job.res.Status,
		StatusCode: job.res.StatusCode,
		FromCache:  job.res.FromCache,
		Stale:      job.res.Stale,
		Body:       job.res.Body,
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("extraction panicked", zap.String("url", job.item.URL), zap.Any("panic", r))
			rec.Title = ""
			rec.Text = ""
			rec.TextLength = 0
		}
	}()

	rec.Title = extract.Title(job.res.Body)
	if text, ok := s.extractor.Extract(job.res.Body, job.item.URL); ok {
		rec.Text = text
		rec.TextLength = len(text)
	}
	return rec
}

func failedRecord(it Item, errText string) Record {
	return Record{
		URL:    it.URL,
		Meta:   it.Meta,
		Status: fetch.StatusFailed,
		Error:  errText,
	}
}

// looksHTML sniffs whether a response body is worth parsing: either the
// content type says HTML, or the body starts with a tag.
func looksHTML(res fetch.Result) bool {
	ct := strings.ToLower(res.Headers.Get("Content-Type"))
	if strings.Contains(ct, "html") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(string(res.Body)), "<")
}
