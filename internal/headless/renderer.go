// Package headless renders JavaScript-heavy pages with headless Chrome when
// the plain HTTP body looks like an empty app shell.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/fetch"
)

// ErrRendererDisabled indicates rendering has been disabled via
// configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

// Config controls the renderer.
type Config struct {
	MaxConcurrency int
	Timeout        time.Duration
	UserAgent      string
}

// Renderer executes pages in headless Chrome and returns the settled DOM.
type Renderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	timeout         time.Duration
	userAgent       string
	logger          *zap.Logger
}

// NewRenderer starts a shared browser process.
func NewRenderer(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, ErrRendererDisabled
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Renderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxConcurrency),
		timeout:         cfg.Timeout,
		userAgent:       cfg.UserAgent,
		logger:          logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	r.browserCancel()
	r.allocatorCancel()
}

// Render loads the page with JavaScript enabled and returns the DOM
// snapshot as a response.
func (r *Renderer) Render(ctx context.Context, rawURL string) (fetch.Response, error) {
	if r == nil {
		return fetch.Response{}, ErrRendererDisabled
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return fetch.Response{}, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}

	start := time.Now()
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	recordResponse(tabCtx, meta)

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return fetch.Response{}, fmt.Errorf("chromedp run: %w", err)
	}

	status := meta.statusCode
	if status == 0 {
		status = http.StatusOK
	}
	return fetch.Response{
		URL:        meta.finalURL(rawURL),
		StatusCode: status,
		Headers:    meta.headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	headers    http.Header
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: make(http.Header)}
}

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

func recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
			for k, v := range resp.Response.Headers {
				meta.headers.Add(k, fmt.Sprint(v))
			}
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
