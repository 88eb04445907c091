package fetch

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/metrics"
)

// Retrier makes one logical "get this URL" resilient to transient failures,
// independent of caching. Transport errors and 5xx statuses are retryable;
// 4xx statuses and completed fetches are terminal.
type Retrier struct {
	fetcher     Fetcher
	maxAttempts int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

// NewRetrier wraps fetcher with bounded retry. Backoff is deterministic
// backoffBase × 2^attempt with no jitter; under heavy concurrency this can
// synchronize retry bursts against one host.
// TODO: add jitter once the per-domain limiter grows 429 feedback.
func NewRetrier(fetcher Fetcher, maxAttempts int, backoffBase time.Duration, logger *zap.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		fetcher:     fetcher,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		sleep:       sleepCtx,
		logger:      logger,
	}
}

// Get fetches url, retrying retryable failures until the attempt budget is
// spent. It always returns a Result; exhaustion yields the last failure.
func (r *Retrier) Get(ctx context.Context, url string, extra http.Header) Result {
	var last Result
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.FetchRetries.Inc()
			if err := r.sleep(ctx, r.backoff(attempt-1)); err != nil {
				last.Err = err
				return last
			}
		}
		last = r.fetcher.Get(ctx, url, extra)
		if !retryable(last) {
			return last
		}
		r.logger.Debug("retryable fetch failure",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("status", last.StatusCode),
			zap.Error(last.Err),
		)
	}
	return last
}

func (r *Retrier) backoff(attemptIndex int) time.Duration {
	return r.backoffBase << uint(attemptIndex)
}

// retryable classifies one attempt. Anything that produced a usable body is
// terminal; 4xx is a client error not worth spending budget on.
func retryable(res Result) bool {
	if res.Status != StatusFailed {
		return false
	}
	if res.ErrKind == ErrKindTransport {
		return true
	}
	return res.StatusCode >= http.StatusInternalServerError && res.StatusCode < 600
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
