// Package news orchestrates one end-to-end news collection run: article
// discovery, bounded crawl, snapshot archiving, persistence, and run
// completion events.
package news

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/crawl"
	"github.com/somonox/findata-crawler/internal/fetch"
	"github.com/somonox/findata-crawler/internal/gdelt"
	"github.com/somonox/findata-crawler/internal/metrics"
	"github.com/somonox/findata-crawler/internal/publisher"
	"github.com/somonox/findata-crawler/internal/storage"
)

// Searcher discovers article URLs to crawl.
type Searcher interface {
	ArticleList(ctx context.Context, q gdelt.Query) ([]gdelt.Article, error)
}

// Crawler processes items to terminal records.
type Crawler interface {
	Crawl(ctx context.Context, items []crawl.Item) []crawl.Record
}

// ArticleWriter persists one crawl record.
type ArticleWriter interface {
	StoreArticle(ctx context.Context, runID string, fetchedAt time.Time, rec crawl.Record) error
}

// RecordSink dumps a whole run to a file.
type RecordSink interface {
	SaveRecords(name string, records []crawl.Record) (string, error)
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time for run stamping.
type Clock interface {
	Now() time.Time
}

// Config controls Runner behavior.
type Config struct {
	// Topic for run completion events; empty disables publishing.
	Topic string
	// BlobPrefix prefixes snapshot object paths.
	BlobPrefix string
	// DropTextless excludes records without extracted text from the dump.
	DropTextless bool
	ContentType  string
}

// Runner wires the collection pipeline together. Blob store, article
// writer, sink, and publisher are each optional; a missing collaborator
// skips that stage.
type Runner struct {
	searcher  Searcher
	crawler   Crawler
	blobStore storage.BlobStore
	articles  ArticleWriter
	sink      RecordSink
	publisher publisher.Publisher
	idGen     IDGenerator
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	searcher Searcher,
	crawler Crawler,
	blobStore storage.BlobStore,
	articles ArticleWriter,
	recordSink RecordSink,
	pub publisher.Publisher,
	idGen IDGenerator,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		searcher:  searcher,
		crawler:   crawler,
		blobStore: blobStore,
		articles:  articles,
		sink:      recordSink,
		publisher: pub,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Summary reports what one run did.
type Summary struct {
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Extracted int    `json:"extracted"`
	DumpPath  string `json:"dump_path,omitempty"`
}

// Run executes one collection pass for the query and returns the summary
// plus every record. Per-record persistence failures are logged and
// counted, never fatal to the run.
func (r *Runner) Run(ctx context.Context, q gdelt.Query) (Summary, []crawl.Record, error) {
	runID, err := r.idGen.NewID()
	if err != nil {
		return Summary{}, nil, fmt.Errorf("generate run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID))

	articles, err := r.searcher.ArticleList(ctx, q)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("article search: %w", err)
	}
	logger.Info("articles discovered", zap.Int("count", len(articles)))

	records := r.crawler.Crawl(ctx, gdelt.Items(articles))
	now := r.clock.Now()

	summary := Summary{RunID: runID, Total: len(records)}
	for i := range records {
		rec := &records[i]
		if rec.Status == fetch.StatusFailed {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		if rec.TextLength > 0 {
			summary.Extracted++
		}
		r.archiveSnapshot(ctx, logger, runID, rec)
		r.storeArticle(ctx, logger, runID, now, rec)
	}

	if r.sink != nil {
		dump := records
		if r.cfg.DropTextless {
			dump = withText(records)
		}
		path, err := r.sink.SaveRecords(dumpName(runID), dump)
		if err != nil {
			logger.Error("dump write failed", zap.Error(err))
		} else {
			summary.DumpPath = path
		}
	}

	r.publishSummary(ctx, logger, q, now, summary)

	logger.Info("run complete",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("extracted", summary.Extracted),
	)
	return summary, records, nil
}

func (r *Runner) archiveSnapshot(ctx context.Context, logger *zap.Logger, runID string, rec *crawl.Record) {
	if r.blobStore == nil || len(rec.Body) == 0 {
		return
	}
	path := snapshotPath(r.cfg.BlobPrefix, runID, rec.URL)
	uri, err := r.blobStore.PutObject(ctx, path, r.cfg.ContentType, bytes.NewReader(rec.Body))
	if err != nil {
		logger.Warn("snapshot archive failed", zap.String("url", rec.URL), zap.Error(err))
		return
	}
	metrics.SnapshotsArchived.Inc()
	logger.Debug("snapshot archived", zap.String("url", rec.URL), zap.String("blob_uri", uri))
}

func (r *Runner) storeArticle(ctx context.Context, logger *zap.Logger, runID string, now time.Time, rec *crawl.Record) {
	if r.articles == nil {
		return
	}
	if err := r.articles.StoreArticle(ctx, runID, now, *rec); err != nil {
		logger.Error("article store failed", zap.String("url", rec.URL), zap.Error(err))
	}
}

func (r *Runner) publishSummary(ctx context.Context, logger *zap.Logger, q gdelt.Query, now time.Time, summary Summary) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":    summary.RunID,
		"keyword":   q.Keyword,
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"extracted": summary.Extracted,
		"timestamp": now.Format(time.RFC3339),
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
		logger.Error("run event publish failed", zap.Error(err))
		return
	}
	metrics.RunsPublished.Inc()
}

func withText(records []crawl.Record) []crawl.Record {
	out := make([]crawl.Record, 0, len(records))
	for _, rec := range records {
		if rec.TextLength > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func snapshotPath(prefix, runID, url string) string {
	key := fetch.Key(url)
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", runID, key)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, runID, key)
}

func dumpName(runID string) string {
	return fmt.Sprintf("news_%s.json", runID)
}
