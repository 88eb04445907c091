package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"

	"github.com/somonox/findata-crawler/internal/clock/system"
	"github.com/somonox/findata-crawler/internal/crawl"
	"github.com/somonox/findata-crawler/internal/database"
	"github.com/somonox/findata-crawler/internal/extract"
	"github.com/somonox/findata-crawler/internal/gdelt"
	"github.com/somonox/findata-crawler/internal/headless"
	"github.com/somonox/findata-crawler/internal/id/uuid"
	"github.com/somonox/findata-crawler/internal/news"
	"github.com/somonox/findata-crawler/internal/policy/ratelimit"
	"github.com/somonox/findata-crawler/internal/publisher"
	pubsubpublisher "github.com/somonox/findata-crawler/internal/publisher/pubsub"
	"github.com/somonox/findata-crawler/internal/sink"
	"github.com/somonox/findata-crawler/internal/storage"
	"github.com/somonox/findata-crawler/internal/storage/gcs"
	"github.com/somonox/findata-crawler/internal/storage/local"
)

// appShellKeywords flag client-side frameworks whose server HTML is an
// empty shell.
var appShellKeywords = []string{
	"__NEXT_DATA__",
	"data-reactroot",
	"ng-app",
	"window.__APOLLO_STATE__",
	"enable javascript",
}

// buildNewsRunner assembles the full news pipeline from configuration.
// GCS, Postgres, and Pub/Sub stages are wired only when configured; the
// returned cleanup releases whatever was opened.
func buildNewsRunner(ctx context.Context) (*news.Runner, func(), error) {
	fetcher, err := newFetcher()
	if err != nil {
		return nil, nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawl.DomainQPS,
		DefaultBurst: cfg.Crawl.DomainBurst,
	})

	scheduler := crawl.NewScheduler(fetcher, extract.NewChain(), limiter, crawl.Config{
		Concurrency:  cfg.Crawl.Concurrency,
		ParseWorkers: cfg.Crawl.ParseWorkers,
		Headers:      defaultHeaders(cfg.Fetch.UserAgent),
	}, logger)

	searcher := gdelt.NewClient(fetcher, cfg.GDELT.BaseURL, logger)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*news.Runner, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.Headless.Enabled {
		renderer, err := headless.NewRenderer(headless.Config{
			MaxConcurrency: cfg.Headless.MaxParallel,
			Timeout:        time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			UserAgent:      cfg.Fetch.UserAgent,
		}, logger)
		switch {
		case err == nil:
			closers = append(closers, renderer.Close)
			detector := headless.NewDetector(cfg.Headless.MinHTMLBytes, nil, appShellKeywords)
			scheduler.WithHeadless(renderer, detector)
		case errors.Is(err, headless.ErrRendererDisabled):
			logger.Warn("headless rendering disabled despite config flag")
		default:
			return fail(fmt.Errorf("init renderer: %w", err))
		}
	}

	var blobStore storage.BlobStore
	switch {
	case cfg.Storage.GCSBucket != "":
		gcsClient, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("init gcs client: %w", err))
		}
		closers = append(closers, func() { _ = gcsClient.Close() })
		blobStore, err = gcs.New(gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return fail(fmt.Errorf("init gcs blob store: %w", err))
		}
	case cfg.Storage.LocalDir != "":
		var err error
		blobStore, err = local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return fail(fmt.Errorf("init local blob store: %w", err))
		}
	}

	var articleWriter news.ArticleWriter
	if cfg.DB.DSN != "" {
		store, err := database.NewArticleStore(ctx, database.ArticleStoreConfig{
			DSN:   cfg.DB.DSN,
			Table: cfg.DB.TableName,
		})
		if err != nil {
			return fail(fmt.Errorf("init article store: %w", err))
		}
		closers = append(closers, store.Close)
		articleWriter = store
	}

	var pub publisher.Publisher
	if cfg.PubSub.TopicName != "" {
		psClient, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fail(fmt.Errorf("init pubsub client: %w", err))
		}
		closers = append(closers, func() { _ = psClient.Close() })
		pub = pubsubpublisher.New(psClient)
	}

	fileSink, err := sink.NewFileSink(cfg.Sink.Dir, logger)
	if err != nil {
		return fail(fmt.Errorf("init sink: %w", err))
	}

	runner := news.New(
		searcher,
		scheduler,
		blobStore,
		articleWriter,
		fileSink,
		pub,
		uuid.New(),
		system.New(),
		news.Config{
			Topic:        cfg.PubSub.TopicName,
			BlobPrefix:   cfg.Storage.Prefix,
			DropTextless: cfg.Crawl.DropTextless,
			ContentType:  cfg.Storage.ContentType,
		},
		logger,
	)
	return runner, cleanup, nil
}

func buildQuery(keyword string, domains []string, country, language string, hoursBack, maxRecords int) gdelt.Query {
	q := gdelt.Query{
		Keyword:    keyword,
		Domains:    domains,
		Country:    country,
		Language:   language,
		MaxRecords: maxRecords,
	}
	if q.MaxRecords <= 0 {
		q.MaxRecords = cfg.GDELT.MaxRecords
	}
	if len(q.Domains) == 0 {
		q.Domains = cfg.Crawl.DefaultDomains
	}
	if hoursBack > 0 {
		q.End = system.New().Now()
		q.Start = q.End.Add(-time.Duration(hoursBack) * time.Hour)
	}
	return q
}
