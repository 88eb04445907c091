// Package metrics holds the Prometheus collectors shared across the
// fetch, crawl, and extraction layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts raw HTTP fetch attempts, labelled by terminal outcome.
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "findata_fetches_total",
		Help: "The total number of fetch attempts, by outcome.",
	}, []string{"outcome"})
	// FetchRetries counts retry attempts beyond the first try.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_fetch_retries_total",
		Help: "The total number of fetch retry attempts.",
	})
	// CacheHits counts 304 revalidations served from the disk cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_cache_hits_total",
		Help: "The total number of responses served from cache after a 304.",
	})
	// CacheStaleFallbacks counts cache entries served because the network failed.
	CacheStaleFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_cache_stale_fallbacks_total",
		Help: "The total number of stale cache entries served on transport failure.",
	})
	// CrawlInFlight tracks crawl items currently holding a network slot.
	CrawlInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "findata_crawl_in_flight",
		Help: "The number of crawl fetches currently in flight.",
	})
	// ExtractionsTotal counts extraction attempts, labelled by the tier that won.
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "findata_extractions_total",
		Help: "The total number of text extractions, by winning tier.",
	}, []string{"tier"})
	// ExtractionFailures counts pages where no tier produced usable text.
	ExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_extraction_failures_total",
		Help: "The total number of pages where text extraction failed outright.",
	})
	// ArticlesStored counts article records persisted to the database.
	ArticlesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_articles_stored_total",
		Help: "The total number of article records written to the database.",
	})
	// SnapshotsArchived counts raw HTML snapshots written to blob storage.
	SnapshotsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_snapshots_archived_total",
		Help: "The total number of raw HTML snapshots archived.",
	})
	// RunsPublished counts run-completion events published to the broker.
	RunsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findata_runs_published_total",
		Help: "The total number of run completion events published.",
	})
)
