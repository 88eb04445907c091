package news

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somonox/findata-crawler/internal/crawl"
	"github.com/somonox/findata-crawler/internal/fetch"
	"github.com/somonox/findata-crawler/internal/gdelt"
	pubmem "github.com/somonox/findata-crawler/internal/publisher/memory"
	"github.com/somonox/findata-crawler/internal/sink"
	blobmem "github.com/somonox/findata-crawler/internal/storage/memory"
)

type stubSearcher struct {
	articles []gdelt.Article
	err      error
}

func (s *stubSearcher) ArticleList(context.Context, gdelt.Query) ([]gdelt.Article, error) {
	return s.articles, s.err
}

type stubCrawler struct {
	records []crawl.Record
	items   []crawl.Item
}

func (c *stubCrawler) Crawl(_ context.Context, items []crawl.Item) []crawl.Record {
	c.items = items
	return c.records
}

type stubWriter struct {
	stored []crawl.Record
	runIDs []string
	err    error
}

func (w *stubWriter) StoreArticle(_ context.Context, runID string, _ time.Time, rec crawl.Record) error {
	w.stored = append(w.stored, rec)
	w.runIDs = append(w.runIDs, runID)
	return w.err
}

type stubIDGen struct {
	id  string
	err error
}

func (g stubIDGen) NewID() (string, error) { return g.id, g.err }

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

func newTestRunner(t *testing.T, searcher Searcher, crawler Crawler, writer ArticleWriter, cfg Config) (*Runner, *blobmem.BlobStore, *pubmem.Publisher) {
	t.Helper()
	blobs := blobmem.NewBlobStore()
	pub := pubmem.New()
	fileSink, err := sink.NewFileSink(t.TempDir(), nil)
	require.NoError(t, err)
	r := New(searcher, crawler, blobs, writer, fileSink, pub,
		stubIDGen{id: "run-1"},
		stubClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		cfg, nil)
	return r, blobs, pub
}

func TestRunFullPipeline(t *testing.T) {
	searcher := &stubSearcher{articles: []gdelt.Article{
		{URL: "https://example.com/a", Title: "A", Domain: "example.com"},
		{URL: "https://example.com/b", Title: "B", Domain: "example.com"},
	}}
	crawler := &stubCrawler{records: []crawl.Record{
		{
			URL:        "https://example.com/a",
			Status:     fetch.StatusSuccess,
			StatusCode: 200,
			Title:      "A",
			Text:       "extracted body",
			TextLength: 14,
			Body:       []byte("<html>a</html>"),
		},
		{
			URL:    "https://example.com/b",
			Status: fetch.StatusFailed,
			Error:  "connection refused",
		},
	}}
	writer := &stubWriter{}
	r, blobs, pub := newTestRunner(t, searcher, crawler, writer, Config{Topic: "runs", BlobPrefix: "news"})

	summary, records, err := r.Run(context.Background(), gdelt.Query{Keyword: "markets"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Extracted)
	assert.Len(t, records, 2)
	assert.Len(t, crawler.items, 2)

	// Only the successful record is persisted.
	require.Len(t, writer.stored, 1)
	assert.Equal(t, "https://example.com/a", writer.stored[0].URL)
	assert.Equal(t, []string{"run-1"}, writer.runIDs)

	// Snapshot lands under prefix/runID/<key>.html with the raw body.
	blob, ok := blobs.Object("news/run-1/" + fetch.Key("https://example.com/a") + ".html")
	require.True(t, ok)
	assert.Equal(t, []byte("<html>a</html>"), blob)

	// Dump is readable and contains both records.
	require.NotEmpty(t, summary.DumpPath)
	loaded, err := sink.LoadRecords(summary.DumpPath)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	// Run completion event carries the counts.
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "runs", msgs[0].Topic)
	var event map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	assert.Equal(t, "run-1", event["run_id"])
	assert.Equal(t, "markets", event["keyword"])
	assert.Equal(t, float64(1), event["succeeded"])
}

func TestRunSearchError(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("boom")}
	r, _, _ := newTestRunner(t, searcher, &stubCrawler{}, &stubWriter{}, Config{})

	_, _, err := r.Run(context.Background(), gdelt.Query{Keyword: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "article search")
}

func TestRunStoreFailureIsNotFatal(t *testing.T) {
	searcher := &stubSearcher{articles: []gdelt.Article{{URL: "https://example.com/a"}}}
	crawler := &stubCrawler{records: []crawl.Record{{
		URL:        "https://example.com/a",
		Status:     fetch.StatusSuccess,
		StatusCode: 200,
		Text:       "t",
		TextLength: 1,
	}}}
	writer := &stubWriter{err: errors.New("db down")}
	r, _, _ := newTestRunner(t, searcher, crawler, writer, Config{})

	summary, _, err := r.Run(context.Background(), gdelt.Query{Keyword: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunDropTextlessDump(t *testing.T) {
	searcher := &stubSearcher{articles: []gdelt.Article{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b"},
	}}
	crawler := &stubCrawler{records: []crawl.Record{
		{URL: "https://example.com/a", Status: fetch.StatusSuccess, StatusCode: 200, Text: "t", TextLength: 1},
		{URL: "https://example.com/b", Status: fetch.StatusSuccess, StatusCode: 200},
	}}
	r, _, _ := newTestRunner(t, searcher, crawler, &stubWriter{}, Config{DropTextless: true})

	summary, _, err := r.Run(context.Background(), gdelt.Query{Keyword: "x"})
	require.NoError(t, err)

	loaded, err := sink.LoadRecords(summary.DumpPath)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "https://example.com/a", loaded[0].URL)
}

func TestRunOptionalCollaboratorsNil(t *testing.T) {
	searcher := &stubSearcher{articles: []gdelt.Article{{URL: "https://example.com/a"}}}
	crawler := &stubCrawler{records: []crawl.Record{{
		URL: "https://example.com/a", Status: fetch.StatusSuccess, StatusCode: 200,
		Body: []byte("<html></html>"),
	}}}
	r := New(searcher, crawler, nil, nil, nil, nil,
		stubIDGen{id: "run-2"}, stubClock{now: time.Now()}, Config{}, nil)

	summary, _, err := r.Run(context.Background(), gdelt.Query{Keyword: "x"})
	require.NoError(t, err)
	assert.Equal(t, "run-2", summary.RunID)
	assert.Empty(t, summary.DumpPath)
}
