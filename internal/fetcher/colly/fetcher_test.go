package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somonox/findata-crawler/internal/fetch"
)

func TestFetchReturnsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "findata-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), fetch.Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v1"`, resp.Headers.Get("ETag"))
	assert.Equal(t, []byte("<html>hello</html>"), resp.Body)
	assert.Positive(t, resp.Duration)
}

func TestFetchSendsCustomHeadersAndUserAgent(t *testing.T) {
	var gotUA, gotINM string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotINM = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "findata-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), fetch.Request{
		URL:     srv.URL,
		Headers: http.Header{"If-None-Match": {`"v1"`}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Equal(t, "findata-test", gotUA)
	assert.Equal(t, `"v1"`, gotINM)
}

func TestFetchNon2xxIsDataNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), fetch.Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestFetchTransportErrorSurfaces(t *testing.T) {
	// Reserve a port, then close it so the connect fails fast.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), fetch.Request{URL: url})
	assert.Error(t, err)
}
