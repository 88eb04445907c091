package fetch

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMissOnEmptyDir(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get("https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	url := "https://example.com/report?page=2"
	in := Entry{
		StoredAt:     1700000000,
		StatusCode:   200,
		Headers:      http.Header{"Content-Type": {"text/html"}},
		ETag:         `"abc123"`,
		LastModified: "Wed, 21 Oct 2015 07:28:00 GMT",
		Body:         []byte("<html><body>hello</body></html>"),
	}
	require.NoError(t, store.Put(url, in))

	out, ok, err := store.Get(url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, url, out.URL)
	assert.Equal(t, in.StoredAt, out.StoredAt)
	assert.Equal(t, in.ETag, out.ETag)
	assert.Equal(t, in.LastModified, out.LastModified)
	assert.Equal(t, "text/html", out.Headers.Get("Content-Type"))
	assert.Equal(t, in.Body, out.Body)
}

func TestStoreOverwriteReplacesEntry(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	url := "https://example.com/a"
	require.NoError(t, store.Put(url, Entry{StoredAt: 1, Body: []byte("old")}))
	require.NoError(t, store.Put(url, Entry{StoredAt: 2, Body: []byte("new")}))

	out, ok, err := store.Get(url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), out.StoredAt)
	assert.Equal(t, []byte("new"), out.Body)
}

func TestStoreKeyIsStableAndDistinct(t *testing.T) {
	a := Key("https://example.com/a")
	b := Key("https://example.com/a?x=1")
	assert.Equal(t, a, Key("https://example.com/a"))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestStoreMetaWithoutBodyIsMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	url := "https://example.com/a"
	require.NoError(t, store.Put(url, Entry{StoredAt: 1, Body: []byte("x")}))
	require.NoError(t, os.Remove(filepath.Join(dir, Key(url)+".body")))

	_, ok, err := store.Get(url)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCorruptMetaIsStorageError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	url := "https://example.com/a"
	require.NoError(t, store.Put(url, Entry{StoredAt: 1, Body: []byte("x")}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, Key(url)+".meta.json"), []byte("{not json"), 0o600))

	_, _, err = store.Get(url)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "decode meta", se.Op)
}

func TestSanitizeHeadersStripsEncodingHeaders(t *testing.T) {
	h := http.Header{
		"Content-Encoding":  {"gzip"},
		"Transfer-Encoding": {"chunked"},
		"Content-Length":    {"123"},
		"Content-Type":      {"text/html"},
		"Etag":              {`"abc"`},
	}
	out := SanitizeHeaders(h)
	assert.Empty(t, out.Get("Content-Encoding"))
	assert.Empty(t, out.Get("Transfer-Encoding"))
	assert.Empty(t, out.Get("Content-Length"))
	assert.Equal(t, "text/html", out.Get("Content-Type"))
	assert.Equal(t, `"abc"`, out.Get("ETag"))
	// The original must be untouched.
	assert.Equal(t, "gzip", h.Get("Content-Encoding"))
}
