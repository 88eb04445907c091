package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one cached response: the metadata record plus the raw body bytes
// as they arrived over the wire.
type Entry struct {
	URL          string      `json:"url"`
	StoredAt     int64       `json:"stored_at"`
	StatusCode   int         `json:"status"`
	Headers      http.Header `json:"headers"`
	ETag         string      `json:"etag,omitempty"`
	LastModified string      `json:"last_modified,omitempty"`
	Body         []byte      `json:"-"`
}

// StorageError marks cache-medium failures so callers can tell them apart
// from a plain miss.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is a durable URL-keyed response cache. One entry per URL, stored as
// a metadata JSON file plus a body file, both written via tmp + atomic
// rename (body first, metadata last) so a reader never observes a partial
// entry: a crash mid-write leaves at worst the previous fully-valid entry.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Key derives the fixed-length, filesystem-safe cache key for a URL.
// The digest is over the exact URL string, case and query preserved.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *Store) metaPath(key string) string {
	return filepath.Join(s.dir, key+".meta.json")
}

func (s *Store) bodyPath(key string) string {
	return filepath.Join(s.dir, key+".body")
}

// Get loads the entry for url. A missing entry returns (Entry{}, false, nil);
// a storage-medium failure returns a *StorageError.
func (s *Store) Get(url string) (Entry, bool, error) {
	key := Key(url)
	meta, err := os.ReadFile(s.metaPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &StorageError{Op: "read meta", Key: key, Err: err}
	}
	var entry Entry
	if err := json.Unmarshal(meta, &entry); err != nil {
		return Entry{}, false, &StorageError{Op: "decode meta", Key: key, Err: err}
	}
	body, err := os.ReadFile(s.bodyPath(key))
	if errors.Is(err, os.ErrNotExist) {
		// Metadata without a body never survives a completed Put; treat as miss.
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &StorageError{Op: "read body", Key: key, Err: err}
	}
	entry.Body = body
	return entry, true, nil
}

// Put stores (or overwrites) the entry for url. Body is renamed into place
// before metadata, so metadata on disk always refers to a complete body.
func (s *Store) Put(url string, entry Entry) error {
	key := Key(url)
	entry.URL = url

	bodyTmp, err := s.writeTemp(key, ".body.tmp", entry.Body)
	if err != nil {
		return &StorageError{Op: "write body", Key: key, Err: err}
	}
	meta, err := json.Marshal(entry)
	if err != nil {
		removeQuiet(bodyTmp)
		return &StorageError{Op: "encode meta", Key: key, Err: err}
	}
	metaTmp, err := s.writeTemp(key, ".meta.tmp", meta)
	if err != nil {
		removeQuiet(bodyTmp)
		return &StorageError{Op: "write meta", Key: key, Err: err}
	}

	if err := os.Rename(bodyTmp, s.bodyPath(key)); err != nil {
		removeQuiet(bodyTmp)
		removeQuiet(metaTmp)
		return &StorageError{Op: "rename body", Key: key, Err: err}
	}
	if err := os.Rename(metaTmp, s.metaPath(key)); err != nil {
		removeQuiet(metaTmp)
		return &StorageError{Op: "rename meta", Key: key, Err: err}
	}
	return nil
}

func (s *Store) writeTemp(key, suffix string, data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, key+suffix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		removeQuiet(name)
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		removeQuiet(name)
		return "", fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		removeQuiet(name)
		return "", fmt.Errorf("close temp: %w", err)
	}
	return name, nil
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}
