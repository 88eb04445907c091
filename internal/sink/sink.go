// Package sink persists crawl output as JSON dumps on the local
// filesystem.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/crawl"
)

// concatenated arrays ("][") show up when runs append to the same dump
// file; joining them with a comma restores a single valid array.
var arrayBoundaryRe = regexp.MustCompile(`\]\s*\[`)

// FileSink writes record dumps atomically: temp file, then rename.
type FileSink struct {
	dir    string
	logger *zap.Logger
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string, logger *zap.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{dir: dir, logger: logger}, nil
}

// SaveRecords writes records to name as a JSON array. An existing file is
// replaced whole; readers never observe a partial dump.
func (s *FileSink) SaveRecords(name string, records []crawl.Record) (string, error) {
	if name == "" {
		return "", fmt.Errorf("dump name is required")
	}
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp dump: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write dump: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close dump: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename dump: %w", err)
	}
	s.logger.Debug("records dumped", zap.String("path", target), zap.Int("records", len(records)))
	return target, nil
}

// LoadRecords reads a dump back, tolerating concatenated JSON arrays left
// behind by older append-style writers.
func LoadRecords(path string) ([]crawl.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dump %s: %w", path, err)
	}
	cleaned := CleanPayload(raw)

	var records []crawl.Record
	if err := json.Unmarshal(cleaned, &records); err != nil {
		return nil, fmt.Errorf("decode dump %s: %w", path, err)
	}
	return records, nil
}

// CleanPayload rewrites concatenated JSON arrays into one array. Empty
// input becomes an empty array.
func CleanPayload(raw []byte) []byte {
	stripped := bytes.TrimSpace(raw)
	if len(stripped) == 0 {
		return []byte("[]")
	}
	return arrayBoundaryRe.ReplaceAll(stripped, []byte(","))
}
