package llmk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/llmk/gguf-engine/util/osx"
	"github.com/llmk/gguf-engine/util/stringx"
)

var (
	ErrFetchCacheDisabled = errors.New("fetch cache disabled")
	ErrFetchCacheMissed   = errors.New("fetch cache missed")
)

// FetchCache is a flat, content-addressed directory of previously
// downloaded GGUF files, used by cmd/llmk-fetch so repeated runs against
// the same URL do not re-download. Adapted from the teacher's GGUFFileCache,
// which cached parsed metadata rather than raw bytes — this engine instead
// caches the downloaded file itself, since the plan/summary are cheap to
// rebuild locally once the bytes are on disk.
type FetchCache string

func (c FetchCache) keyPath(url string) string {
	k := stringx.SumByFNV64a(url)
	return filepath.Join(string(c), k[:2], k)
}

// Path returns the cached file path for url if it exists and is within
// exp of now (exp == 0 disables expiry), or ErrFetchCacheMissed.
func (c FetchCache) Path(url string, exp time.Duration) (string, error) {
	if c == "" {
		return "", ErrFetchCacheDisabled
	}
	p := c.keyPath(url)
	if !osx.Exists(p, func(stat os.FileInfo) bool {
		if !stat.Mode().IsRegular() {
			return false
		}
		return exp == 0 || time.Since(stat.ModTime()) < exp
	}) {
		return "", ErrFetchCacheMissed
	}
	return p, nil
}

// Put stores body under url's cache key, creating parent directories as
// needed.
func (c FetchCache) Put(url string, body []byte) (string, error) {
	if c == "" {
		return "", ErrFetchCacheDisabled
	}
	p := c.keyPath(url)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("fetch cache put: %w", err)
	}
	if err := os.WriteFile(p, body, 0o600); err != nil {
		return "", fmt.Errorf("fetch cache put: %w", err)
	}
	return p, nil
}
