package climdata

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"epiclim/internal"
	"epiclim/internal/errors"
)

// FileCache stores processed dataset files keyed by name. It is caller-owned
// state with delete-on-overwrite eviction: requesting the write path for an
// existing key removes the stale file first.
type FileCache struct {
	dir     string
	logger  *internal.Logger
	lookups *prometheus.CounterVec
}

// NewFileCache creates a cache rooted at dir, creating it if needed.
func NewFileCache(dir string, logger *internal.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating cache directory")
	}
	return &FileCache{dir: dir, logger: logger}, nil
}

// Dir returns the cache root.
func (c *FileCache) Dir() string { return c.dir }

// WithLookupMetric attaches a hit/miss counter (labeled by result).
func (c *FileCache) WithLookupMetric(lookups *prometheus.CounterVec) *FileCache {
	c.lookups = lookups
	return c
}

// Lookup returns the path for a cached key, if present.
func (c *FileCache) Lookup(key string) (string, bool) {
	path := c.path(key)
	if _, err := os.Stat(path); err != nil {
		c.count("miss")
		return "", false
	}
	c.count("hit")
	return path, true
}

// WritePath returns the path a new entry for key should be written to,
// evicting any existing entry first.
func (c *FileCache) WritePath(key string) (string, error) {
	path := c.path(key)
	if _, err := os.Stat(path); err == nil {
		c.logger.Debug("Evicting cached file %s", path)
		if err := os.Remove(path); err != nil {
			return "", errors.Wrap(err, "evicting cached file")
		}
	}
	return path, nil
}

// Remove deletes a cached entry if present.
func (c *FileCache) Remove(key string) error {
	path := c.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing cached file")
	}
	return nil
}

// Keys lists the cached keys.
func (c *FileCache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing cache directory")
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".nc") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), ".nc"))
	}
	return keys, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".nc")
}

func (c *FileCache) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
