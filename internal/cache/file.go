package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// FileCache keeps one JSON file per key.
type FileCache struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

// NewFileCache creates a file cache in dir, or DefaultDir when dir is empty.
func NewFileCache(dir string) *FileCache {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileCache{dir: dir, now: time.Now}
}

// Dir returns the cache directory path.
func (c *FileCache) Dir() string {
	return c.dir
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

func (c *FileCache) Get(_ context.Context, key string, v any) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Version != entryVersion {
		return false, nil //nolint:nilerr // corrupted or old-format entries are misses
	}
	if e.expired(c.now()) {
		return false, nil
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		return false, nil //nolint:nilerr // value no longer matches the caller's type
	}
	return true, nil
}

func (c *FileCache) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	e, err := newEntry(v, ttl, c.now())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return err
	}

	// Write atomically via temp file
	path := c.path(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (c *FileCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
