// Package cache stores small JSON values with an expiry, such as the
// location catalog.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache is a TTL key/value store. A missing, expired, or unreadable entry
// is a miss, not an error.
type Cache interface {
	// Get decodes the entry into v and reports whether it was found.
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options selects a backend.
type Options struct {
	Backend  string // file, memory, redis
	Dir      string
	RedisURL string
}

// Open returns the configured cache.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileCache(opts.Dir), nil
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis cache requires redis_url")
		}
		return NewRedisCache(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// DefaultDir returns $XDG_CACHE_HOME/rocketctl or ~/.cache/rocketctl.
func DefaultDir() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "rocketctl")
}

// entry is the stored form shared by the file and memory backends.
type entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
	Version   int             `json:"version"`
}

// entryVersion is the current on-disk schema version.
const entryVersion = 1

func (e *entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func newEntry(v any, ttl time.Duration, now time.Time) (*entry, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	e := &entry{Value: raw, Version: entryVersion}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e, nil
}
