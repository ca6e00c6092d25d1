package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func backends(t *testing.T, clk *clock) map[string]Cache {
	t.Helper()
	fc := NewFileCache(t.TempDir())
	fc.now = clk.now
	mc := NewMemoryCache()
	mc.now = clk.now
	return map[string]Cache{"file": fc, "memory": mc}
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	for name, c := range backends(t, clk) {
		t.Run(name, func(t *testing.T) {
			want := []item{{21, "US - Ashburn"}, {4, "GB-UKM - London"}}
			require.NoError(t, c.Set(ctx, "locations", want, time.Hour))

			var got []item
			ok, err := c.Get(ctx, "locations", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			clk.t = clk.t.Add(59 * time.Minute)
			ok, _ = c.Get(ctx, "locations", &got)
			assert.True(t, ok)

			clk.t = clk.t.Add(time.Minute)
			ok, err = c.Get(ctx, "locations", &got)
			require.NoError(t, err)
			assert.False(t, ok, "entry expires at its ttl")
		})
	}
}

func TestCacheMissAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t, &clock{t: time.Now()}) {
		t.Run(name, func(t *testing.T) {
			var v item
			ok, err := c.Get(ctx, "missing", &v)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "k", item{1, "a"}, 0))
			require.NoError(t, c.Delete(ctx, "k"))
			ok, _ = c.Get(ctx, "k", &v)
			assert.False(t, ok)

			assert.NoError(t, c.Delete(ctx, "never-set"))
		})
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "locations.json"), []byte("{oops"), 0600))

	var v []item
	ok, err := c.Get(context.Background(), "locations", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCacheSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir)
	require.NoError(t, c.Set(context.Background(), "https://api.rocket.net/locations", 1, 0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https___api.rocket.net_locations.json", entries[0].Name())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = Open(ctx, Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileCache{}, c)

	_, err = Open(ctx, Options{Backend: "redis"})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Backend: "memcached"})
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("ROCKET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ROCKET_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	key := "test:" + t.Name()
	require.NoError(t, c.Set(ctx, key, item{7, "DE - Frankfurt"}, time.Minute))
	var got item
	ok, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, item{7, "DE - Frankfurt"}, got)
	require.NoError(t, c.Delete(ctx, key))
}
