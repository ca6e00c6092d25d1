package appctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/wolfdevsllc/rocketctl/internal/cache"
	"github.com/wolfdevsllc/rocketctl/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store = "memory"
	cfg.CacheBackend = "memory"
	cfg.CacheDir = t.TempDir()
	return cfg
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t)
	app := NewApp(cfg)

	if app == nil {
		t.Fatal("NewApp returned nil")
	}
	if app.Config != cfg {
		t.Error("Config not set correctly")
	}
	if app.Output == nil {
		t.Error("Output writer not initialized")
	}
	if app.Logger == nil {
		t.Error("Logger not initialized")
	}
	if app.Sites != nil {
		t.Error("services should not be wired before Connect")
	}
}

func TestConnect(t *testing.T) {
	app := NewApp(testConfig(t))
	ctx := context.Background()

	if err := app.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer app.Close()

	if app.Store == nil || app.Store.Name() != "memory" {
		t.Errorf("Store = %v, want memory backend", app.Store)
	}
	if app.Auth == nil || app.Client == nil || app.Sites == nil || app.Transport == nil {
		t.Error("provider services not wired")
	}
	if got := app.Transport.BaseURL(); got != config.DefaultAPIURL {
		t.Errorf("BaseURL = %q, want %q", got, config.DefaultAPIURL)
	}
	if got := app.Sites.Defaults().Location; got != config.DefaultLocation {
		t.Errorf("default location = %d", got)
	}

	sites := app.Sites
	if err := app.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if app.Sites != sites {
		t.Error("Connect should be idempotent")
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheBackend = "floppy"
	app := NewApp(cfg)
	if err := app.Connect(context.Background()); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

type closingCache struct {
	cache.Cache
	closed bool
}

func (c *closingCache) Close() error {
	c.closed = true
	return nil
}

func TestConnectClosesCacheWhenEventsFail(t *testing.T) {
	fake := &closingCache{Cache: cache.NewMemoryCache()}
	orig := openCache
	openCache = func(context.Context, cache.Options) (cache.Cache, error) { return fake, nil }
	defer func() { openCache = orig }()

	cfg := testConfig(t)
	cfg.Events = "redis"
	cfg.RedisURL = ""
	app := NewApp(cfg)

	if err := app.Connect(context.Background()); err == nil {
		t.Fatal("expected error for redis events without redis_url")
	}
	if !fake.closed {
		t.Error("cache should be closed when events fail to open")
	}
	if app.Sites != nil || app.Cache != nil {
		t.Error("services should stay unset after a failed Connect")
	}
}

func TestWithAppAndFromContext(t *testing.T) {
	app := NewApp(testConfig(t))

	ctx := context.Background()
	ctxWithApp := WithApp(ctx, app)

	retrieved := FromContext(ctxWithApp)
	if retrieved != app {
		t.Error("FromContext did not retrieve the same app")
	}
}

func TestFromContextEmpty(t *testing.T) {
	ctx := context.Background()
	app := FromContext(ctx)
	if app != nil {
		t.Error("expected nil from empty context")
	}
}

func TestApplyFlagsVerboseEnablesDebug(t *testing.T) {
	t.Setenv("ROCKET_DEBUG", "")
	var buf bytes.Buffer
	app := NewApp(testConfig(t))
	app.stderr = &buf

	app.ApplyFlags()
	if app.Logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug logging should be off by default")
	}

	app.Flags.Verbose = 1
	app.ApplyFlags()
	app.Logger.Debug("hello")
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("expected debug line on stderr, got %q", buf.String())
	}
}

func TestApplyFlagsDebugEnv(t *testing.T) {
	t.Setenv("ROCKET_DEBUG", "true")
	app := NewApp(testConfig(t))
	app.ApplyFlags()
	if !app.Logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("ROCKET_DEBUG=true should enable debug logging")
	}
}

func TestApplyFlagsJSON(t *testing.T) {
	app := NewApp(testConfig(t))
	app.Flags.JSON = true
	app.ApplyFlags()
	if app.Output == nil {
		t.Error("Output should be set after ApplyFlags")
	}
	if app.IsInteractive() {
		t.Error("JSON output is never interactive")
	}
}
