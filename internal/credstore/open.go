package credstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string // keyring, file, sqlite, postgres, redis, memory
	Dir         string // state directory for file and default sqlite paths
	DatabaseURL string
	RedisURL    string
	// Origin scopes records to one provider API, so switching api_url does
	// not reuse another endpoint's token.
	Origin string
}

// Open returns the configured backend. The keyring backend falls back to the
// file backend when no system keyring is reachable or ROCKET_NO_KEYRING is set.
func Open(ctx context.Context, opts Options) (Store, error) {
	origin := Origin(opts.Origin)

	switch opts.Backend {
	case "", "keyring":
		if os.Getenv("ROCKET_NO_KEYRING") == "" && KeyringAvailable() {
			return NewKeyringStore(origin), nil
		}
		if os.Getenv("ROCKET_NO_KEYRING") == "" {
			fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, credentials stored at %s\n",
				filepath.Join(opts.Dir, "credentials.json"))
		}
		return NewFileStore(opts.Dir, origin), nil
	case "file":
		return NewFileStore(opts.Dir, origin), nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path := strings.TrimPrefix(opts.DatabaseURL, "sqlite://")
		if path == "" {
			if err := os.MkdirAll(opts.Dir, 0700); err != nil {
				return nil, err
			}
			path = filepath.Join(opts.Dir, "rocketctl.db")
		}
		return OpenSQLite(ctx, path, origin)
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires database_url")
		}
		return OpenPostgres(ctx, opts.DatabaseURL, origin)
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis store requires redis_url")
		}
		return NewRedisStore(ctx, opts.RedisURL, origin)
	default:
		return nil, fmt.Errorf("unknown credential store %q", opts.Backend)
	}
}

// Origin reduces an API base URL to scheme://host for use as a record key.
func Origin(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(apiURL, "/")
	}
	return u.Scheme + "://" + u.Host
}
