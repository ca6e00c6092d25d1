// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/wolfdevsllc/rocketctl/internal/api"
	"github.com/wolfdevsllc/rocketctl/internal/auth"
	"github.com/wolfdevsllc/rocketctl/internal/cache"
	"github.com/wolfdevsllc/rocketctl/internal/config"
	"github.com/wolfdevsllc/rocketctl/internal/credstore"
	"github.com/wolfdevsllc/rocketctl/internal/events"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/sites"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Output *output.Writer
	Logger *slog.Logger

	// Services, populated by Connect.
	Store     credstore.Store
	Transport *transport.Client
	Auth      *auth.Manager
	Client    *api.Client
	Cache     cache.Cache
	Events    events.Publisher
	Sites     *sites.Service

	// Flags holds the global flag values
	Flags GlobalFlags

	stderr io.Writer
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON    bool
	Quiet   bool
	Styled  bool
	IDsOnly bool

	// Overrides
	APIURL   string
	Store    string
	CacheDir string

	// Behavior flags
	Verbose int
}

// NewApp creates an App with output and logging configured from cfg.
// Services are not opened until Connect.
func NewApp(cfg *config.Config) *App {
	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	a := &App{
		Config: cfg,
		Output: output.New(output.Options{Format: format, Writer: os.Stdout}),
		stderr: os.Stderr,
	}
	a.Logger = a.newLogger(cfg.Verbose)
	return a
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	switch {
	case a.Flags.IDsOnly:
		a.Output = output.New(output.Options{Format: output.FormatIDs, Writer: os.Stdout})
	case a.Flags.Quiet:
		a.Output = output.New(output.Options{Format: output.FormatQuiet, Writer: os.Stdout})
	case a.Flags.JSON:
		a.Output = output.New(output.Options{Format: output.FormatJSON, Writer: os.Stdout})
	case a.Flags.Styled:
		a.Output = output.New(output.Options{Format: output.FormatStyled, Writer: os.Stdout})
	}

	verbose := a.Flags.Verbose > 0 || a.Config.Verbose
	if debugEnv := os.Getenv("ROCKET_DEBUG"); debugEnv != "" {
		// ROCKET_DEBUG can be "1" or "true"
		if level, err := strconv.Atoi(debugEnv); err == nil && level > 0 {
			verbose = true
		} else if debugEnv == "true" {
			verbose = true
		}
	}
	a.Logger = a.newLogger(verbose)
}

func (a *App) newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
}

// Connect opens the credential store, cache, and event publisher and wires
// the provider services. It is safe to call more than once.
func (a *App) Connect(ctx context.Context) error {
	if a.Sites != nil {
		return nil
	}
	cfg := a.Config

	store, err := credstore.Open(ctx, credstore.Options{
		Backend:     cfg.Store,
		Dir:         config.GlobalConfigDir(),
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		Origin:      cfg.APIURL,
	})
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	c, err := openCache(ctx, cache.Options{
		Backend:  cfg.CacheBackend,
		Dir:      cfg.CacheDir,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open cache: %w", err)
	}

	pub, err := events.Open(events.Options{
		Backend:  cfg.Events,
		RedisURL: cfg.RedisURL,
		Debug:    a.Logger.Enabled(ctx, slog.LevelDebug),
	})
	if err != nil {
		_ = closeCache(c)
		_ = store.Close()
		return fmt.Errorf("open events: %w", err)
	}

	a.Store = store
	a.Cache = c
	a.Events = pub
	a.Transport = transport.New(cfg.APIURL, transport.WithLogger(a.Logger))
	a.Auth = auth.NewManager(store, a.Transport,
		auth.WithCredential(cfg.Email, cfg.Password),
		auth.WithLogger(a.Logger))
	a.Client = api.NewClient(a.Transport, a.Auth, a.Logger)
	a.Sites = sites.NewService(a.Client, sites.Defaults{
		ControlPanelURL: cfg.ControlPanelURL,
		Location:        cfg.DefaultLocation,
		AdminUsername:   cfg.DefaultAdminUsername,
		AccessTokenTTL:  cfg.AccessTokenTTL,
	},
		sites.WithCache(c),
		sites.WithPublisher(pub),
		sites.WithLogger(a.Logger))
	return nil
}

// openCache is replaced in tests.
var openCache = cache.Open

func closeCache(c cache.Cache) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// AccessTokenTTL returns the configured control panel token lifetime.
func (a *App) AccessTokenTTL() time.Duration {
	return time.Duration(a.Config.AccessTokenTTL) * time.Second
}

// Close releases the store and event publisher.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	errs = append(errs, closeCache(a.Cache))
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// OK outputs a success response.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	return a.Output.OK(data, opts...)
}

// Err outputs an error response.
func (a *App) Err(err error) error {
	return a.Output.Err(err)
}

// IsInteractive returns true if the terminal supports interactive prompts.
func (a *App) IsInteractive() bool {
	// Not interactive if any non-interactive output mode is set
	if a.Flags.JSON || a.Flags.Quiet || a.Flags.IDsOnly {
		return false
	}

	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
