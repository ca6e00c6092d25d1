// Package auth manages the Rocket.net session token: login, encrypted
// caching, and transparent refresh.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/wolfdevsllc/rocketctl/internal/api"
	"github.com/wolfdevsllc/rocketctl/internal/credstore"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/resilience"
	"github.com/wolfdevsllc/rocketctl/internal/tokenbox"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// State is the token lifecycle state.
type State int

const (
	NoToken State = iota
	TokenCached
	Refreshing
)

func (s State) String() string {
	switch s {
	case TokenCached:
		return "token_cached"
	case Refreshing:
		return "refreshing"
	default:
		return "no_token"
	}
}

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Manager owns login, token retrieval, and token invalidation for one
// credential store.
type Manager struct {
	store     credstore.Store
	box       *tokenbox.Box
	transport *transport.Client
	static    credstore.Credential
	lock      *resilience.Lock
	logger    *slog.Logger

	group      singleflight.Group
	refreshing atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCredential sets credentials from configuration. Non-empty fields take
// precedence over the credential store.
func WithCredential(email, password string) Option {
	return func(m *Manager) {
		m.static = credstore.Credential{Email: email, Password: password}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLockTimeout overrides how long a refresh waits for another process.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if m.lock != nil {
			m.lock = resilience.NewLock(m.lock.Path(), d)
		}
	}
}

// NewManager creates a new auth manager. Stores that live on the local
// filesystem also serialize refresh across processes.
func NewManager(store credstore.Store, tc *transport.Client, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		box:       tokenbox.New(store),
		transport: tc,
		logger:    slog.New(slog.DiscardHandler),
	}
	if l, ok := store.(credstore.Locker); ok {
		m.lock = resilience.NewLock(l.LockPath(), 0)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the credential store.
func (m *Manager) Store() credstore.Store {
	return m.store
}

// Credential returns the effective provider credential.
func (m *Manager) Credential(ctx context.Context) (credstore.Credential, error) {
	cred := m.static
	if cred.Complete() {
		return cred, nil
	}
	stored, err := m.store.LoadCredential(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return cred, nil
	}
	if err != nil {
		return cred, fmt.Errorf("load credential: %w", err)
	}
	if cred.Email == "" {
		cred.Email = stored.Email
	}
	if cred.Password == "" {
		cred.Password = stored.Password
	}
	return cred, nil
}

// HasCredentials reports whether both email and password are configured.
func (m *Manager) HasCredentials(ctx context.Context) bool {
	cred, err := m.Credential(ctx)
	return err == nil && cred.Complete()
}

// SetCredential stores new credentials. The cached token belongs to the old
// account, so it is cleared.
func (m *Manager) SetCredential(ctx context.Context, cred credstore.Credential) error {
	if !cred.Complete() {
		return output.ErrInvalidInput("email and password are required")
	}
	if err := m.store.SaveCredential(ctx, &cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return m.Clear(ctx)
}

// DeleteCredential removes stored credentials and the cached token.
func (m *Manager) DeleteCredential(ctx context.Context) error {
	if err := m.store.DeleteCredential(ctx); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return m.Clear(ctx)
}

// Login exchanges the configured credentials for a session token. The token
// is not persisted.
func (m *Manager) Login(ctx context.Context) (string, error) {
	cred, err := m.Credential(ctx)
	if err != nil {
		return "", err
	}
	if !cred.Complete() {
		m.logger.Error("Rocket.net credentials not configured")
		return "", output.ErrMissingCredentials()
	}

	body, err := json.Marshal(map[string]string{
		"username": cred.Email,
		"password": cred.Password,
	})
	if err != nil {
		return "", output.ErrLoginFailed("failed to encode login request", err)
	}

	resp := m.transport.Do(ctx, transport.Request{
		Endpoint: "login",
		Method:   http.MethodPost,
		Header: http.Header{
			"Accept":       {"application/json"},
			"Content-Type": {"application/json"},
		},
		Body: body,
	})
	if resp.Err {
		m.logger.Error("login failed", "error", resp.Message)
		return "", output.ErrLoginFailed("Login request failed: "+resp.Message, errors.New(resp.Message))
	}
	if !transport.Successful(resp) {
		msg := api.ErrorMessage(resp.Body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		m.logger.Error("login rejected", "status", resp.StatusCode, "message", msg)
		e := output.ErrLoginFailed(fmt.Sprintf("Login rejected (HTTP %d): %s", resp.StatusCode, msg), nil)
		e.HTTPStatus = resp.StatusCode
		return "", e
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := transport.Parse(resp, &data); err != nil {
		m.logger.Error("login parse error", "error", err)
		return "", output.ErrLoginFailed("Login response was not valid JSON", err)
	}
	if data.Token == "" {
		m.logger.Error("login response missing token")
		return "", output.ErrLoginFailed("Login response did not include a token", nil)
	}
	return data.Token, nil
}

// Refresh logs in and persists the new token. On failure all token material
// is cleared and false is returned with the cause.
//
// Concurrent callers share one login; callers in other processes using the
// same on-disk store wait on a file lock.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err == nil, err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	if m.lock != nil {
		release, acquired, err := m.lock.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
		if !acquired {
			m.logger.Warn("refresh lock timed out, continuing unlocked", "path", m.lock.Path())
		}
	}

	m.logger.Info("refreshing Rocket.net API token")

	token, err := m.Login(ctx)
	if err != nil {
		if cerr := m.box.Clear(ctx); cerr != nil {
			m.logger.Warn("failed to clear token material", "error", cerr)
		}
		return err
	}

	if _, err := m.box.Seal(ctx, token); err != nil {
		m.logger.Error("failed to encrypt token", "error", err)
		if cerr := m.box.Clear(ctx); cerr != nil {
			m.logger.Warn("failed to clear token material", "error", cerr)
		}
		return err
	}

	m.logger.Info("Rocket.net API token refreshed")
	return nil
}

// Token returns the decrypted session token. Missing or undecryptable
// material triggers one refresh.
func (m *Manager) Token(ctx context.Context) (string, error) {
	token, err := m.box.Open(ctx)
	if err == nil {
		return token, nil
	}
	if !output.HasCode(err, output.CodeMissingMaterial) && !output.HasCode(err, output.CodeCipherAuth) {
		return "", err
	}
	if output.HasCode(err, output.CodeCipherAuth) {
		m.logger.Warn("failed to decrypt token, refreshing", "error", err)
	}

	if ok, rerr := m.Refresh(ctx); !ok {
		return "", authRequired(rerr)
	}

	token, err = m.box.Open(ctx)
	if err != nil {
		return "", authRequired(err)
	}
	return token, nil
}

// OpenCached decrypts the cached token without logging in.
func (m *Manager) OpenCached(ctx context.Context) (string, error) {
	return m.box.Open(ctx)
}

// authRequired wraps cause so the caller sees auth_required, keeping the
// cause's hint when it has one.
func authRequired(cause error) error {
	e := output.ErrAuth(api.NoTokenMessage)
	e.Cause = cause
	var ce *output.Error
	if errors.As(cause, &ce) {
		e.Message = api.NoTokenMessage + ": " + ce.Message
		if ce.Hint != "" && ce.Code == output.CodeMissingCredentials {
			e.Hint = ce.Hint
		}
	}
	return e
}

// Clear deletes the cached token and its cipher material.
func (m *Manager) Clear(ctx context.Context) error {
	return m.box.Clear(ctx)
}

// State reports the current lifecycle state.
func (m *Manager) State(ctx context.Context) State {
	if m.refreshing.Load() {
		return Refreshing
	}
	rec, err := m.store.LoadToken(ctx)
	if err != nil || !rec.Complete() {
		return NoToken
	}
	return TokenCached
}

// TestConnection obtains a token and makes one read-only call without the
// 401 retry.
func (m *Manager) TestConnection(ctx context.Context) ConnectionResult {
	if _, err := m.Token(ctx); err != nil {
		m.logger.Debug("test connection: no token", "error", err)
		return ConnectionResult{Message: "Failed to authenticate with Rocket.net"}
	}

	client := api.NewClient(m.transport, m, m.logger)
	resp := client.Request(ctx, "sites", http.MethodGet, nil, false)
	if resp.Err {
		return ConnectionResult{Message: "Connection failed: " + resp.Message}
	}

	var data any
	if err := transport.Parse(resp, &data); err != nil {
		return ConnectionResult{Message: "API error: " + output.AsError(err).Message}
	}
	if !transport.Successful(resp) {
		msg := api.ErrorMessage(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return ConnectionResult{Message: "API error: " + msg}
	}

	return ConnectionResult{
		Success: true,
		Message: "Successfully connected to Rocket.net",
		Data:    data,
	}
}

// TokenInfo holds unverified claims from a JWT session token, for display.
type TokenInfo struct {
	Subject   string     `json:"subject,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether ExpiresAt is set and in the past.
func (i *TokenInfo) Expired(now time.Time) bool {
	return i != nil && i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// Inspect decodes a session token's claims without verifying its signature.
// Opaque tokens return nil. The result is never used for refresh decisions.
func Inspect(token string) *TokenInfo {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	info := &TokenInfo{Subject: claims.Subject, Issuer: claims.Issuer}
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time
		info.IssuedAt = &t
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		info.ExpiresAt = &t
	}
	return info
}
