package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfdevsllc/rocketctl/internal/credstore"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/tokenbox"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// provider fakes the Rocket.net login and sites endpoints.
type provider struct {
	logins    atomic.Int32
	siteCalls atomic.Int32

	mu          sync.Mutex
	loginStatus int
	loginBody   string
	sitesStatus int
	loginGate   chan struct{}
	lastLogin   map[string]string
}

func newProvider(t *testing.T) (*provider, *transport.Client) {
	t.Helper()
	p := &provider{loginStatus: http.StatusOK, sitesStatus: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/login":
			n := p.logins.Add(1)
			p.mu.Lock()
			gate, status, body := p.loginGate, p.loginStatus, p.loginBody
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			p.lastLogin = req
			p.mu.Unlock()
			if gate != nil {
				<-gate
			}
			if body == "" {
				body = fmt.Sprintf(`{"token":"session-%d"}`, n)
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		case "/v1/sites":
			p.siteCalls.Add(1)
			p.mu.Lock()
			status := p.sitesStatus
			p.mu.Unlock()
			w.WriteHeader(status)
			if status == http.StatusOK {
				_, _ = w.Write([]byte(`{"success":true,"result":[{"id":1}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return p, transport.New(srv.URL + "/v1/")
}

func (p *provider) set(fn func(p *provider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func newManager(t *testing.T, opts ...Option) (*Manager, *provider, *credstore.MemoryStore) {
	t.Helper()
	p, tc := newProvider(t)
	store := credstore.NewMemoryStore()
	opts = append([]Option{WithCredential("ops@example.com", "hunter2")}, opts...)
	return NewManager(store, tc, opts...), p, store
}

func TestLogin(t *testing.T) {
	m, p, _ := newManager(t)

	token, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-1", token)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, map[string]string{"username": "ops@example.com", "password": "hunter2"}, p.lastLogin)
}

func TestLoginMissingCredentials(t *testing.T) {
	p, tc := newProvider(t)
	m := NewManager(credstore.NewMemoryStore(), tc, WithCredential("ops@example.com", ""))

	_, err := m.Login(context.Background())
	assert.True(t, output.HasCode(err, output.CodeMissingCredentials), "got %v", err)
	assert.Zero(t, p.logins.Load())
	assert.False(t, m.HasCredentials(context.Background()))
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rejected", http.StatusUnauthorized, `{"message":"Invalid credentials"}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"invalid json", http.StatusOK, `<html>`},
		{"missing token", http.StatusOK, `{"success":true}`},
		{"empty token", http.StatusOK, `{"token":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, p, _ := newManager(t)
			p.set(func(p *provider) { p.loginStatus, p.loginBody = tt.status, tt.body })

			_, err := m.Login(context.Background())
			assert.True(t, output.HasCode(err, output.CodeLoginFailed), "got %v", err)
		})
	}

	t.Run("transport error", func(t *testing.T) {
		m := NewManager(credstore.NewMemoryStore(), transport.New("http://127.0.0.1:1/v1/"),
			WithCredential("a@b.c", "p"))
		_, err := m.Login(context.Background())
		assert.True(t, output.HasCode(err, output.CodeLoginFailed), "got %v", err)
	})

	t.Run("rejection message is surfaced", func(t *testing.T) {
		m, p, _ := newManager(t)
		p.set(func(p *provider) { p.loginStatus, p.loginBody = 401, `{"message":"Invalid credentials"}` })
		_, err := m.Login(context.Background())
		assert.Contains(t, err.Error(), "Invalid credentials")
	})
}

func TestRefreshPersistsEncryptedToken(t *testing.T) {
	ctx := context.Background()
	m, _, store := newManager(t)

	ok, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	rec, err := store.LoadToken(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rec.Ciphertext, "session-1")

	token, err := tokenbox.Decrypt(rec)
	require.NoError(t, err)
	assert.Equal(t, "session-1", token)
	assert.Equal(t, TokenCached, m.State(ctx))
}

func TestRefreshFailureClearsMaterial(t *testing.T) {
	ctx := context.Background()
	m, p, store := newManager(t)

	ok, err := m.Refresh(ctx)
	require.True(t, ok)
	require.NoError(t, err)

	p.set(func(p *provider) { p.loginStatus = http.StatusUnauthorized })
	ok, err = m.Refresh(ctx)
	assert.False(t, ok)
	assert.True(t, output.HasCode(err, output.CodeLoginFailed))

	_, err = store.LoadToken(ctx)
	assert.ErrorIs(t, err, credstore.ErrNotFound)
	assert.Equal(t, NoToken, m.State(ctx))
}

func TestTokenLogsInWhenMissing(t *testing.T) {
	ctx := context.Background()
	m, p, _ := newManager(t)
	assert.Equal(t, NoToken, m.State(ctx))

	token, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-1", token)

	token, err = m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-1", token, "cached token is reused")
	assert.Equal(t, int32(1), p.logins.Load())
}

func TestTokenRecoversFromTamperedMaterial(t *testing.T) {
	ctx := context.Background()
	m, p, store := newManager(t)

	_, err := m.Token(ctx)
	require.NoError(t, err)

	rec, err := store.LoadToken(ctx)
	require.NoError(t, err)
	raw, err := credstore.DecodeField(rec.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	rec.Ciphertext = credstore.EncodeField(raw)
	require.NoError(t, store.SaveToken(ctx, rec))

	token, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-2", token)
	assert.Equal(t, int32(2), p.logins.Load())
}

func TestTokenFailsWhenLoginFails(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected", func(t *testing.T) {
		m, p, _ := newManager(t)
		p.set(func(p *provider) { p.loginStatus = http.StatusUnauthorized })

		_, err := m.Token(ctx)
		assert.True(t, output.HasCode(err, output.CodeAuth), "got %v", err)
		assert.ErrorIs(t, err, &output.Error{Code: output.CodeLoginFailed})
	})

	t.Run("no credentials", func(t *testing.T) {
		_, tc := newProvider(t)
		m := NewManager(credstore.NewMemoryStore(), tc)

		_, err := m.Token(ctx)
		e := output.AsError(err)
		assert.Equal(t, output.CodeAuth, e.Code)
		assert.Equal(t, "Run: rocketctl config credentials", e.Hint)
	})
}

func TestConcurrentCallersShareOneLogin(t *testing.T) {
	ctx := context.Background()
	m, p, _ := newManager(t)
	gate := make(chan struct{})
	p.set(func(p *provider) { p.loginGate = gate })

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], _ = m.Token(ctx)
		}()
	}

	require.Eventually(t, func() bool { return p.logins.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Refreshing, m.State(ctx))
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), p.logins.Load())
	for _, tok := range tokens {
		assert.Equal(t, "session-1", tok)
	}
}

func TestRefreshUsesFileLock(t *testing.T) {
	ctx := context.Background()
	_, tc := newProvider(t)
	dir := t.TempDir()
	store := credstore.NewFileStore(dir, "https://api.rocket.net")

	m := NewManager(store, tc, WithCredential("a@b.c", "p"), WithLockTimeout(time.Second))
	require.NotNil(t, m.lock)

	ok, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(dir, "refresh.lock"))
	assert.NoError(t, err)
}

func TestCredentialPrecedence(t *testing.T) {
	ctx := context.Background()
	_, tc := newProvider(t)
	store := credstore.NewMemoryStore()
	require.NoError(t, store.SaveCredential(ctx, &credstore.Credential{Email: "stored@example.com", Password: "stored"}))

	m := NewManager(store, tc, WithCredential("config@example.com", ""))
	cred, err := m.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "config@example.com", cred.Email)
	assert.Equal(t, "stored", cred.Password)
	assert.True(t, m.HasCredentials(ctx))
}

func TestSetCredentialClearsToken(t *testing.T) {
	ctx := context.Background()
	_, tc := newProvider(t)
	store := credstore.NewMemoryStore()
	m := NewManager(store, tc)

	require.NoError(t, m.SetCredential(ctx, credstore.Credential{Email: "a@b.c", Password: "p"}))
	_, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, TokenCached, m.State(ctx))

	require.NoError(t, m.SetCredential(ctx, credstore.Credential{Email: "new@b.c", Password: "q"}))
	assert.Equal(t, NoToken, m.State(ctx))

	err = m.SetCredential(ctx, credstore.Credential{Email: "x@y.z"})
	assert.True(t, output.HasCode(err, output.CodeInvalidInput))

	require.NoError(t, m.DeleteCredential(ctx))
	assert.False(t, m.HasCredentials(ctx))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m, _, store := newManager(t)

	_, err := m.Token(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))

	_, err = store.LoadToken(ctx)
	assert.ErrorIs(t, err, credstore.ErrNotFound)
	assert.Equal(t, NoToken, m.State(ctx))
}

func TestTestConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		m, p, _ := newManager(t)
		res := m.TestConnection(ctx)
		assert.True(t, res.Success)
		assert.Equal(t, "Successfully connected to Rocket.net", res.Message)
		assert.NotNil(t, res.Data)
		assert.Equal(t, int32(1), p.siteCalls.Load())
	})

	t.Run("unauthorized is not retried", func(t *testing.T) {
		m, p, _ := newManager(t)
		p.set(func(p *provider) { p.sitesStatus = http.StatusUnauthorized })
		res := m.TestConnection(ctx)
		assert.False(t, res.Success)
		assert.Equal(t, "API error: Unauthenticated.", res.Message)
		assert.Equal(t, int32(1), p.siteCalls.Load())
		assert.Equal(t, int32(1), p.logins.Load())
	})

	t.Run("no credentials", func(t *testing.T) {
		_, tc := newProvider(t)
		m := NewManager(credstore.NewMemoryStore(), tc)
		res := m.TestConnection(ctx)
		assert.False(t, res.Success)
		assert.Equal(t, "Failed to authenticate with Rocket.net", res.Message)
	})
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("provider-secret"))
	require.NoError(t, err)

	info := Inspect(signed)
	require.NotNil(t, info)
	assert.Equal(t, "42", info.Subject)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, exp.Equal(*info.ExpiresAt))
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Minute)))

	assert.Nil(t, Inspect("opaque-session-token"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no_token", NoToken.String())
	assert.Equal(t, "token_cached", TokenCached.String())
	assert.Equal(t, "refreshing", Refreshing.String())
}
