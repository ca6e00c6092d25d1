package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// fakeTokens hands out "token-N", bumping N on every successful refresh.
type fakeTokens struct {
	gen       atomic.Int32
	refreshes atomic.Int32
	tokenErr  error
	refreshOK bool
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token-" + string(rune('0'+f.gen.Load())), nil
}

func (f *fakeTokens) Refresh(context.Context) (bool, error) {
	f.refreshes.Add(1)
	if !f.refreshOK {
		return false, errors.New("login rejected")
	}
	f.gen.Add(1)
	return true, nil
}

type recorder struct {
	calls atomic.Int32

	mu     sync.Mutex
	tokens []string
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

func newServer(t *testing.T, rec *recorder, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	return newServerWithTokens(t, rec, &fakeTokens{refreshOK: true}, handler)
}

func newServerWithTokens(t *testing.T, rec *recorder, tokens TokenSource, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls.Add(1)
		rec.mu.Lock()
		rec.tokens = append(rec.tokens, r.Header.Get("Authorization"))
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(transport.New(srv.URL+"/v1/"), tokens, nil)
}

func TestRequestAttachesHeaders(t *testing.T) {
	var got http.Header
	var body []byte
	c := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	resp := c.Request(context.Background(), "sites/1", http.MethodPut, map[string]any{"label": "x"}, true)
	require.False(t, resp.Err)
	assert.Equal(t, "Bearer token-0", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.JSONEq(t, `{"label":"x"}`, string(body))
}

func TestRequestPassesRawBodies(t *testing.T) {
	var bodies []string
	c := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
	})

	ctx := context.Background()
	c.Request(ctx, "x", http.MethodPost, []byte(`{"b":2,"a":1}`), true)
	c.Request(ctx, "x", http.MethodPost, json.RawMessage(`{"z":0}`), true)
	assert.Equal(t, []string{`{"b":2,"a":1}`, `{"z":0}`}, bodies)
}

func TestRequestWithoutTokenMakesNoCall(t *testing.T) {
	rec := &recorder{}
	tokens := &fakeTokens{tokenErr: output.ErrMissingCredentials()}
	c := newServerWithTokens(t, rec, tokens, func(w http.ResponseWriter, r *http.Request) {})

	resp := c.Request(context.Background(), "sites", http.MethodGet, nil, true)
	assert.True(t, resp.Err)
	assert.Equal(t, NoTokenMessage, resp.Message)
	assert.Zero(t, rec.calls.Load())

	err := Check(resp)
	assert.True(t, output.HasCode(err, output.CodeAuth), "got %v", err)
}

func TestPermanent401RetriesExactlyOnce(t *testing.T) {
	rec := &recorder{}
	tokens := &fakeTokens{refreshOK: true}
	c := newServerWithTokens(t, rec, tokens, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
	})

	resp := c.Request(context.Background(), "sites", http.MethodGet, nil, true)

	assert.False(t, resp.Err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), tokens.refreshes.Load())
	assert.Equal(t, int32(2), rec.calls.Load())
	assert.Equal(t, []string{"Bearer token-0", "Bearer token-1"}, rec.seen())
}

func TestExpiredTokenRecovers(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"result":[]}`))
	})

	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, c.Get(context.Background(), "sites", nil, &out))
	assert.True(t, out.Success)
	assert.Equal(t, int32(2), rec.calls.Load())
}

func TestNoRetryWhenDisabledOrRefreshFails(t *testing.T) {
	t.Run("retry disabled", func(t *testing.T) {
		rec := &recorder{}
		tokens := &fakeTokens{refreshOK: true}
		c := newServerWithTokens(t, rec, tokens, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		resp := c.Request(context.Background(), "sites", http.MethodGet, nil, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Zero(t, tokens.refreshes.Load())
		assert.Equal(t, int32(1), rec.calls.Load())
	})

	t.Run("refresh fails", func(t *testing.T) {
		rec := &recorder{}
		tokens := &fakeTokens{refreshOK: false}
		c := newServerWithTokens(t, rec, tokens, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		resp := c.Request(context.Background(), "sites", http.MethodGet, nil, true)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, int32(1), tokens.refreshes.Load())
		assert.Equal(t, int32(1), rec.calls.Load())
	})
}

func TestOtherStatusesAreNotRetried(t *testing.T) {
	rec := &recorder{}
	tokens := &fakeTokens{refreshOK: true}
	c := newServerWithTokens(t, rec, tokens, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	resp := c.Request(context.Background(), "sites", http.MethodGet, nil, true)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, tokens.refreshes.Load())
}

func TestGetEncodesQuery(t *testing.T) {
	var rawQuery string
	c := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	})

	q := url.Values{}
	q.Set("page", "2")
	q.Set("per_page", "20")
	require.NoError(t, c.Get(context.Background(), "sites", q, nil))
	assert.Equal(t, "page=2&per_page=20", rawQuery)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		resp *transport.Response
		code string
		msg  string
	}{
		{"transport", transport.Failure("dial tcp: refused"), output.CodeNetwork, "Network error"},
		{"unauthorized", &transport.Response{StatusCode: 401}, output.CodeAuth, "Authentication failed"},
		{"not found", &transport.Response{StatusCode: 404, Body: []byte(`{"message":"Site not found"}`)}, output.CodeNotFound, "Site not found"},
		{"server", &transport.Response{StatusCode: 502, Body: []byte(`<html>`)}, output.CodeAPI, "Request failed (HTTP 502)"},
		{"nested error", &transport.Response{StatusCode: 422, Body: []byte(`{"error":{"message":"domain taken"}}`)}, output.CodeAPI, "domain taken"},
		{"string error", &transport.Response{StatusCode: 400, Body: []byte(`{"error":"bad"}`)}, output.CodeAPI, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.resp)
			e := output.AsError(err)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.msg, e.Message)
		})
	}

	assert.NoError(t, Check(&transport.Response{StatusCode: 204}))
}

func TestDecodeParseFailure(t *testing.T) {
	var v map[string]any
	err := Decode(&transport.Response{StatusCode: 200, Body: []byte(`not json`)}, &v)
	assert.True(t, output.HasCode(err, output.CodeParse))
}
