// Package api provides the authenticated client for the Rocket.net API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// NoTokenMessage is the Message of the Response returned when no session
// token could be obtained.
const NoTokenMessage = "No authentication token available"

// TokenSource supplies and renews the provider session token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (bool, error)
}

// Client attaches the session token to provider requests and recovers from
// one expired token per request.
type Client struct {
	transport *transport.Client
	tokens    TokenSource
	logger    *slog.Logger
}

// NewClient creates a new API client.
func NewClient(tc *transport.Client, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{transport: tc, tokens: tokens, logger: logger}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Client {
	return c.transport
}

// Request performs an authenticated call. A structured body is encoded as
// JSON; []byte and json.RawMessage are sent as-is.
//
// A 401 with retryOn401 set triggers one token refresh and, if that succeeds,
// exactly one more attempt with retryOn401 cleared. The response is otherwise
// returned unchanged, so a provider that always answers 401 yields the second
// 401 rather than a loop.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any, retryOn401 bool) *transport.Response {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		c.logger.Debug("no session token", "endpoint", endpoint, "error", err)
		return transport.Failure(NoTokenMessage)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return transport.Failure(fmt.Sprintf("failed to encode request body: %v", err))
	}

	resp := c.transport.Do(ctx, transport.Request{
		Endpoint: endpoint,
		Method:   method,
		Header: http.Header{
			"Authorization": {"Bearer " + token},
			"Accept":        {"application/json"},
			"Content-Type":  {"application/json"},
		},
		Body: payload,
	})

	if !resp.Err && resp.StatusCode == http.StatusUnauthorized && retryOn401 {
		c.logger.Info("received 401, refreshing token and retrying", "endpoint", endpoint)
		if ok, _ := c.tokens.Refresh(ctx); ok {
			return c.Request(ctx, endpoint, method, body, false)
		}
	}

	return resp
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

// Get performs an authenticated GET and decodes the body into v.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, v any) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return Decode(c.Request(ctx, endpoint, http.MethodGet, nil, true), v)
}

// Post performs an authenticated POST and decodes the body into v.
func (c *Client) Post(ctx context.Context, endpoint string, body, v any) error {
	return Decode(c.Request(ctx, endpoint, http.MethodPost, body, true), v)
}

// Put performs an authenticated PUT and decodes the body into v.
func (c *Client) Put(ctx context.Context, endpoint string, body, v any) error {
	return Decode(c.Request(ctx, endpoint, http.MethodPut, body, true), v)
}

// Delete performs an authenticated DELETE and decodes the body into v.
func (c *Client) Delete(ctx context.Context, endpoint string, v any) error {
	return Decode(c.Request(ctx, endpoint, http.MethodDelete, nil, true), v)
}

// Decode checks resp and, when it is a 2xx, decodes its body into v.
// A nil v skips decoding.
func Decode(resp *transport.Response, v any) error {
	if err := Check(resp); err != nil {
		return err
	}
	if v == nil || len(resp.Body) == 0 {
		return nil
	}
	return transport.Parse(resp, v)
}

// Check converts a failed response into a typed error.
func Check(resp *transport.Response) error {
	if resp == nil {
		return output.ErrNetwork(errors.New("no response"))
	}
	if resp.Err {
		if resp.Message == NoTokenMessage {
			return output.ErrAuth(NoTokenMessage)
		}
		return output.ErrNetwork(errors.New(resp.Message))
	}
	if transport.Successful(resp) {
		return nil
	}

	msg := ErrorMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return output.ErrAuth(firstNonEmpty(msg, "Authentication failed"))
	case http.StatusNotFound:
		e := output.ErrAPI(http.StatusNotFound, firstNonEmpty(msg, "Resource not found"))
		e.Code = output.CodeNotFound
		return e
	default:
		return output.ErrAPI(resp.StatusCode, firstNonEmpty(msg, fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode)))
	}
}

// ErrorMessage extracts the provider's error text from a response body.
func ErrorMessage(body []byte) string {
	var apiErr struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &apiErr) != nil {
		return ""
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	for _, raw := range []json.RawMessage{apiErr.Error, apiErr.Errors} {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return ""
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
