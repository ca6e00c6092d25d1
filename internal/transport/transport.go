// Package transport performs raw HTTP exchanges with the provider API.
//
// Transport failures and HTTP responses share one Response shape: a failed
// exchange is a value with Err set, never a panic or a Go error.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfdevsllc/rocketctl/internal/hostutil"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/version"
)

const (
	// DefaultTimeout is the total time allowed for one exchange.
	DefaultTimeout = 30 * time.Second
	// MaxRedirects is the redirect limit per exchange.
	MaxRedirects = 10
	// maxBodySize caps how much of a response body is read.
	maxBodySize = 10 << 20
)

// Request describes one provider API call. Endpoint is relative to the base URL.
type Request struct {
	Endpoint string
	Method   string
	Header   http.Header
	Body     []byte
}

// Response is the outcome of one exchange.
type Response struct {
	// Err is true when no HTTP response was obtained.
	Err        bool
	StatusCode int
	Body       []byte
	Header     http.Header
	// Message describes a transport failure.
	Message string
}

// Failure builds a transport-failure Response.
func Failure(msg string) *Response {
	return &Response{Err: true, Message: msg}
}

// Successful reports a transport success with a 2xx status.
func Successful(resp *Response) bool {
	return resp != nil && !resp.Err && resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Parse decodes the JSON body into v.
func Parse(resp *Response, v any) error {
	if resp == nil {
		return output.ErrNetwork(errors.New("no response"))
	}
	if resp.Err {
		return output.ErrNetwork(errors.New(resp.Message))
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return output.ErrParse(err)
	}
	return nil
}

// Client sends requests to one provider base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    hostutil.BaseURL(baseURL),
		httpClient: NewHTTPClient(DefaultTimeout),
		userAgent:  version.UserAgent(),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns an HTTP/1.1-only client with the given timeout and
// the redirect limit.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}

// BaseURL returns the normalized base URL (with trailing slash).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins the base URL and an endpoint, trimming the endpoint's leading slashes.
func (c *Client) URL(endpoint string) string {
	return c.baseURL + strings.TrimLeft(endpoint, "/")
}

// Do performs the exchange. Any HTTP status is a transport success.
func (c *Client) Do(ctx context.Context, req Request) *Response {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	url := c.URL(req.Endpoint)

	var body io.Reader
	if len(req.Body) > 0 && hasBody(method) {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return c.fail(method, url, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.fail(method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		r := c.fail(method, url, fmt.Errorf("read response: %w", err))
		r.StatusCode = resp.StatusCode
		return r
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}
	c.logExchange(method, url, requestID, out, time.Since(start))
	return out
}

// hasBody reports whether method carries a request body.
func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func (c *Client) fail(method, url string, err error) *Response {
	c.logger.Debug("provider request failed", "method", method, "url", url, "error", err)
	return Failure(err.Error())
}

// logExchange logs method, URL, status, and the body's success flag when present.
func (c *Client) logExchange(method, url, requestID string, resp *Response, elapsed time.Duration) {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", elapsed.Round(time.Millisecond),
	}
	var flag struct {
		Success *bool `json:"success"`
	}
	if json.Unmarshal(resp.Body, &flag) == nil && flag.Success != nil {
		attrs = append(attrs, "success", *flag.Success)
	}
	c.logger.Debug("provider request", attrs...)
}
