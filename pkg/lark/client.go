// Package lark is a small client for the Lark Open API: tenant tokens, the
// OIDC login exchange and Bitable records.
package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL      = "https://open.larksuite.com/open-apis"
	DefaultAuthorizeURL = "https://open.larksuite.com/open-apis/authen/v1/authorize"

	// LoginScope is requested on the authorization redirect.
	LoginScope = "contact:user.id:readonly"
)

// Client talks to one Lark Open API deployment. It holds no credentials;
// tokens are passed into each call.
type Client struct {
	baseURL      string
	authorizeURL string
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAuthorizeURL overrides the user authorization endpoint.
func WithAuthorizeURL(u string) Option {
	return func(c *Client) { c.authorizeURL = u }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the public Lark endpoints unless overridden.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		authorizeURL: DefaultAuthorizeURL,
		httpClient:   http.DefaultClient,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response shape: code 0 means success.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`

	// Only set by tenant token issuance, which answers outside of data.
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"`
}

// bearer returns an HTTP client that authenticates every request with token.
func (c *Client) bearer(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// do sends a JSON request and decodes the envelope. A non-zero code is not an
// error here; callers turn it into the error type of their operation.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: unexpected response (HTTP %d): %w", method, path, resp.StatusCode, err)
	}

	c.logger.Debug("lark request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"code", env.Code,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &env, nil
}
