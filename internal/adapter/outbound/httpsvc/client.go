// Package httpsvc provides clients for the backends reached over plain HTTP.
package httpsvc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
)

// maxResponseBodySize caps how much of a backend response is buffered.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// StatusError is a non-2xx answer from an HTTP backend.
type StatusError struct {
	Service    string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if d := e.Detail(); d != "" {
		return fmt.Sprintf("%s responded %d: %s", e.Service, e.StatusCode, d)
	}
	return fmt.Sprintf("%s responded %d", e.Service, e.StatusCode)
}

// Detail returns the backend's "detail" message, if the body carries one.
// A list of validation entries is joined with "; ".
func (e *StatusError) Detail() string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, en := range entries {
			if en.Msg != "" {
				msgs = append(msgs, en.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// AsAPIError maps an HTTP backend failure to the uniform error: a backend
// status is kept with its detail message, a deadline becomes 504, a
// cancelled request 499, and anything else 502.
func AsAPIError(err error) *apierr.Error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var se *StatusError
	if errors.As(err, &se) {
		msg := se.Detail()
		if msg == "" {
			msg = apierr.MessageInternal
		}
		return apierr.New(se.StatusCode, msg)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.GatewayTimeout()
	case errors.Is(err, context.Canceled):
		return apierr.ClientClosed()
	}
	var netTimeout interface{ Timeout() bool }
	if errors.As(err, &netTimeout) && netTimeout.Timeout() {
		return apierr.GatewayTimeout()
	}
	return apierr.BadGateway()
}

// Client is a JSON client for one HTTP backend.
type Client struct {
	name       string
	base       *url.URL
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(name, baseURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", name, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%s url must be http or https, got %q", name, baseURL)
	}
	c := &Client{
		name: name,
		base: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the backend name.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// URL resolves path (and optional query) against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// GetJSON performs GET path and returns the raw JSON body.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.DoJSON(ctx, http.MethodGet, path, query, nil)
}

// PostJSON performs POST path with body encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.DoJSON(ctx, http.MethodPost, path, nil, body)
}

// DoJSON sends an optional JSON body and returns the raw response body.
// Non-2xx answers come back as *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Service: c.name, StatusCode: resp.StatusCode, Body: data}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s returned a non-JSON body", c.name)
	}
	return json.RawMessage(data), nil
}
