package edgegate

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the gateway address, e.g. "https://gw.example.com".
// If not set, defaults to the EDGE_GATE_SERVER_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithToken sets the bearer token sent on every request.
// If not set, defaults to the EDGE_GATE_TOKEN environment variable.
func WithToken(token string) Option {
	return func(c *Client) {
		c.setToken(token)
	}
}

// WithAPIPrefix sets the route prefix. Defaults to "/api/v1".
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) {
		c.apiPrefix = prefix
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to EDGE_GATE_TIMEOUT or 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithPollInterval sets how often WaitForJob polls the job status.
// Defaults to 2 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for poll failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}
