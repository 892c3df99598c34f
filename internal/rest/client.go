package rest

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/relaygate/internal/version"
)

// Authorizer supplies the Authorization header value.
type Authorizer interface {
	AuthorizationHeader() string
}

// Client issues REST requests through a shared RateLimitTable.
type Client struct {
	baseURL    string
	auth       Authorizer
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	limits     *RateLimitTable
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST client. auth may be nil for unauthenticated
// endpoints.
func NewClient(baseURL string, auth Authorizer, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    slog.Default(),
		userAgent: version.UserAgent(),
		limits:    NewRateLimitTable(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("component", "rest")
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// RateLimits returns the client's rate-limit table.
func (c *Client) RateLimits() *RateLimitTable {
	return c.limits
}
