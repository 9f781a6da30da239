package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// Client provides access to one shard's REST API.
type Client struct {
	chain      model.Blockchain
	baseURL    string
	apiKey     string
	dialect    Dialect
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST client for chain. The dialect defaults to DialectFor(chain).
func NewClient(chain model.Blockchain, baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		chain:   chain,
		baseURL: baseURL,
		apiKey:  apiKey,
		dialect: DialectFor(chain),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("blockchain", string(chain))

	return c
}

// Blockchain returns the chain this client serves.
func (c *Client) Blockchain() model.Blockchain {
	return c.chain
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
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

// WithDialect overrides the pagination dialect.
func WithDialect(d Dialect) ClientOption {
	return func(c *Client) {
		c.dialect = d
	}
}
