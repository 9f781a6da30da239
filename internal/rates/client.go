// Package rates looks up USD conversion rates for order currencies.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/union-data/internal/model"
)

type rateResponse struct {
	Rate string `json:"rate"`
	Date string `json:"date"`
}

type cacheKey struct {
	chain    model.Blockchain
	currency string
	bucket   int64
}

type cacheEntry struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Client fetches currency rates over HTTP and caches them per minute bucket.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

// NewClient creates a rate client.
func NewClient(baseURL string, timeout, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cacheTTL:   cacheTTL,
		logger:     logger,
		now:        time.Now,
		cache:      make(map[cacheKey]cacheEntry),
	}
}

// Rate returns the USD value of one unit of currency on chain at the given time.
func (c *Client) Rate(ctx context.Context, chain model.Blockchain, currency string, at time.Time) (decimal.Decimal, error) {
	key := cacheKey{chain: chain, currency: currency, bucket: at.Truncate(time.Minute).Unix()}

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.cacheTTL {
		return entry.rate, nil
	}

	rate, err := c.fetch(ctx, chain, currency, at)
	if err != nil {
		return decimal.Zero, err
	}
	c.store(key, rate)
	return rate, nil
}

// Latest fetches the current rate without reading the cache. The result
// replaces the cached rate for the current minute, so later Rate calls in
// that minute see it.
func (c *Client) Latest(ctx context.Context, chain model.Blockchain, currency string) (decimal.Decimal, error) {
	now := c.now()
	rate, err := c.fetch(ctx, chain, currency, now)
	if err != nil {
		return decimal.Zero, err
	}
	c.store(cacheKey{chain: chain, currency: currency, bucket: now.Truncate(time.Minute).Unix()}, rate)
	return rate, nil
}

func (c *Client) store(key cacheKey, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{rate: rate, fetchedAt: c.now()}
	c.evictLocked()
}

func (c *Client) fetch(ctx context.Context, chain model.Blockchain, currency string, at time.Time) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/v0.1/currencies/%s/%s/rate?at=%s",
		c.baseURL,
		url.PathEscape(string(chain)),
		url.PathEscape(currency),
		strconv.FormatInt(at.UnixMilli(), 10),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate %s/%s: %w", chain, currency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch rate %s/%s: unexpected status code: %d", chain, currency, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}

	var data rateResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal rate: %w", err)
	}
	if data.Rate == "" {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s", chain, currency)
	}

	rate, err := decimal.NewFromString(data.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", data.Rate, err)
	}
	return rate, nil
}

// evictLocked drops expired entries. Caller holds mu.
func (c *Client) evictLocked() {
	if len(c.cache) < 1024 {
		return
	}
	now := c.now()
	for k, e := range c.cache {
		if now.Sub(e.fetchedAt) >= c.cacheTTL {
			delete(c.cache, k)
		}
	}
}
