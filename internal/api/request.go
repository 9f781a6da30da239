package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// APIError represents an error response from a shard backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shard api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// doRequest performs an HTTP request with the given method and path.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request, retrying retryable failures with jittered exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff * [0.5, 1.5)
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// PageRequest selects one page of a listing.
type PageRequest struct {
	Cursor string
	Size   int
	Sort   model.SortOrder
}

func (c *Client) pageQuery(req PageRequest) url.Values {
	query := url.Values{}
	if req.Cursor != "" {
		query.Set(c.dialect.CursorParam, req.Cursor)
	}
	if req.Size > 0 {
		query.Set(c.dialect.SizeParam, strconv.Itoa(c.dialect.clampSize(req.Size)))
	}
	if req.Sort != "" {
		query.Set(c.dialect.SortParam, c.dialect.sortValue(req.Sort))
	}
	return query
}

// getPage fetches a listing whose entities live under field and whose next cursor
// lives under the dialect's cursor field.
func getPage[T any](ctx context.Context, c *Client, path, field string, query url.Values) ([]T, string, error) {
	var raw map[string]json.RawMessage
	if err := c.get(ctx, path, query, &raw); err != nil {
		return nil, "", err
	}

	var items []T
	if data, ok := raw[field]; ok {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, "", fmt.Errorf("unmarshal %s: %w", field, err)
		}
	}

	var next string
	if data, ok := raw[c.dialect.CursorField]; ok && string(data) != "null" {
		if err := json.Unmarshal(data, &next); err != nil {
			return nil, "", fmt.Errorf("unmarshal %s: %w", c.dialect.CursorField, err)
		}
	}

	return items, next, nil
}
