// Package traderapi is the REST client for the trading-account data provider.
// It implements domain.SnapshotSource.
package traderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
)

// Client is the REST client for the account data provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new provider REST client.
//
// baseURL is the API root, e.g. "https://api.traderdata.example.com/v1".
// apiKey may be empty for unauthenticated endpoints.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSnapshot fetches the current account snapshot for the given entity.
func (c *Client) GetSnapshot(ctx context.Context, entityID domain.EntityID) (domain.Snapshot, error) {
	path := fmt.Sprintf("/accounts/%s/snapshot", url.PathEscape(string(entityID)))

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("traderapi: get snapshot %s: %w", entityID, err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Snapshot{}, fmt.Errorf("traderapi: decode snapshot %s: %w", entityID, err)
	}

	return resp.toDomain(entityID), nil
}

// doRequest builds, sends, and reads an HTTP request against the provider API.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors where the
// caller needs to distinguish them.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s (%s)", domain.ErrProviderDown, statusCode, apiErr.Message, apiErr.Code)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
