// Package geodata retrieves county boundary geometry for the map frontend.
// Boundary data is a side concern: it is cached aggressively and never a
// dependency for the correctness of signal data.
package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Provider returns county boundary GeoJSON.
type Provider interface {
	CountiesGeoJSON(ctx context.Context) (string, error)
}

// Client fetches boundary GeoJSON from the configured open data catalog.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a boundary geometry client.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CountiesGeoJSON downloads the county boundary document and verifies it is
// syntactically valid JSON before handing it to consumers.
func (c *Client) CountiesGeoJSON(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch boundaries: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch boundaries: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read boundaries: %w", err)
	}
	if !json.Valid(body) {
		return "", fmt.Errorf("boundary document is not valid JSON")
	}

	c.logger.Debug("boundaries fetched", "bytes", len(body))
	return string(body), nil
}
