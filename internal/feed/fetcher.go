// Package feed fetches and parses the upstream CSV/TSV feed documents.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// userAgent identifies the service to the upstream mirrors, which throttle
// anonymous clients.
const userAgent = "epi-signal-etl/1.0"

// Fetcher retrieves feed documents over HTTP with a bounded timeout.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. The timeout bounds the whole request
// including body read; a slow upstream fails fast as that source's failure.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchText downloads a feed document as UTF-8 text, stripping a leading BOM
// if present (common in TSV exports).
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch feed: unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read feed body: %w", err)
	}

	f.logger.Debug("feed fetched", "url", url, "bytes", len(body), "duration", time.Since(start))

	return strings.TrimPrefix(string(body), "\uFEFF"), nil
}
