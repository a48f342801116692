package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher handles HTTP downloads of proxy artifacts with retry logic
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
}

// FetcherConfig represents fetcher configuration
type FetcherConfig struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultFetcherConfig returns default fetcher configuration
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:  "azalea-viaversion/1.0",
		Timeout:    5 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// NewFetcher creates a new artifact fetcher
func NewFetcher(config FetcherConfig) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:  config.UserAgent,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}
}

// Fetch downloads url and streams the body into dst, returning the number
// of bytes written. Transient failures are retried with a linear delay;
// 4xx responses and context cancellation are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(f.retryDelay * time.Duration(attempt)):
			}
		}

		n, err := f.doFetch(ctx, url, dst)
		if err == nil {
			return n, nil
		}

		lastErr = err

		// A partial body may already be in dst; the caller hashes the
		// result, so a retry into the same writer would corrupt it.
		if n > 0 {
			break
		}

		if ctx.Err() != nil {
			break
		}

		if httpErr, ok := err.(*HTTPError); ok {
			if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				break
			}
		}
	}

	return 0, fmt.Errorf("fetch failed after %d attempts: %w", f.maxRetries+1, lastErr)
}

// doFetch performs a single fetch attempt
func (f *Fetcher) doFetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
		}
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read response: %w", err)
	}

	return n, nil
}

// HTTPError represents an HTTP error
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s for %s", e.StatusCode, e.Status, e.URL)
}
