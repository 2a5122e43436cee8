package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout = 30 * time.Second
	UserAgent      = "harvestcast/1.0"
	maxBodyBytes   = 4 << 20
)

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// Fetch GETs url and returns the body, retrying rate limits and server
// errors with exponential backoff until maxElapsed. Other 4xx responses fail
// immediately.
func Fetch(ctx context.Context, client *http.Client, url string, maxElapsed time.Duration) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("User-Agent", UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
