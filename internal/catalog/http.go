package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpGetJSON performs a GET with bounded retries and decodes the JSON body
// into out. Retries cover rate limits and server errors; anything else fails
// immediately.
func httpGetJSON(ctx context.Context, client *http.Client, url string, maxRetries int, retryDelay time.Duration, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			sleepWithBackoff(ctx, retryDelay, attempt)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			sleepWithBackoff(ctx, retryDelay, attempt)
			continue
		}

		if shouldRetryStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("provider error (status %d): %s", resp.StatusCode, truncate(body, 200))
			sleepWithBackoff(ctx, retryDelay, attempt)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("provider error (status %d): %s", resp.StatusCode, truncate(body, 200))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// shouldRetryStatus returns true for status codes worth retrying.
func shouldRetryStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests:
		return true
	case 520, 521, 522, 523, 524: // Cloudflare errors
		return true
	default:
		return statusCode >= 500
	}
}

// sleepWithBackoff sleeps with exponential backoff, respecting cancellation.
func sleepWithBackoff(ctx context.Context, base time.Duration, attempt int) {
	delay := base * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
