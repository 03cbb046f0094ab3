package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures the HTTP text detection client.
type HTTPConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// HTTPDetector calls an external text detection service. The service takes
// the raw image and returns detected lines with per-line confidence.
type HTTPDetector struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPDetector creates a detector from cfg.
func NewHTTPDetector(cfg HTTPConfig) (*HTTPDetector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ocr detector requires a base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &HTTPDetector{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the detector identifier.
func (d *HTTPDetector) Name() string { return "http" }

type detectResponse struct {
	Lines []Line `json:"lines"`
}

// DetectLines posts the image and returns the detected lines. Rate-limit
// and server errors are retried with backoff; anything else fails the call.
func (d *HTTPDetector) DetectLines(ctx context.Context, image []byte, contentType string) ([]Line, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url := d.cfg.BaseURL + "/v1/detect"

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if d.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			d.sleep(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			d.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("detector error (status %d)", resp.StatusCode)
			d.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("detector rejected image (status %d)", resp.StatusCode)
		}

		var out detectResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("failed to parse detector response: %w", err)
		}
		return out.Lines, nil
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", d.cfg.MaxRetries, lastErr)
}

func (d *HTTPDetector) sleep(ctx context.Context, attempt int) {
	delay := d.cfg.RetryDelay * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
