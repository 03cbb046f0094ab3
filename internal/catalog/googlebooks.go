package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackzampolin/shelfscan/internal/types"
)

const (
	GoogleBooksName           = "googlebooks"
	googleBooksDefaultBaseURL = "https://www.googleapis.com/books/v1"
	googleBooksDefaultRPM     = 60
	googleBooksMaxResults     = 5
)

// GoogleBooksProvider queries the Google Books volumes API.
type GoogleBooksProvider struct {
	apiKey     string
	baseURL    string
	maxResults int
	rateLimit  int
	maxRetries int
	retryDelay time.Duration
	limiter    *RateLimiter
	client     *http.Client
}

// NewGoogleBooksProvider creates a Google Books provider.
func NewGoogleBooksProvider(cfg ProviderConfig) *GoogleBooksProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleBooksDefaultBaseURL
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = googleBooksDefaultRPM
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = googleBooksMaxResults
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 8 * time.Second
	}

	return &GoogleBooksProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxResults: maxResults,
		rateLimit:  rateLimit,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		limiter:    NewRateLimiter(rateLimit),
		client:     &http.Client{Timeout: timeout},
	}
}

// Name returns the provider identifier.
func (p *GoogleBooksProvider) Name() string { return GoogleBooksName }

// RequestsPerMinute returns the configured rate limit.
func (p *GoogleBooksProvider) RequestsPerMinute() int { return p.rateLimit }

// MaxRetries returns the per-call retry budget.
func (p *GoogleBooksProvider) MaxRetries() int { return p.maxRetries }

// RetryDelayBase returns the base delay between retries.
func (p *GoogleBooksProvider) RetryDelayBase() time.Duration { return p.retryDelay }

// googleBooksResponse mirrors the volumes API shape, fields we use only.
type googleBooksResponse struct {
	Items []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
			ImageLinks struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Search queries the volumes API for a title/author pair.
func (p *GoogleBooksProvider) Search(ctx context.Context, title, author string) ([]types.ValidationResult, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("empty title")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("intitle:%q", title)
	if strings.TrimSpace(author) != "" {
		q += fmt.Sprintf(" inauthor:%q", author)
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", fmt.Sprintf("%d", p.maxResults))
	params.Set("printType", "books")
	if p.apiKey != "" {
		params.Set("key", p.apiKey)
	}

	var resp googleBooksResponse
	reqURL := p.baseURL + "/volumes?" + params.Encode()
	if err := httpGetJSON(ctx, p.client, reqURL, p.maxRetries, p.retryDelay, &resp); err != nil {
		return nil, fmt.Errorf("google books search failed: %w", err)
	}

	results := make([]types.ValidationResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		vi := item.VolumeInfo
		if vi.Title == "" {
			continue
		}
		res := types.ValidationResult{
			Validated:     true,
			Title:         vi.Title,
			Authors:       vi.Authors,
			Publisher:     vi.Publisher,
			PublishedDate: vi.PublishedDate,
			ThumbnailURL:  vi.ImageLinks.Thumbnail,
		}
		// Prefer ISBN-13 over ISBN-10.
		for _, id := range vi.IndustryIdentifiers {
			if id.Type == "ISBN_13" {
				res.ISBN = id.Identifier
				break
			}
			if id.Type == "ISBN_10" && res.ISBN == "" {
				res.ISBN = id.Identifier
			}
		}
		results = append(results, res)
	}
	return results, nil
}
