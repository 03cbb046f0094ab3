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
	OpenLibraryName           = "openlibrary"
	openLibraryDefaultBaseURL = "https://openlibrary.org"
	openLibraryCoversBaseURL  = "https://covers.openlibrary.org"
	openLibraryDefaultRPM     = 60
	openLibraryMaxResults     = 5
)

// OpenLibraryProvider queries the Open Library search API. No API key
// required.
type OpenLibraryProvider struct {
	baseURL    string
	maxResults int
	rateLimit  int
	maxRetries int
	retryDelay time.Duration
	limiter    *RateLimiter
	client     *http.Client
}

// NewOpenLibraryProvider creates an Open Library provider.
func NewOpenLibraryProvider(cfg ProviderConfig) *OpenLibraryProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openLibraryDefaultBaseURL
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = openLibraryDefaultRPM
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = openLibraryMaxResults
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 8 * time.Second
	}

	return &OpenLibraryProvider{
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
func (p *OpenLibraryProvider) Name() string { return OpenLibraryName }

// RequestsPerMinute returns the configured rate limit.
func (p *OpenLibraryProvider) RequestsPerMinute() int { return p.rateLimit }

// MaxRetries returns the per-call retry budget.
func (p *OpenLibraryProvider) MaxRetries() int { return p.maxRetries }

// RetryDelayBase returns the base delay between retries.
func (p *OpenLibraryProvider) RetryDelayBase() time.Duration { return p.retryDelay }

// openLibraryResponse mirrors search.json, fields we use only.
type openLibraryResponse struct {
	Docs []struct {
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		Publisher        []string `json:"publisher"`
		FirstPublishYear int      `json:"first_publish_year"`
		ISBN             []string `json:"isbn"`
		CoverID          int64    `json:"cover_i"`
	} `json:"docs"`
}

// Search queries search.json for a title/author pair.
func (p *OpenLibraryProvider) Search(ctx context.Context, title, author string) ([]types.ValidationResult, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("empty title")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("title", title)
	if strings.TrimSpace(author) != "" {
		params.Set("author", author)
	}
	params.Set("limit", fmt.Sprintf("%d", p.maxResults))
	params.Set("fields", "title,author_name,publisher,first_publish_year,isbn,cover_i")

	var resp openLibraryResponse
	reqURL := p.baseURL + "/search.json?" + params.Encode()
	if err := httpGetJSON(ctx, p.client, reqURL, p.maxRetries, p.retryDelay, &resp); err != nil {
		return nil, fmt.Errorf("open library search failed: %w", err)
	}

	results := make([]types.ValidationResult, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		if doc.Title == "" {
			continue
		}
		res := types.ValidationResult{
			Validated: true,
			Title:     doc.Title,
			Authors:   doc.AuthorName,
		}
		if len(doc.Publisher) > 0 {
			res.Publisher = doc.Publisher[0]
		}
		if doc.FirstPublishYear > 0 {
			res.PublishedDate = fmt.Sprintf("%d", doc.FirstPublishYear)
		}
		// Prefer a 13-digit ISBN when present.
		for _, isbn := range doc.ISBN {
			if len(isbn) == 13 {
				res.ISBN = isbn
				break
			}
			if res.ISBN == "" {
				res.ISBN = isbn
			}
		}
		if doc.CoverID > 0 {
			res.ThumbnailURL = fmt.Sprintf("%s/b/id/%d-M.jpg", openLibraryCoversBaseURL, doc.CoverID)
		}
		results = append(results, res)
	}
	return results, nil
}
