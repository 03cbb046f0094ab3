// Package catalog implements the external bibliographic providers used to
// validate book candidates. Each provider has its own rate limiting, retry
// pattern, and failure modes; a provider failure is always "no result from
// this provider", never fatal for a candidate or a job.
package catalog

import (
	"context"
	"time"

	"github.com/jackzampolin/shelfscan/internal/types"
)

// Provider is an external bibliographic data source.
type Provider interface {
	// Name returns the provider identifier (e.g., "googlebooks").
	Name() string

	// Search queries the provider for a candidate's title and, if present,
	// primary author. Returns the provider's raw result set; scoring and
	// selection happen in the validation worker.
	Search(ctx context.Context, title, author string) ([]types.ValidationResult, error)

	// Rate limiting properties
	RequestsPerMinute() int
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// ProviderConfig configures one catalog provider instance.
type ProviderConfig struct {
	Type       string        `mapstructure:"type"` // "googlebooks", "openlibrary"
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`   // Optional (tests)
	RateLimit  int           `mapstructure:"rate_limit"` // Requests per minute
	Timeout    time.Duration `mapstructure:"timeout"`    // Per-call HTTP timeout
	MaxResults int           `mapstructure:"max_results"`
	Enabled    bool          `mapstructure:"enabled"`
}
