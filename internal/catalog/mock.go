package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/shelfscan/internal/types"
)

const MockProviderName = "mock"

// MockProvider is a Provider for testing.
type MockProvider struct {
	// Configurable behavior
	ProviderName string
	Latency      time.Duration
	ShouldFail   bool
	Results      []types.ValidationResult

	// Rate limiting properties
	RPM        int
	Retries    int
	RetryDelay time.Duration

	// State
	searchCount atomic.Int64
}

// NewMockProvider creates a mock provider with sensible defaults.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		ProviderName: MockProviderName,
		Latency:      time.Millisecond,
		RPM:          600,
		Retries:      1,
		RetryDelay:   time.Millisecond,
	}
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return MockProviderName
}

// RequestsPerMinute returns the RPM limit.
func (p *MockProvider) RequestsPerMinute() int { return p.RPM }

// MaxRetries returns the retry budget.
func (p *MockProvider) MaxRetries() int { return p.Retries }

// RetryDelayBase returns the base retry delay.
func (p *MockProvider) RetryDelayBase() time.Duration { return p.RetryDelay }

// SearchCount reports how many searches were made.
func (p *MockProvider) SearchCount() int {
	return int(p.searchCount.Load())
}

// Search returns the scripted results.
func (p *MockProvider) Search(ctx context.Context, title, author string) ([]types.ValidationResult, error) {
	p.searchCount.Add(1)

	if p.ShouldFail {
		return nil, fmt.Errorf("mock provider configured to fail")
	}

	select {
	case <-time.After(p.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return p.Results, nil
}
