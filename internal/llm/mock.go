package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockClient is a Client for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// Responses, if set, is consumed one entry per request before falling
	// back to ResponseText. Lets tests script retry sequences.
	Responses []string

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: `{"candidates": []}`,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockName
}

// RequestCount reports how many completion requests were made.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Complete returns the scripted response.
func (c *MockClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &Result{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail || (c.FailAfter > 0 && int(count) > c.FailAfter) {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock client configured to fail")
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		result.Success = false
		result.ErrorType = "context_cancelled"
		result.ErrorMessage = ctx.Err().Error()
		return result, ctx.Err()
	}

	content := c.ResponseText
	if n := int(count) - 1; n < len(c.Responses) {
		content = c.Responses[n]
	}

	result.Success = true
	result.Content = content
	result.ExecutionTime = time.Since(start)
	return result, nil
}
