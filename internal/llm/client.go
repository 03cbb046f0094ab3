// Package llm wraps the external generative-text service used for candidate
// segmentation. The pipeline treats it as an opaque "complete this prompt,
// return JSON" collaborator.
package llm

import (
	"context"
	"time"
)

// Client is the interface the segmentation worker depends on.
type Client interface {
	// Complete sends a completion request and returns the model output.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string
}

// Request is a completion request.
type Request struct {
	System string
	Prompt string

	// Model selection (uses client default if empty)
	Model string

	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// JSONOnly asks the provider for a JSON-object response format. Output
	// is still schema-validated locally regardless.
	JSONOnly bool

	// Request tracking
	RequestID string
}

// Result is the complete response from a model call.
type Result struct {
	Content string `json:"content"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Timing
	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	// Success/error
	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
