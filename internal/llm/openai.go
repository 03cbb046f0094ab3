package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName          = "openai"
	openAIDefaultModel  = "gpt-4o-mini"
	openAIDefaultTokens = 2048
)

// OpenAIConfig holds configuration for the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // Optional (gateways, tests)
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIClient implements Client using the official OpenAI SDK.
type OpenAIClient struct {
	model   string
	timeout time.Duration
	client  openai.Client
}

// NewOpenAIClient creates a new OpenAI completion client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIClient{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = openAIDefaultTokens
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            messages,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.JSONOnly {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	result := &Result{
		RequestID: requestID,
		Provider:  OpenAIName,
		ModelUsed: model,
		Attempts:  1,
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	result.ExecutionTime = time.Since(start)
	if err != nil {
		result.Success = false
		result.ErrorType = "api_error"
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		result.Success = false
		result.ErrorType = "empty_response"
		result.ErrorMessage = "no choices in completion response"
		return result, fmt.Errorf("no choices in completion response (model=%s)", model)
	}

	result.Success = true
	result.Content = resp.Choices[0].Message.Content
	result.ModelUsed = resp.Model
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)

	return result, nil
}
