// Package segment implements the segmentation worker: raw OCR fragments in,
// book candidates out. It is the only producer of BookCandidate values.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/shelfscan/internal/llm"
	"github.com/jackzampolin/shelfscan/internal/queue"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// StagePublisher is the slice of the queue publisher the worker needs.
type StagePublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Config configures a segmentation worker.
type Config struct {
	Client    llm.Client
	Publisher StagePublisher
	Logger    *slog.Logger

	// Model override for the LLM call (client default if empty).
	Model string

	// MaxModelRetries bounds local retries on malformed model output before
	// degrading to an empty candidate set. Repeating an identical prompt
	// rarely fixes malformed output, so the default is 1.
	MaxModelRetries int

	// CallTimeout bounds one model call.
	CallTimeout time.Duration
}

// Worker consumes raw-text stage messages and emits candidate messages.
type Worker struct {
	client    llm.Client
	publisher StagePublisher
	logger    *slog.Logger

	model       string
	maxRetries  int
	callTimeout time.Duration
}

// NewWorker creates a segmentation worker.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("segment worker requires an LLM client")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("segment worker requires a publisher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxModelRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if cfg.MaxModelRetries == 0 {
		maxRetries = 1
	}
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 90 * time.Second
	}

	return &Worker{
		client:      cfg.Client,
		publisher:   cfg.Publisher,
		logger:      logger.With("worker", "segment"),
		model:       cfg.Model,
		maxRetries:  maxRetries,
		callTimeout: callTimeout,
	}, nil
}

// Handle processes one raw stage message. It satisfies queue.Handler:
// returning an error leaves the message unacked for redelivery, so the
// candidate message must be durably published before nil is returned.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	msg, err := types.ParseStageMessage(body)
	if err != nil {
		// Never valid on any future delivery either; let the retry budget
		// park it in the dead queue for inspection.
		return fmt.Errorf("unreadable stage message: %w", err)
	}

	logger := w.logger.With("job_id", msg.JobID)

	// Redelivery of work already performed: forward the existing output
	// instead of paying for another model call.
	if msg.BedrockComplete {
		logger.Info("segmentation already complete, forwarding")
		return w.forward(ctx, body)
	}

	if !msg.TextractComplete || len(msg.ExtractedText) == 0 {
		logger.Warn("no extracted text on message, emitting empty candidate set")
		return w.emit(ctx, body, Degraded("no extracted text"))
	}

	outcome, err := w.segment(ctx, msg.JobID, msg.ExtractedText)
	if err != nil {
		// Transport-level model failure: transient infra, handled by queue
		// redelivery rather than local degradation.
		return err
	}
	if outcome.Degraded {
		logger.Warn("segmentation degraded", "reason", outcome.Reason)
	} else {
		logger.Info("segmentation complete", "candidates", len(outcome.Candidates))
	}
	return w.emit(ctx, body, outcome)
}

// segment runs the model call with bounded local retries on malformed
// output. Malformed output degrades to an empty candidate set (terminal);
// a transport-level call failure is returned as an error so the queue's
// retry policy owns it.
func (w *Worker) segment(ctx context.Context, jobID string, lines []string) (Outcome, error) {
	req := &llm.Request{
		System:      systemPrompt,
		Prompt:      BuildPrompt(lines),
		Model:       w.model,
		Temperature: 0,
		Timeout:     w.callTimeout,
		JSONOnly:    true,
		RequestID:   jobID,
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		result, err := w.client.Complete(ctx, req)
		if err != nil {
			return Outcome{}, fmt.Errorf("model call failed: %w", err)
		}

		candidates, err := ParseCandidates(result.Content)
		if err != nil {
			lastErr = err
			w.logger.Warn("malformed model output",
				"job_id", jobID, "attempt", attempt+1, "error", err)
			continue
		}
		return Ok(candidates), nil
	}

	return Degraded(fmt.Sprintf("model output unusable after %d attempts: %v", w.maxRetries+1, lastErr)), nil
}

// emit appends the candidates to the envelope and publishes the next stage
// message.
func (w *Worker) emit(ctx context.Context, body []byte, outcome Outcome) error {
	out, err := types.ExtendRaw(body, map[string]any{
		"candidates":      outcome.Candidates,
		"bedrockComplete": true,
	})
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, queue.ValidateRoutingKey, out)
}

// forward republishes an already-segmented message downstream unchanged.
func (w *Worker) forward(ctx context.Context, body []byte) error {
	return w.publisher.Publish(ctx, queue.ValidateRoutingKey, body)
}
