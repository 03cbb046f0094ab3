// Package validate implements the validation worker: the terminal pipeline
// stage that checks segmented candidates against external catalogs, writes
// the durable FinalResults document, and announces completion.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/shelfscan/internal/catalog"
	"github.com/jackzampolin/shelfscan/internal/match"
	"github.com/jackzampolin/shelfscan/internal/results"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// ResultsStore is the slice of the object store this worker needs.
type ResultsStore interface {
	Exists(ctx context.Context, jobID string) (bool, error)
	Get(ctx context.Context, jobID string) (*types.FinalResults, error)
	Put(ctx context.Context, res *types.FinalResults) (string, error)
	Location(key string) string
}

// EventPublisher announces job lifecycle over the event bus.
type EventPublisher interface {
	PublishCompletion(ctx context.Context, ev *types.CompletionEvent) error
	PublishProgress(ctx context.Context, p *types.ProgressPush) error
}

// ProviderSource yields the current provider set. catalog.Registry satisfies
// it, which lets a config hot reload change providers between messages.
type ProviderSource interface {
	All() []catalog.Provider
}

// DefaultSearchTimeout bounds one provider call so a hanging catalog cannot
// stall the whole candidate.
const DefaultSearchTimeout = 8 * time.Second

// Config wires a Worker.
type Config struct {
	// Providers is a fixed provider set. Source takes precedence when set.
	Providers []catalog.Provider
	Source    ProviderSource
	Store     ResultsStore
	Events    EventPublisher
	Logger    *slog.Logger

	// Weights for the scoring engine. Zero value means DefaultWeights.
	Weights match.Weights

	// SearchTimeout is the per-provider, per-candidate call budget.
	SearchTimeout time.Duration
}

// Worker consumes candidate messages from the validation queue.
type Worker struct {
	providers     func() []catalog.Provider
	store         ResultsStore
	events        EventPublisher
	logger        *slog.Logger
	weights       match.Weights
	searchTimeout time.Duration
}

// New creates a validation worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	weights := cfg.Weights
	if weights.Title == 0 && weights.Author == 0 {
		weights = match.DefaultWeights()
	}
	timeout := cfg.SearchTimeout
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	providers := func() []catalog.Provider { return cfg.Providers }
	if cfg.Source != nil {
		providers = cfg.Source.All
	}
	return &Worker{
		providers:     providers,
		store:         cfg.Store,
		events:        cfg.Events,
		logger:        logger,
		weights:       weights,
		searchTimeout: timeout,
	}
}

// Handle processes one raw queue message. Returning an error schedules
// redelivery; the durable-write-then-ack ordering plus the Exists check make
// redelivered work safe.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	msg, err := types.ParseStageMessage(body)
	if err != nil {
		return err
	}
	logger := w.logger.With("job_id", msg.JobID)

	if !msg.BedrockComplete {
		return fmt.Errorf("job %s reached validation without segmentation output", msg.JobID)
	}

	done, err := w.store.Exists(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("checking existing results for %s: %w", msg.JobID, err)
	}
	if done {
		// Redelivered after the results were written. Skip the catalog work
		// but re-announce completion: the original event may have been the
		// part that was lost.
		logger.Info("results already stored, skipping reprocess")
		return w.announceStored(ctx, msg.JobID)
	}

	w.publishProgress(ctx, msg.JobID, types.StageValidation, "started")

	books := make([]types.ValidatedBook, 0, len(msg.Candidates))
	validated := 0
	for _, cand := range msg.Candidates {
		book := w.validateCandidate(ctx, logger, cand)
		if book.Status == types.StatusValidated {
			validated++
		}
		books = append(books, book)
	}

	final := &types.FinalResults{
		JobID:           msg.JobID,
		Timestamp:       time.Now().UTC(),
		TotalCandidates: len(msg.Candidates),
		ValidatedCount:  validated,
		Books:           books,
	}
	key, err := w.store.Put(ctx, final)
	if err != nil {
		return fmt.Errorf("writing final results for %s: %w", msg.JobID, err)
	}

	w.publishProgress(ctx, msg.JobID, types.StageValidation, "completed")

	if err := w.announce(ctx, final, key); err != nil {
		// Results are durable; redelivery will hit the Exists path and
		// re-announce without redoing catalog work.
		return err
	}

	logger.Info("job validated",
		"candidates", final.TotalCandidates,
		"validated", final.ValidatedCount)
	return nil
}

// validateCandidate fans one candidate out to every provider in parallel and
// folds the pooled results into a single ValidatedBook. A provider error or
// timeout contributes nothing; it never fails the candidate.
func (w *Worker) validateCandidate(ctx context.Context, logger *slog.Logger, cand types.BookCandidate) types.ValidatedBook {
	var (
		mu   sync.Mutex
		pool []types.ValidationResult
		wg   sync.WaitGroup
	)

	for _, p := range w.providers() {
		wg.Add(1)
		go func(p catalog.Provider) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, w.searchTimeout)
			defer cancel()

			results, err := p.Search(callCtx, cand.Title, cand.Author)
			if err != nil {
				logger.Warn("provider search failed",
					"provider", p.Name(), "title", cand.Title, "error", err)
				return
			}

			mu.Lock()
			for _, r := range results {
				if r.Validated {
					pool = append(pool, r)
				}
			}
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	idx, score := match.BestOf(w.weights, cand, pool)
	var best *types.ValidationResult
	if idx >= 0 {
		best = &pool[idx]
	}
	return match.Finalize(w.weights, cand, best, score)
}

// announce publishes the completion event for freshly written results.
func (w *Worker) announce(ctx context.Context, final *types.FinalResults, key string) error {
	ev := &types.CompletionEvent{
		JobID:           final.JobID,
		Status:          "complete",
		Books:           final.Books,
		ValidatedBooks:  final.ValidatedCount,
		TotalCandidates: final.TotalCandidates,
		ResultsLocation: w.store.Location(key),
	}
	if err := w.events.PublishCompletion(ctx, ev); err != nil {
		return fmt.Errorf("announcing completion for %s: %w", final.JobID, err)
	}
	return nil
}

// announceStored rebuilds the completion event from the stored document.
func (w *Worker) announceStored(ctx context.Context, jobID string) error {
	final, err := w.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reloading stored results for %s: %w", jobID, err)
	}
	return w.announce(ctx, final, results.ResultKey(jobID))
}

func (w *Worker) publishProgress(ctx context.Context, jobID, stage, status string) {
	p := &types.ProgressPush{
		Type:   "processingStage",
		JobID:  jobID,
		Stage:  stage,
		Status: status,
	}
	if err := w.events.PublishProgress(ctx, p); err != nil {
		w.logger.Debug("progress publish failed", "job_id", jobID, "stage", stage, "error", err)
	}
}
