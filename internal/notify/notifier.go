// Package notify delivers completion events to waiting client sessions.
// The notifier is the only component that pairs a finished job with a live
// WebSocket; everything upstream of it is connection-agnostic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/shelfscan/internal/registry"
	"github.com/jackzampolin/shelfscan/internal/session"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// ConnectionResolver is the slice of the connection registry the notifier
// needs: look up which session waits on a job, and retire the entry once
// notified.
type ConnectionResolver interface {
	Resolve(ctx context.Context, jobID string) (*registry.Record, error)
	Delete(ctx context.Context, jobID string) error
}

// Pusher sends a payload to a connected session.
type Pusher interface {
	Push(sessionID string, v any) error
}

// Config wires a Notifier.
type Config struct {
	Registry ConnectionResolver
	Hub      Pusher
	Logger   *slog.Logger

	// LookupAttempts bounds how many times a missing registry entry is
	// re-checked before the event is abandoned. Covers the race where the
	// pipeline finishes before the client has subscribed.
	LookupAttempts uint
	// LookupBackoff is the fixed delay between lookup attempts.
	LookupBackoff time.Duration
}

// DefaultLookupAttempts and DefaultLookupBackoff give a fast job roughly
// ten seconds for its client to finish subscribing.
const (
	DefaultLookupAttempts = 5
	DefaultLookupBackoff  = 2 * time.Second
)

// Notifier consumes completion events and pushes them to sessions.
type Notifier struct {
	registry ConnectionResolver
	hub      Pusher
	logger   *slog.Logger

	lookupAttempts uint
	lookupBackoff  time.Duration
}

// New creates a Notifier from cfg, applying defaults for unset knobs.
func New(cfg Config) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.LookupAttempts
	if attempts == 0 {
		attempts = DefaultLookupAttempts
	}
	backoff := cfg.LookupBackoff
	if backoff == 0 {
		backoff = DefaultLookupBackoff
	}
	return &Notifier{
		registry:       cfg.Registry,
		hub:            cfg.Hub,
		logger:         logger,
		lookupAttempts: attempts,
		lookupBackoff:  backoff,
	}
}

// Run drains completion events until ctx is cancelled. Each event is
// handled inline: delivery is quick and ordering per job does not matter
// since a job completes exactly once.
func (n *Notifier) Run(ctx context.Context, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			n.HandleEvent(ctx, payload)
		}
	}
}

// RunProgress drains best-effort progress events until ctx is cancelled.
func (n *Notifier) RunProgress(ctx context.Context, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			n.HandleProgress(ctx, payload)
		}
	}
}

// HandleProgress pushes one stage notification if a session is already
// subscribed. No retries, no cleanup: progress is advisory and the
// completion event carries everything that matters.
func (n *Notifier) HandleProgress(ctx context.Context, payload []byte) {
	var p types.ProgressPush
	if err := json.Unmarshal(payload, &p); err != nil || p.JobID == "" {
		return
	}
	rec, err := n.registry.Resolve(ctx, p.JobID)
	if err != nil {
		return
	}
	if err := n.hub.Push(rec.SessionID, &p); err != nil {
		n.logger.Debug("progress push failed", "job_id", p.JobID, "stage", p.Stage, "error", err)
	}
}

// HandleEvent decodes one completion event payload and attempts delivery.
// All failure modes are absorbed here: the durable result already sits in
// object storage, so an undeliverable event is logged and dropped rather
// than retried forever.
func (n *Notifier) HandleEvent(ctx context.Context, payload []byte) {
	var ev types.CompletionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		n.logger.Warn("unparseable completion event", "error", err)
		return
	}
	if ev.JobID == "" {
		n.logger.Warn("completion event missing job id")
		return
	}
	n.Deliver(ctx, &ev)
}

// Deliver resolves the session waiting on ev.JobID and pushes the
// completion message. The registry lookup is retried with a fixed backoff
// to cover clients that subscribe after the pipeline finishes.
func (n *Notifier) Deliver(ctx context.Context, ev *types.CompletionEvent) {
	logger := n.logger.With("job_id", ev.JobID)

	rec, err := n.resolveWithRetry(ctx, ev.JobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			logger.Warn("no session subscribed, abandoning notification",
				"attempts", n.lookupAttempts,
				"results_location", ev.ResultsLocation)
		} else {
			logger.Error("registry lookup failed", "error", err)
		}
		return
	}

	logger = logger.With("session_id", rec.SessionID)
	push := types.NewCompletionPush(ev)

	if err := n.hub.Push(rec.SessionID, push); err != nil {
		switch {
		case errors.Is(err, session.ErrStaleSession):
			// Client went away between subscribe and completion. Retire
			// the entry so a reconnecting client starts clean; the result
			// stays fetchable from storage.
			logger.Warn("session stale, dropping notification", "error", err)
			if derr := n.registry.Delete(ctx, ev.JobID); derr != nil {
				logger.Error("failed to clean up registry entry", "error", derr)
			}
		case errors.Is(err, session.ErrNoSession):
			// The socket may be held by another gateway replica; completion
			// events are broadcast to all of them. Leave the entry for the
			// replica that owns the session.
			logger.Debug("session not held here, leaving registry entry")
		default:
			logger.Error("push failed", "error", err)
		}
		return
	}

	if err := n.registry.Delete(ctx, ev.JobID); err != nil {
		logger.Error("failed to retire registry entry after delivery", "error", err)
	}
	logger.Info("completion delivered", "status", ev.Status, "validated", ev.ValidatedBooks)
}

func (n *Notifier) resolveWithRetry(ctx context.Context, jobID string) (*registry.Record, error) {
	var rec *registry.Record
	err := retry.Do(
		func() error {
			var err error
			rec, err = n.registry.Resolve(ctx, jobID)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(n.lookupAttempts),
		retry.Delay(n.lookupBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			// Only a missing entry is worth waiting for; real registry
			// failures surface immediately.
			return errors.Is(err, registry.ErrNotFound)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("resolving session for job %s: %w", jobID, err)
	}
	return rec, nil
}
