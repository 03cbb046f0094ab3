package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/shelfscan/internal/registry"
	"github.com/jackzampolin/shelfscan/internal/session"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// fakeResolver scripts registry behavior: Resolve fails with ErrNotFound
// until the entry "appears" at the configured attempt.
type fakeResolver struct {
	mu           sync.Mutex
	record       *registry.Record
	appearAfter  int // attempts that return ErrNotFound before the record shows up
	resolveCalls int
	deleteCalls  int
	deletedJobs  []string
}

func (f *fakeResolver) Resolve(ctx context.Context, jobID string) (*registry.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.record == nil || f.resolveCalls <= f.appearAfter {
		return nil, registry.ErrNotFound
	}
	return f.record, nil
}

func (f *fakeResolver) Delete(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.deletedJobs = append(f.deletedJobs, jobID)
	return nil
}

type fakePusher struct {
	mu       sync.Mutex
	pushes   []any
	sessions []string
	err      error
}

func (f *fakePusher) Push(sessionID string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sessions = append(f.sessions, sessionID)
	f.pushes = append(f.pushes, v)
	return nil
}

func newTestNotifier(r ConnectionResolver, p Pusher) *Notifier {
	return New(Config{
		Registry:       r,
		Hub:            p,
		Logger:         slog.New(slog.DiscardHandler),
		LookupAttempts: 3,
		LookupBackoff:  time.Millisecond,
	})
}

func testEvent() *types.CompletionEvent {
	return &types.CompletionEvent{
		JobID:  "job-1",
		Status: "complete",
		Books: []types.ValidatedBook{
			{Title: "Consciousness Explained", Author: "Daniel Dennett", Status: types.StatusValidated},
		},
		ValidatedBooks:  1,
		TotalCandidates: 2,
		ResultsLocation: "s3://shelfscan/results/job-1.json",
	}
}

func TestNotifierDeliver(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers and retires registry entry", func(t *testing.T) {
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		n.Deliver(ctx, testEvent())

		if len(p.pushes) != 1 {
			t.Fatalf("pushes = %d, want 1", len(p.pushes))
		}
		if p.sessions[0] != "sess-1" {
			t.Errorf("pushed to %q, want sess-1", p.sessions[0])
		}
		push, ok := p.pushes[0].(*types.CompletionPush)
		if !ok {
			t.Fatalf("push payload is %T, want *types.CompletionPush", p.pushes[0])
		}
		if push.Type != "processingComplete" {
			t.Errorf("push type = %q, want processingComplete", push.Type)
		}
		if r.deleteCalls != 1 || r.deletedJobs[0] != "job-1" {
			t.Errorf("registry entry not retired: deletes=%d jobs=%v", r.deleteCalls, r.deletedJobs)
		}
	})

	t.Run("waits for late subscriber", func(t *testing.T) {
		// Entry appears on the third lookup, inside the attempt budget.
		r := &fakeResolver{
			record:      &registry.Record{JobID: "job-1", SessionID: "sess-1"},
			appearAfter: 2,
		}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		n.Deliver(ctx, testEvent())

		if len(p.pushes) != 1 {
			t.Fatalf("pushes = %d, want 1", len(p.pushes))
		}
		if r.resolveCalls != 3 {
			t.Errorf("resolveCalls = %d, want 3", r.resolveCalls)
		}
	})

	t.Run("abandons after lookup budget", func(t *testing.T) {
		r := &fakeResolver{} // never resolves
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		n.Deliver(ctx, testEvent())

		if len(p.pushes) != 0 {
			t.Errorf("pushes = %d, want 0", len(p.pushes))
		}
		if r.resolveCalls != 3 {
			t.Errorf("resolveCalls = %d, want 3 (attempt budget)", r.resolveCalls)
		}
		if r.deleteCalls != 0 {
			t.Errorf("deleteCalls = %d, want 0", r.deleteCalls)
		}
	})

	t.Run("stale session cleans up registry", func(t *testing.T) {
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{err: session.ErrStaleSession}
		n := newTestNotifier(r, p)

		n.Deliver(ctx, testEvent())

		if r.deleteCalls != 1 {
			t.Errorf("deleteCalls = %d, want 1 (stale session cleanup)", r.deleteCalls)
		}
	})

	t.Run("unknown session leaves registry entry for other replicas", func(t *testing.T) {
		// With several gateway replicas every notifier sees the broadcast;
		// the one without the socket must not race the holder's resolve.
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{err: session.ErrNoSession}
		n := newTestNotifier(r, p)

		n.Deliver(ctx, testEvent())

		if r.deleteCalls != 0 {
			t.Errorf("deleteCalls = %d, want 0 (entry belongs to the session holder)", r.deleteCalls)
		}
	})
}

func TestNotifierHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes and delivers", func(t *testing.T) {
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		payload, err := json.Marshal(testEvent())
		if err != nil {
			t.Fatal(err)
		}
		n.HandleEvent(ctx, payload)

		if len(p.pushes) != 1 {
			t.Errorf("pushes = %d, want 1", len(p.pushes))
		}
	})

	t.Run("drops malformed payload", func(t *testing.T) {
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		n.HandleEvent(ctx, []byte("{not json"))
		n.HandleEvent(ctx, []byte(`{"status":"complete"}`)) // no job id

		if r.resolveCalls != 0 {
			t.Errorf("resolveCalls = %d, want 0", r.resolveCalls)
		}
	})
}

func TestNotifierHandleProgress(t *testing.T) {
	ctx := context.Background()
	progress, _ := json.Marshal(&types.ProgressPush{
		Type:   "processingStage",
		JobID:  "job-1",
		Stage:  types.StageValidation,
		Status: "started",
	})

	t.Run("pushes to subscribed session", func(t *testing.T) {
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		n.HandleProgress(ctx, progress)

		if len(p.pushes) != 1 {
			t.Fatalf("pushes = %d, want 1", len(p.pushes))
		}
	})

	t.Run("no subscriber means single lookup, no retry", func(t *testing.T) {
		r := &fakeResolver{}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		n.HandleProgress(ctx, progress)

		if r.resolveCalls != 1 {
			t.Errorf("resolveCalls = %d, want 1", r.resolveCalls)
		}
		if len(p.pushes) != 0 {
			t.Errorf("pushes = %d, want 0", len(p.pushes))
		}
	})
}

func TestNotifierRun(t *testing.T) {
	t.Run("drains channel until cancelled", func(t *testing.T) {
		r := &fakeResolver{record: &registry.Record{JobID: "job-1", SessionID: "sess-1"}}
		p := &fakePusher{}
		n := newTestNotifier(r, p)

		events := make(chan []byte, 1)
		payload, _ := json.Marshal(testEvent())
		events <- payload
		close(events)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n.Run(ctx, events)

		if len(p.pushes) != 1 {
			t.Errorf("pushes = %d, want 1", len(p.pushes))
		}
	})
}
