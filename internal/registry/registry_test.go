package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, ttl), mr
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("connect then subscribe re-keys to job", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)

		rec, err := r.Connect(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if rec.Status != StatusConnected {
			t.Errorf("Status = %v, want connected", rec.Status)
		}

		rec, err = r.Subscribe(ctx, "sess-1", "job-1")
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		if rec.Status != StatusSubscribed {
			t.Errorf("Status = %v, want subscribed", rec.Status)
		}

		resolved, err := r.Resolve(ctx, "job-1")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if resolved.SessionID != "sess-1" {
			t.Errorf("SessionID = %q, want sess-1", resolved.SessionID)
		}
	})

	t.Run("subscribe without connect fails", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)
		if _, err := r.Subscribe(ctx, "ghost", "job-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Subscribe() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("resolve unknown job", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)
		if _, err := r.Resolve(ctx, "job-404"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete retires job and session entries", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)
		r.Connect(ctx, "sess-2")
		r.Subscribe(ctx, "sess-2", "job-2")

		if err := r.Delete(ctx, "job-2"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := r.Resolve(ctx, "job-2"); !errors.Is(err, ErrNotFound) {
			t.Error("job entry survived delete")
		}
		// A second subscribe must fail: the session entry is gone too.
		if _, err := r.Subscribe(ctx, "sess-2", "job-2"); !errors.Is(err, ErrNotFound) {
			t.Error("session entry survived delete")
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)
		if err := r.Delete(ctx, "job-never-existed"); err != nil {
			t.Errorf("Delete() on missing entry error = %v, want nil", err)
		}
	})

	t.Run("disconnect cleans both keys", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)
		r.Connect(ctx, "sess-3")
		r.Subscribe(ctx, "sess-3", "job-3")

		if err := r.Disconnect(ctx, "sess-3"); err != nil {
			t.Fatalf("Disconnect() error = %v", err)
		}
		if _, err := r.Resolve(ctx, "job-3"); !errors.Is(err, ErrNotFound) {
			t.Error("job entry survived disconnect")
		}
	})

	t.Run("entries expire", func(t *testing.T) {
		r, mr := newTestRegistry(t, time.Second)
		r.Connect(ctx, "sess-4")
		r.Subscribe(ctx, "sess-4", "job-4")

		mr.FastForward(2 * time.Second)

		if _, err := r.Resolve(ctx, "job-4"); !errors.Is(err, ErrNotFound) {
			t.Error("entry survived past TTL")
		}
	})

	t.Run("empty ids rejected", func(t *testing.T) {
		r, _ := newTestRegistry(t, time.Minute)
		if _, err := r.Connect(ctx, ""); err == nil {
			t.Error("Connect(\"\") should fail")
		}
		r.Connect(ctx, "sess-5")
		if _, err := r.Subscribe(ctx, "sess-5", ""); err == nil {
			t.Error("Subscribe with empty job id should fail")
		}
	})
}
