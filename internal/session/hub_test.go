package session

import (
	"errors"
	"testing"
)

// fakeSession implements Session for hub tests.
type fakeSession struct {
	id       string
	payloads [][]byte
	fail     bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(payload []byte) error {
	if s.fail {
		return errors.New("connection reset")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func TestHub(t *testing.T) {
	t.Run("push to registered session", func(t *testing.T) {
		h := NewHub(nil)
		s := &fakeSession{id: "sess-1"}
		h.Register(s)

		if err := h.Push("sess-1", map[string]string{"type": "test"}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
		if len(s.payloads) != 1 {
			t.Errorf("session received %d payloads, want 1", len(s.payloads))
		}
	})

	t.Run("push to unknown session", func(t *testing.T) {
		h := NewHub(nil)
		if err := h.Push("ghost", "x"); !errors.Is(err, ErrNoSession) {
			t.Errorf("Push() error = %v, want ErrNoSession", err)
		}
	})

	t.Run("failed write reports stale", func(t *testing.T) {
		h := NewHub(nil)
		h.Register(&fakeSession{id: "sess-2", fail: true})

		if err := h.Push("sess-2", "x"); !errors.Is(err, ErrStaleSession) {
			t.Errorf("Push() error = %v, want ErrStaleSession", err)
		}
	})

	t.Run("unregister removes session", func(t *testing.T) {
		h := NewHub(nil)
		h.Register(&fakeSession{id: "sess-3"})
		if h.Count() != 1 {
			t.Fatalf("Count() = %d, want 1", h.Count())
		}
		h.Unregister("sess-3")
		if h.Count() != 0 {
			t.Errorf("Count() = %d, want 0", h.Count())
		}
		if err := h.Push("sess-3", "x"); !errors.Is(err, ErrNoSession) {
			t.Error("unregistered session still reachable")
		}
	})
}
