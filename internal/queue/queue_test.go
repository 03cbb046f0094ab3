package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestAttemptCount(t *testing.T) {
	t.Run("fresh message", func(t *testing.T) {
		if got := AttemptCount(nil); got != 0 {
			t.Errorf("AttemptCount(nil) = %d, want 0", got)
		}
		if got := AttemptCount(amqp.Table{}); got != 0 {
			t.Errorf("AttemptCount(empty) = %d, want 0", got)
		}
	})

	t.Run("header variants", func(t *testing.T) {
		cases := []struct {
			name  string
			value any
			want  int
		}{
			{"int64", int64(3), 3},
			{"int32", int32(2), 2},
			{"int", 1, 1},
			{"garbage", "three", 0},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				got := AttemptCount(amqp.Table{retryCountHeader: c.value})
				if got != c.want {
					t.Errorf("AttemptCount() = %d, want %d", got, c.want)
				}
			})
		}
	})
}

func TestRetryPolicy(t *testing.T) {
	t.Run("exhaustion accounting", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

		// First delivery has 0 prior attempts; budget of 3 allows prior
		// attempt counts 0 and 1, exhausts at 2.
		if p.Exhausted(0) {
			t.Error("fresh message should not be exhausted")
		}
		if p.Exhausted(1) {
			t.Error("second delivery should not be exhausted")
		}
		if !p.Exhausted(2) {
			t.Error("third delivery should exhaust a budget of 3")
		}
	})

	t.Run("defaults are sane", func(t *testing.T) {
		p := DefaultRetryPolicy()
		if p.MaxAttempts < 2 {
			t.Errorf("MaxAttempts = %d, want at least one retry", p.MaxAttempts)
		}
		if p.Backoff <= 0 {
			t.Error("Backoff must be positive")
		}
	})
}
