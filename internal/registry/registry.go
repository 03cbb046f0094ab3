// Package registry maps job identifiers to live client sessions. It is the
// only shared state between the pipeline and the gateway, kept in Redis so
// any replica can resolve any job, with TTL-based expiry so abandoned
// sessions clean themselves up.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("connection record not found")

// Status of a connection record.
type Status string

const (
	// StatusConnected: the session is open but has not yet declared a job.
	StatusConnected Status = "connected"
	// StatusSubscribed: the session declared the job it is waiting on.
	StatusSubscribed Status = "subscribed"
)

// Record is one session's registry entry.
type Record struct {
	JobID     string    `json:"jobId,omitempty"`
	SessionID string    `json:"sessionId"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Registry is the Redis-backed connection registry.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultTTL bounds how long an entry may outlive its usefulness.
const DefaultTTL = time.Hour

// New creates a registry with the given TTL (DefaultTTL if zero).
func New(client *redis.Client, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string { return "conn:session:" + sessionID }
func jobKey(jobID string) string         { return "conn:job:" + jobID }

// Connect records a newly opened session under its session-local id.
func (r *Registry) Connect(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("empty session id")
	}
	rec := &Record{
		SessionID: sessionID,
		Status:    StatusConnected,
		ExpiresAt: time.Now().Add(r.ttl),
	}
	if err := r.set(ctx, sessionKey(sessionID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Subscribe re-keys a connected session to the job it declared. The session
// must have connected first; the job-keyed entry is what the notifier
// resolves on completion.
func (r *Registry) Subscribe(ctx context.Context, sessionID, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("empty job id")
	}

	rec, err := r.get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}

	rec.JobID = jobID
	rec.Status = StatusSubscribed
	rec.ExpiresAt = time.Now().Add(r.ttl)

	if err := r.set(ctx, jobKey(jobID), rec); err != nil {
		return nil, err
	}
	if err := r.set(ctx, sessionKey(sessionID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Resolve returns the record for a job, or ErrNotFound.
func (r *Registry) Resolve(ctx context.Context, jobID string) (*Record, error) {
	return r.get(ctx, jobKey(jobID))
}

// Delete retires a job's entry after successful delivery (or on stale
// session cleanup). The linked session entry goes with it.
func (r *Registry) Delete(ctx context.Context, jobID string) error {
	rec, err := r.get(ctx, jobKey(jobID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	keys := []string{jobKey(jobID)}
	if rec.SessionID != "" {
		keys = append(keys, sessionKey(rec.SessionID))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete connection records: %w", err)
	}
	return nil
}

// Disconnect removes a session's entries when its socket closes.
func (r *Registry) Disconnect(ctx context.Context, sessionID string) error {
	rec, err := r.get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	keys := []string{sessionKey(sessionID)}
	if rec.JobID != "" {
		keys = append(keys, jobKey(rec.JobID))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete connection records: %w", err)
	}
	return nil
}

func (r *Registry) set(ctx context.Context, key string, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize connection record: %w", err)
	}
	if err := r.client.Set(ctx, key, body, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store connection record: %w", err)
	}
	return nil
}

func (r *Registry) get(ctx context.Context, key string) (*Record, error) {
	body, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch connection record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse connection record: %w", err)
	}
	return &rec, nil
}
