package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackzampolin/shelfscan/internal/ocr"
	"github.com/jackzampolin/shelfscan/internal/queue"
	"github.com/jackzampolin/shelfscan/internal/types"
)

type fakeImageStore struct {
	mu     sync.Mutex
	images map[string][]byte
	err    error
}

func (s *fakeImageStore) PutImage(ctx context.Context, jobID string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.images == nil {
		s.images = make(map[string][]byte)
	}
	s.images[jobID] = data
	return "uploads/" + jobID + ".jpg", nil
}

func (s *fakeImageStore) Bucket() string { return "shelfscan" }

type capturePublisher struct {
	mu       sync.Mutex
	routing  []string
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.routing = append(p.routing, routingKey)
	p.payloads = append(p.payloads, body)
	return nil
}

func newTestDispatcher(t *testing.T, det ocr.Detector, store *fakeImageStore, pub *capturePublisher) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Config{
		Detector:          det,
		Store:             store,
		Publisher:         pub,
		Logger:            slog.New(slog.DiscardHandler),
		MinLineConfidence: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	image := []byte("fake-jpeg-bytes")

	t.Run("starts a job", func(t *testing.T) {
		det := &ocr.MockDetector{Lines: []ocr.Line{
			{Text: "CONSCIOUSNESS", Confidence: 0.98},
			{Text: "EXPLAINED", Confidence: 0.95},
			{Text: "smudge", Confidence: 0.2},
		}}
		store := &fakeImageStore{}
		pub := &capturePublisher{}
		d := newTestDispatcher(t, det, store, pub)

		jobID, err := d.Dispatch(ctx, image, "image/jpeg")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if jobID == "" {
			t.Fatal("empty job id")
		}
		if _, ok := store.images[jobID]; !ok {
			t.Error("image not stored under job id")
		}

		if len(pub.payloads) != 1 {
			t.Fatalf("published %d messages, want 1", len(pub.payloads))
		}
		if pub.routing[0] != queue.SegmentRoutingKey {
			t.Errorf("routing key = %q, want %q", pub.routing[0], queue.SegmentRoutingKey)
		}

		msg, err := types.ParseStageMessage(pub.payloads[0])
		if err != nil {
			t.Fatalf("published message unreadable: %v", err)
		}
		if msg.JobID != jobID {
			t.Errorf("message jobId = %q, want %q", msg.JobID, jobID)
		}
		if !msg.TextractComplete {
			t.Error("textractComplete not set")
		}
		if len(msg.ExtractedText) != 2 {
			t.Errorf("extractedText = %v, low-confidence line not filtered", msg.ExtractedText)
		}
		if msg.Bucket != "shelfscan" || msg.Key != "uploads/"+jobID+".jpg" {
			t.Errorf("location = %s/%s", msg.Bucket, msg.Key)
		}
	})

	t.Run("each upload gets a distinct job id", func(t *testing.T) {
		det := &ocr.MockDetector{Lines: []ocr.Line{{Text: "X", Confidence: 1}}}
		d := newTestDispatcher(t, det, &fakeImageStore{}, &capturePublisher{})

		a, err := d.Dispatch(ctx, image, "image/jpeg")
		if err != nil {
			t.Fatal(err)
		}
		b, err := d.Dispatch(ctx, image, "image/jpeg")
		if err != nil {
			t.Fatal(err)
		}
		if a == b {
			t.Errorf("job ids collide: %q", a)
		}
	})

	t.Run("detection failure is synchronous", func(t *testing.T) {
		det := &ocr.MockDetector{ShouldFail: true}
		pub := &capturePublisher{}
		d := newTestDispatcher(t, det, &fakeImageStore{}, pub)

		if _, err := d.Dispatch(ctx, image, "image/jpeg"); err == nil {
			t.Fatal("Dispatch() succeeded despite detection failure")
		}
		if len(pub.payloads) != 0 {
			t.Error("message published for a failed upload")
		}
	})

	t.Run("store failure aborts before detection", func(t *testing.T) {
		det := &ocr.MockDetector{Lines: []ocr.Line{{Text: "X", Confidence: 1}}}
		store := &fakeImageStore{err: errors.New("bucket gone")}
		d := newTestDispatcher(t, det, store, &capturePublisher{})

		if _, err := d.Dispatch(ctx, image, "image/jpeg"); err == nil {
			t.Fatal("Dispatch() succeeded despite storage failure")
		}
		if det.DetectCount() != 0 {
			t.Error("detection ran after storage failed")
		}
	})

	t.Run("publish failure surfaces to caller", func(t *testing.T) {
		det := &ocr.MockDetector{Lines: []ocr.Line{{Text: "X", Confidence: 1}}}
		pub := &capturePublisher{err: errors.New("broker down")}
		d := newTestDispatcher(t, det, &fakeImageStore{}, pub)

		if _, err := d.Dispatch(ctx, image, "image/jpeg"); err == nil {
			t.Fatal("Dispatch() succeeded despite publish failure")
		}
	})

	t.Run("empty upload rejected", func(t *testing.T) {
		det := &ocr.MockDetector{}
		d := newTestDispatcher(t, det, &fakeImageStore{}, &capturePublisher{})
		if _, err := d.Dispatch(ctx, nil, "image/jpeg"); err == nil {
			t.Error("Dispatch() accepted an empty upload")
		}
		if det.DetectCount() != 0 {
			t.Error("detector called for empty upload")
		}
	})
}
