package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/jackzampolin/shelfscan/internal/ingest"
	"github.com/jackzampolin/shelfscan/internal/ocr"
	"github.com/jackzampolin/shelfscan/internal/results"
	"github.com/jackzampolin/shelfscan/internal/svcctx"
)

type fakeImageStore struct {
	mu     sync.Mutex
	images map[string][]byte
}

func (s *fakeImageStore) PutImage(ctx context.Context, jobID string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.images == nil {
		s.images = make(map[string][]byte)
	}
	s.images[jobID] = data
	return "uploads/" + jobID + ".jpg", nil
}

func (s *fakeImageStore) Bucket() string { return "shelfscan" }

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, routingKey string, body []byte) error { return nil }

// newTestServer builds a server whose dispatcher runs entirely on fakes.
// The result store is real but points nowhere; endpoints that touch it see
// network errors, which is fine for routing-level tests.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := results.NewStore(results.Config{
		Endpoint:  "localhost:1",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "shelfscan",
	})
	if err != nil {
		t.Fatal(err)
	}

	dispatcher, err := ingest.NewDispatcher(ingest.Config{
		Detector:  &ocr.MockDetector{Lines: []ocr.Line{{Text: "DENNETT", Confidence: 0.9}}},
		Store:     &fakeImageStore{},
		Publisher: nopPublisher{},
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{
		Addr: "127.0.0.1:0",
		Services: &svcctx.Services{
			Dispatcher: dispatcher,
			Store:      store,
			Logger:     slog.New(slog.DiscardHandler),
		},
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func multipartPhoto(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="shelf.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, writer.FormDataContentType()
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("scan accepts a photo", func(t *testing.T) {
		body, contentType := multipartPhoto(t, "photo", []byte("fake-jpeg-bytes"))
		resp, err := http.Post(ts.URL+"/scan", contentType, body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			raw, _ := io.ReadAll(resp.Body)
			t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
		}

		var scan struct {
			JobID  string `json:"jobId"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&scan); err != nil {
			t.Fatal(err)
		}
		if scan.JobID == "" || scan.Status != "processing" {
			t.Errorf("scan response = %+v", scan)
		}
	})

	t.Run("scan rejects wrong field name", func(t *testing.T) {
		body, contentType := multipartPhoto(t, "file", []byte("fake-jpeg-bytes"))
		resp, err := http.Post(ts.URL+"/scan", contentType, body)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("scan rejects non-multipart body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/scan", "application/json", bytes.NewBufferString("{}"))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/nope")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestRequireInit(t *testing.T) {
	s, err := New(Config{
		Services: &svcctx.Services{}, // nothing wired
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("gated endpoints return 503", func(t *testing.T) {
		for _, path := range []string{"/results/job-1", "/ws"} {
			resp, err := http.Get(ts.URL + path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("GET %s status = %d, want 503", path, resp.StatusCode)
			}
		}
	})

	t.Run("health still responds", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}
