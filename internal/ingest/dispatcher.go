// Package ingest accepts shelf photo uploads and starts pipeline jobs.
// Ingest is the synchronous part of the system: OCR runs inline, and a
// photo that yields no text fails here instead of producing an empty job.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jackzampolin/shelfscan/internal/ocr"
	"github.com/jackzampolin/shelfscan/internal/queue"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// ImageStore is the slice of the object store the dispatcher needs.
type ImageStore interface {
	PutImage(ctx context.Context, jobID string, data []byte, contentType string) (string, error)
	Bucket() string
}

// StagePublisher publishes the first pipeline message.
type StagePublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// ProgressPublisher announces stage progress, best-effort.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, p *types.ProgressPush) error
}

// Config wires a Dispatcher.
type Config struct {
	Detector  ocr.Detector
	Store     ImageStore
	Publisher StagePublisher
	Events    ProgressPublisher // optional
	Logger    *slog.Logger

	// MinLineConfidence drops OCR lines below this confidence before they
	// reach segmentation. Zero keeps everything.
	MinLineConfidence float64
}

// Dispatcher runs the ingest flow: store the image, extract text, mint the
// job, publish the first stage message.
type Dispatcher struct {
	detector  ocr.Detector
	store     ImageStore
	publisher StagePublisher
	events    ProgressPublisher
	logger    *slog.Logger
	minConf   float64
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Detector == nil {
		return nil, fmt.Errorf("dispatcher requires a text detector")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("dispatcher requires an image store")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("dispatcher requires a publisher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		detector:  cfg.Detector,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		events:    cfg.Events,
		logger:    logger,
		minConf:   cfg.MinLineConfidence,
	}, nil
}

// Dispatch starts one job and returns its id. The jobId is minted here and
// never changes downstream. Any failure before the publish means no job
// exists; the client sees the error and can simply retry the upload.
func (d *Dispatcher) Dispatch(ctx context.Context, image []byte, contentType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty upload")
	}

	jobID := uuid.New().String()
	logger := d.logger.With("job_id", jobID)

	key, err := d.store.PutImage(ctx, jobID, image, contentType)
	if err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}

	lines, err := d.detector.DetectLines(ctx, image, contentType)
	if err != nil {
		return "", fmt.Errorf("text detection failed: %w", err)
	}
	text := ocr.FilterConfidence(lines, d.minConf)
	logger.Info("text extracted", "lines", len(lines), "kept", len(text))

	msg := types.NewStageMessage(jobID, d.store.Bucket(), key)
	msg.ExtractedText = text
	msg.TextractComplete = true

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("serializing stage message: %w", err)
	}
	if err := d.publisher.Publish(ctx, queue.SegmentRoutingKey, body); err != nil {
		return "", fmt.Errorf("starting pipeline for %s: %w", jobID, err)
	}

	if d.events != nil {
		p := &types.ProgressPush{
			Type:   "processingStage",
			JobID:  jobID,
			Stage:  types.StageTextract,
			Status: "completed",
		}
		if err := d.events.PublishProgress(ctx, p); err != nil {
			logger.Debug("progress publish failed", "error", err)
		}
	}

	logger.Info("job dispatched", "bucket", d.store.Bucket(), "key", key)
	return jobID, nil
}
