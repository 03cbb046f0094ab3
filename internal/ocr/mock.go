package ocr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockDetector is a Detector for testing.
type MockDetector struct {
	Lines      []Line
	ShouldFail bool
	Latency    time.Duration

	detectCount atomic.Int64
}

// Name returns the detector identifier.
func (d *MockDetector) Name() string { return "mock" }

// DetectCount reports how many detections were made.
func (d *MockDetector) DetectCount() int {
	return int(d.detectCount.Load())
}

// DetectLines returns the scripted lines.
func (d *MockDetector) DetectLines(ctx context.Context, image []byte, contentType string) ([]Line, error) {
	d.detectCount.Add(1)

	if d.ShouldFail {
		return nil, fmt.Errorf("mock detector configured to fail")
	}
	if d.Latency > 0 {
		select {
		case <-time.After(d.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.Lines, nil
}
