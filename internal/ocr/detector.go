// Package ocr extracts text lines from shelf photos. The detector runs
// synchronously at ingest: a photo that cannot be read fails the upload
// rather than entering the pipeline.
package ocr

import "context"

// Line is one detected text fragment. Spine text arrives fragmented and
// out of order; reassembly into titles is the segmentation stage's job,
// not ours.
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // [0,1]
}

// Detector extracts text lines from an image.
type Detector interface {
	Name() string
	DetectLines(ctx context.Context, image []byte, contentType string) ([]Line, error)
}

// Texts flattens lines to their text, dropping empties.
func Texts(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text == "" {
			continue
		}
		out = append(out, l.Text)
	}
	return out
}

// FilterConfidence drops lines below min and returns the surviving text.
func FilterConfidence(lines []Line, min float64) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text == "" || l.Confidence < min {
			continue
		}
		out = append(out, l.Text)
	}
	return out
}
