// Package types provides shared pipeline types used across workers.
// This package has no dependencies on other shelfscan packages to avoid
// import cycles.
package types

import "time"

// BookCandidate is a provisional title/author guess produced from fragmented
// OCR text by the segmentation worker. Immutable once produced. Absent
// fields stay empty - the segmentation prompt forbids fabricating values.
type BookCandidate struct {
	Title      string  `json:"title"`
	Author     string  `json:"author,omitempty"`
	Subtitle   string  `json:"subtitle,omitempty"`
	Confidence float64 `json:"confidence"`
}

// BookStatus indicates whether a candidate was confirmed by a catalog.
type BookStatus string

const (
	StatusValidated   BookStatus = "validated"
	StatusUnvalidated BookStatus = "unvalidated"
)

// ValidationResult is one provider's best answer for one candidate.
// Ephemeral - lives only inside the validation worker.
type ValidationResult struct {
	Validated     bool     `json:"validated"`
	Title         string   `json:"title,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	ISBN          string   `json:"isbn,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	ThumbnailURL  string   `json:"thumbnailUrl,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// ValidatedBook is the final per-candidate record: the original candidate
// merged with the best catalog match (if any).
type ValidatedBook struct {
	Title      string     `json:"title"`
	Author     string     `json:"author,omitempty"`
	Subtitle   string     `json:"subtitle,omitempty"`
	Confidence float64    `json:"confidence"`
	Status     BookStatus `json:"status"`

	// Catalog fields, present only when Status is validated.
	Authors       []string `json:"authors,omitempty"`
	ISBN          string   `json:"isbn,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	ThumbnailURL  string   `json:"thumbnailUrl,omitempty"`
	MatchScore    float64  `json:"matchScore,omitempty"`
}

// FinalResults is the durable per-job result document, written exactly once
// per job (last-writer-wins under erroneous reprocessing).
type FinalResults struct {
	JobID           string          `json:"jobId"`
	Timestamp       time.Time       `json:"timestamp"`
	TotalCandidates int             `json:"totalCandidates"`
	ValidatedCount  int             `json:"validatedCount"`
	Books           []ValidatedBook `json:"books"`
}
