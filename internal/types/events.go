package types

import "time"

// CompletionEvent is published on the completion channel when a job's
// FinalResults have been durably written.
type CompletionEvent struct {
	JobID           string          `json:"jobId"`
	Status          string          `json:"status"` // "complete"
	Books           []ValidatedBook `json:"books"`
	ValidatedBooks  int             `json:"validatedBooks"`
	TotalCandidates int             `json:"totalCandidates"`
	ResultsLocation string          `json:"resultsLocation"`
}

// SubscribeMessage is sent by a client over its session channel to declare
// which job it is waiting on. It may arrive any time before (or shortly
// after) the completion event.
type SubscribeMessage struct {
	Action string `json:"action"` // "subscribe"
	JobID  string `json:"jobId"`
}

// CompletionPush is the terminal message delivered to a waiting client.
type CompletionPush struct {
	Type      string            `json:"type"` // "processingComplete"
	JobID     string            `json:"jobId"`
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Results   CompletionResults `json:"results"`
}

// CompletionResults is the payload of a CompletionPush.
type CompletionResults struct {
	TotalCandidates int             `json:"totalCandidates"`
	ValidatedBooks  int             `json:"validatedBooks"`
	Books           []ValidatedBook `json:"books"`
}

// ProgressPush is a best-effort intermediate stage notification.
type ProgressPush struct {
	Type   string `json:"type"` // "processingStage"
	JobID  string `json:"jobId,omitempty"`
	Stage  string `json:"stage"`  // "textract", "bedrock", "validation"
	Status string `json:"status"` // "started", "completed"
}

// Stage names used in progress pushes. The wire names are kept from the
// original deployment so existing clients keep working.
const (
	StageTextract   = "textract"
	StageBedrock    = "bedrock"
	StageValidation = "validation"
)

// NewCompletionPush builds the client push for a completion event.
func NewCompletionPush(ev *CompletionEvent) *CompletionPush {
	return &CompletionPush{
		Type:      "processingComplete",
		JobID:     ev.JobID,
		Status:    ev.Status,
		Timestamp: time.Now().UTC(),
		Results: CompletionResults{
			TotalCandidates: ev.TotalCandidates,
			ValidatedBooks:  ev.ValidatedBooks,
			Books:           ev.Books,
		},
	}
}
