package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageMessage is the envelope carried on every queue hop. Fields are
// additive: each stage appends its output and never removes what earlier
// stages wrote. Workers must tolerate fields they do not recognize, which
// is why forwarding goes through ExtendRaw rather than re-marshaling the
// struct (a struct round-trip would silently drop unknown fields).
type StageMessage struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	JobID     string `json:"jobId"`
	Timestamp string `json:"timestamp"`

	// Set by the dispatcher after OCR.
	ExtractedText    []string `json:"extractedText,omitempty"`
	TextractComplete bool     `json:"textractComplete,omitempty"`

	// Set by the segmentation worker.
	Candidates      []BookCandidate `json:"candidates,omitempty"`
	BedrockComplete bool            `json:"bedrockComplete,omitempty"`
}

// Validate checks the invariants every hop relies on.
func (m *StageMessage) Validate() error {
	if m.JobID == "" {
		return fmt.Errorf("stage message missing jobId")
	}
	return nil
}

// NewStageMessage creates the first pipeline message for a job.
func NewStageMessage(jobID, bucket, key string) *StageMessage {
	return &StageMessage{
		Bucket:    bucket,
		Key:       key,
		JobID:     jobID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ParseStageMessage decodes a queue payload. Unknown fields are ignored on
// read; they are preserved on write by ExtendRaw.
func ParseStageMessage(raw []byte) (*StageMessage, error) {
	var m StageMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse stage message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ExtendRaw merges new fields into an existing raw stage message without
// disturbing fields this stage does not know about. Existing keys are
// overwritten only if named in fields.
func ExtendRaw(raw []byte, fields map[string]any) ([]byte, error) {
	payload := make(map[string]any)
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse stage message for extension: %w", err)
	}
	for k, v := range fields {
		payload[k] = v
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize extended stage message: %w", err)
	}
	return out, nil
}
