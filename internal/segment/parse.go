package segment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackzampolin/shelfscan/internal/schema"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// Outcome is the tagged result of segmenting one job's OCR text. A Degraded
// outcome is terminal: the job continues with zero candidates instead of
// failing, and Reason records why for the logs.
type Outcome struct {
	Candidates []types.BookCandidate
	Degraded   bool
	Reason     string
}

// Ok builds a successful outcome.
func Ok(candidates []types.BookCandidate) Outcome {
	return Outcome{Candidates: candidates}
}

// Degraded builds a degraded outcome with an empty candidate set.
func Degraded(reason string) Outcome {
	return Outcome{Candidates: []types.BookCandidate{}, Degraded: true, Reason: reason}
}

// candidatesDoc matches the declared response schema.
type candidatesDoc struct {
	Candidates []types.BookCandidate `json:"candidates"`
}

// ParseCandidates converts raw model output into candidates. The output is
// schema-validated before any typed value is produced, so a malformed shape
// surfaces here instead of deep in the validation stage.
func ParseCandidates(content string) ([]types.BookCandidate, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(schema.CandidatesSchema, raw); err != nil {
		return nil, err
	}

	var doc candidatesDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}

	return sanitize(doc.Candidates), nil
}

// sanitize enforces the candidate invariants the rest of the pipeline
// relies on: non-empty titles, confidence within [0,1], no padding
// whitespace. Schema validation already rejects most of this; the clamp is
// kept because confidence feeds arithmetic downstream.
func sanitize(in []types.BookCandidate) []types.BookCandidate {
	out := make([]types.BookCandidate, 0, len(in))
	for _, c := range in {
		c.Title = strings.TrimSpace(c.Title)
		c.Author = strings.TrimSpace(c.Author)
		c.Subtitle = strings.TrimSpace(c.Subtitle)
		if c.Title == "" {
			continue
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		out = append(out, c)
	}
	return out
}

// extractJSON parses JSON from model output, with lightweight recovery for
// markdown code fences and surrounding prose.
func extractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	attempts := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		attempts = append(attempts, stripped)
	}
	if extracted := extractObject(content); extracted != "" && extracted != content {
		attempts = append(attempts, extracted)
	}

	for _, attempt := range attempts {
		var parsed any
		if err := json.Unmarshal([]byte(attempt), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize model output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("model output is not valid JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
