// Package match implements candidate-to-catalog scoring. The scoring
// constants are heuristics tuned against labeled shelf photos, so they are
// carried as configuration rather than baked-in invariants.
package match

import (
	"strings"

	"github.com/jackzampolin/shelfscan/internal/types"
)

// Weights configures the scoring engine.
type Weights struct {
	Title  float64 `mapstructure:"title"`  // weight on title similarity
	Author float64 `mapstructure:"author"` // weight on author similarity

	// AcceptThreshold is the minimum score for a catalog match to be
	// accepted. Below it the candidate stays unvalidated.
	AcceptThreshold float64 `mapstructure:"accept_threshold"`

	// UnvalidatedPenalty multiplies the candidate's confidence when no
	// provider produced an acceptable match.
	UnvalidatedPenalty float64 `mapstructure:"unvalidated_penalty"`
}

// DefaultWeights returns the tuned defaults.
func DefaultWeights() Weights {
	return Weights{
		Title:              0.7,
		Author:             0.3,
		AcceptThreshold:    0.5,
		UnvalidatedPenalty: 0.55,
	}
}

// TitleSimilarity compares two titles. Case-insensitive exact match after
// trimming scores 1.0, substring containment 0.8, otherwise the unique-word
// overlap ratio |common| / max(|a|, |b|).
func TitleSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	wordsA := uniqueWords(a)
	wordsB := uniqueWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	common := 0
	for w := range wordsA {
		if wordsB[w] {
			common++
		}
	}
	max := len(wordsA)
	if len(wordsB) > max {
		max = len(wordsB)
	}
	return float64(common) / float64(max)
}

// BestAuthorSimilarity returns the best pairwise similarity between the
// candidate's authors and the catalog result's authors. Either list being
// empty scores 0.
func BestAuthorSimilarity(candidateAuthors, resultAuthors []string) float64 {
	best := 0.0
	for _, ca := range candidateAuthors {
		if strings.TrimSpace(ca) == "" {
			continue
		}
		for _, ra := range resultAuthors {
			if s := TitleSimilarity(ca, ra); s > best {
				best = s
			}
		}
	}
	return best
}

// Score rates one catalog result against a candidate.
func Score(w Weights, cand types.BookCandidate, res types.ValidationResult) float64 {
	authors := candidateAuthors(cand)
	return w.Title*TitleSimilarity(cand.Title, res.Title) +
		w.Author*BestAuthorSimilarity(authors, res.Authors)
}

// BestOf returns the index and score of the highest-scoring result, breaking
// ties in favor of results carrying an ISBN. Returns index -1 for an empty
// slice.
func BestOf(w Weights, cand types.BookCandidate, results []types.ValidationResult) (int, float64) {
	bestIdx := -1
	bestScore := 0.0
	for i, res := range results {
		s := Score(w, cand, res)
		if bestIdx == -1 || s > bestScore {
			bestIdx, bestScore = i, s
			continue
		}
		if s == bestScore && results[bestIdx].ISBN == "" && res.ISBN != "" {
			bestIdx = i
		}
	}
	return bestIdx, bestScore
}

// ConfidenceBoost returns the confidence multiplier for an accepted match,
// banded by score.
func ConfidenceBoost(score float64) float64 {
	switch {
	case score > 0.8:
		return 1.2
	case score > 0.6:
		return 1.1
	default:
		return 1.0
	}
}

// Finalize merges the best catalog result (if acceptable) into the candidate.
// Below the acceptance threshold the candidate's original fields are kept
// unchanged and its confidence is penalized; above it the catalog fields are
// adopted and confidence is boosted, capped at 1.0.
func Finalize(w Weights, cand types.BookCandidate, best *types.ValidationResult, score float64) types.ValidatedBook {
	book := types.ValidatedBook{
		Title:      cand.Title,
		Author:     cand.Author,
		Subtitle:   cand.Subtitle,
		Confidence: clamp01(cand.Confidence),
		Status:     types.StatusUnvalidated,
	}

	if best == nil || score < w.AcceptThreshold {
		book.Confidence = clamp01(book.Confidence * w.UnvalidatedPenalty)
		return book
	}

	book.Status = types.StatusValidated
	book.Title = best.Title
	book.Authors = best.Authors
	book.ISBN = best.ISBN
	book.Publisher = best.Publisher
	book.PublishedDate = best.PublishedDate
	book.ThumbnailURL = best.ThumbnailURL
	book.MatchScore = score
	book.Confidence = clamp01(book.Confidence * ConfidenceBoost(score))
	return book
}

func candidateAuthors(cand types.BookCandidate) []string {
	if strings.TrimSpace(cand.Author) == "" {
		return nil
	}
	return []string{cand.Author}
}

func uniqueWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		words[w] = true
	}
	return words
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
