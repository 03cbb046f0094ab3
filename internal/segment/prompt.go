package segment

import (
	"fmt"
	"strings"
)

// systemPrompt is the fixed instruction set for candidate extraction. The
// contract matters more than the wording: no fabrication, JSON only, and
// confidence reflects fragment-grouping certainty rather than whether the
// book exists in any catalog.
const systemPrompt = `You are an expert at reading noisy OCR output from photographs of bookshelves.

The user gives you line-segmented OCR text from one photo. Lines are unordered
fragments: title words, author names, publisher noise, duplicated lines, and
single-character noise tokens. Spine text is often ALL CAPS and a single
spine's text may be split across several lines.

Rules:
1. Emit a candidate only when adjacent fragments clearly support a real
   title (and optionally an author). Never invent a book to explain leftover
   fragments.
2. Never fabricate a missing field. If no author fragment supports the
   candidate, set "author" to null. Same for "subtitle".
3. Normalize casing to standard title casing ("FROM BACTERIA TO BACH" ->
   "From Bacteria to Bach").
4. "confidence" is a number in [0,1] expressing how certain you are that the
   fragments group into this candidate. It says nothing about whether the
   book can be found in a catalog.
5. Respond with ONLY a JSON object matching this shape, no markdown, no
   commentary:
   {"candidates": [{"title": "...", "author": "..." | null, "subtitle": "..." | null, "confidence": 0.0}]}
6. If nothing in the text supports a candidate, respond {"candidates": []}.`

// BuildPrompt renders the user prompt for one job's OCR lines.
func BuildPrompt(lines []string) string {
	var b strings.Builder
	b.WriteString("OCR lines from one bookshelf photo:\n\n")
	for i, line := range lines {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	b.WriteString("\nExtract the book candidates.")
	return b.String()
}
