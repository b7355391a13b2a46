package ocr

import (
	"image"
	"strings"
)

// Candidate is one recognized text span from a single engine.
type Candidate struct {
	// Recognized text as reported by the engine
	Text string

	// Confidence score in [0, 1]
	Confidence float64

	// Identifier of the engine that produced this span
	Engine string

	// Zero-based page index the span was recognized on
	Page int

	// Bounding region in image pixel coordinates. Zero for engines
	// that only return whole-page text.
	Region image.Rectangle
}

// Result holds the output of one engine run on one page.
type Result struct {
	// Engine identifier
	Engine string

	// Recognized spans, in engine-reported order
	Candidates []Candidate

	// Full plain text of the page (all spans joined)
	Text string

	// Additional provider-specific metadata
	Metadata map[string]string
}

// MergedCandidate is a deduplicated candidate carrying the combined
// cross-engine score alongside the retained instance.
type MergedCandidate struct {
	Candidate

	// Combined is the weighted average confidence across the engines
	// that produced this text. Ranking in MergedResult uses this value.
	Combined float64
}

// MergedResult is the ranked union of candidates across all engines
// tried for one page, highest combined score first.
type MergedResult struct {
	Page       int
	Candidates []MergedCandidate
}

// NormalizeText folds case and collapses whitespace so that the same
// recognized string from different engines groups together during merge.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
