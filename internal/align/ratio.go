package align

import (
	"math"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/hpungsan/quotemap/internal/transcript"
)

// DefaultThreshold is the minimum fuzzy score for a text match.
const DefaultThreshold = 85

// Ratio returns a 0-100 similarity score between two already-normalized
// strings. It is the indel ratio (lensum - d) / lensum, where d is the
// edit distance with substitutions costing two. Either side empty scores 0.
//
// Inputs from transcript.NormalizeText are ASCII, so byte-wise distance is
// the same as rune-wise distance.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	lensum := len(a) + len(b)
	d := smetrics.WagnerFischer(a, b, 1, 1, 2)
	return int(math.Round(100 * float64(lensum-d) / float64(lensum)))
}

// Score compares an annotation quote against a segment: 100 on exact
// containment in either the raw or display text, otherwise the fuzzy ratio of
// the normalized forms.
func Score(quote string, seg transcript.Segment) int {
	if Contains(seg, quote) {
		return 100
	}
	return Ratio(transcript.NormalizeText(seg.Text), transcript.NormalizeText(quote))
}

// Contains reports whether quote occurs literally in the segment.
func Contains(seg transcript.Segment, quote string) bool {
	if quote == "" {
		return false
	}
	return strings.Contains(seg.SourceText(), quote) || strings.Contains(seg.Text, quote)
}
