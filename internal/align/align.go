// Package align maps coded annotations onto transcript segments and reports
// which segments no annotation references.
package align

import (
	"github.com/hpungsan/quotemap/internal/transcript"
)

// Options tunes text matching.
type Options struct {
	// Threshold is the minimum fuzzy score (0-100) for a text match.
	// Nil means DefaultThreshold; 0 accepts every segment.
	Threshold *int
}

// MinScore returns the effective threshold.
func (o Options) MinScore() int {
	if o.Threshold == nil {
		return DefaultThreshold
	}
	return *o.Threshold
}

// Result holds per-annotation matches split by authorship, and the ids of
// segments matched by no annotation. Match lists follow segment order.
type Result struct {
	MachineMatches map[string][]string `json:"machine_matches"`
	HumanMatches   map[string][]string `json:"human_matches"`
	Unmapped       []string            `json:"unmapped"`
}

// Align resolves every annotation against segments.
//
// A marker resolves to exactly the segment at its index, or to nothing when
// the index is out of bounds. A source resolves to the segment it names. A
// text annotation matches every segment that contains its text literally or
// scores at least the threshold on normalized text; there is no cap on the
// number of matches.
func Align(segments []transcript.Segment, annotations []Annotation, opts Options) (*Result, error) {
	if err := ValidateAll(annotations); err != nil {
		return nil, err
	}

	m := newMatcher(segments, opts.MinScore())
	result := &Result{
		MachineMatches: make(map[string][]string),
		HumanMatches:   make(map[string][]string),
	}
	matched := make(map[string]bool, len(segments))

	for _, a := range annotations {
		ids := m.match(a)
		for _, id := range ids {
			matched[id] = true
		}
		switch a.AuthoredBy {
		case AuthoredByMachine:
			result.MachineMatches[a.ID] = ids
		case AuthoredByHuman:
			result.HumanMatches[a.ID] = ids
		}
	}

	result.Unmapped = Unmapped(segments, matched)
	return result, nil
}

// Unmapped returns segment ids, deduplicated and in segment order, that are
// absent from matched.
func Unmapped(segments []transcript.Segment, matched map[string]bool) []string {
	seen := make(map[string]bool, len(segments))
	unmapped := make([]string, 0)
	for _, s := range segments {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if !matched[s.ID] {
			unmapped = append(unmapped, s.ID)
		}
	}
	return unmapped
}

// matcher caches per-segment normalized text across annotations.
type matcher struct {
	segments   []transcript.Segment
	normalized []string
	threshold  int
}

func newMatcher(segments []transcript.Segment, threshold int) *matcher {
	normalized := make([]string, len(segments))
	for i, s := range segments {
		normalized[i] = transcript.NormalizeText(s.Text)
	}
	return &matcher{segments: segments, normalized: normalized, threshold: threshold}
}

// match returns the matched segment ids for a, deduplicated, in segment order.
func (m *matcher) match(a Annotation) []string {
	ids := make([]string, 0)
	seen := make(map[string]bool)
	add := func(s transcript.Segment) {
		if !seen[s.ID] {
			seen[s.ID] = true
			ids = append(ids, s.ID)
		}
	}

	switch a.Mode() {
	case ModeMarker:
		if i := a.Marker.Index; i >= 0 && i < len(m.segments) {
			add(m.segments[i])
		}
	case ModeSource:
		for _, s := range m.segments {
			if sourceMatches(a.Source, s) {
				add(s)
			}
		}
	case ModeText:
		quote := transcript.NormalizeText(a.Text)
		for i, s := range m.segments {
			if Contains(s, a.Text) || Ratio(m.normalized[i], quote) >= m.threshold {
				add(s)
			}
		}
	}
	return ids
}

func sourceMatches(src *SourceRef, s transcript.Segment) bool {
	switch src.Type {
	case SourceComment:
		return s.Kind == transcript.KindComment && s.ID == src.CommentID
	case SourcePost:
		if src.Title {
			return s.Kind == transcript.KindTitle
		}
		return s.Kind == transcript.KindSelftext
	}
	return false
}
