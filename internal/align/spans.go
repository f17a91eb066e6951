package align

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/quotemap/internal/transcript"
)

// Span is a run of segment display text covered by the same annotations.
type Span struct {
	Text          string   `json:"text"`
	AnnotationIDs []string `json:"annotation_ids,omitempty"`
}

type interval struct {
	start, end int // rune offsets, end exclusive
	id         string
}

// Spans splits a segment's display text into runs for highlighting. hits are
// the annotations already known to match the segment. A marker with a range
// covers that range; otherwise every literal occurrence of the annotation's
// display text is covered, and when there is none (fuzzy or structural
// matches) the whole segment is.
func Spans(seg transcript.Segment, hits []Annotation) []Span {
	text := []rune(seg.Text)
	n := len(text)
	if n == 0 {
		return []Span{}
	}

	var intervals []interval
	for _, a := range hits {
		intervals = append(intervals, annotationIntervals(seg.Text, n, a)...)
	}

	bounds := []int{0, n}
	for _, iv := range intervals {
		bounds = append(bounds, iv.start, iv.end)
	}
	sort.Ints(bounds)

	order := make(map[string]int, len(hits))
	for i, a := range hits {
		if _, ok := order[a.ID]; !ok {
			order[a.ID] = i
		}
	}

	spans := make([]Span, 0, len(bounds))
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if lo == hi {
			continue
		}
		active := activeIDs(intervals, lo, hi, order)
		if k := len(spans) - 1; k >= 0 && slices.Equal(spans[k].AnnotationIDs, active) {
			spans[k].Text += string(text[lo:hi])
			continue
		}
		spans = append(spans, Span{Text: string(text[lo:hi]), AnnotationIDs: active})
	}
	return spans
}

func annotationIntervals(text string, n int, a Annotation) []interval {
	if a.Marker != nil && len(a.Marker.Range) == 2 {
		start := min(max(a.Marker.Range[0], 0), n)
		end := min(max(a.Marker.Range[1], start), n)
		if start == end {
			return nil
		}
		return []interval{{start, end, a.ID}}
	}

	var out []interval
	if quote := transcript.DisplayText(a.Text); quote != "" {
		qLen := utf8.RuneCountInString(quote)
		offset := 0
		for {
			idx := strings.Index(text[offset:], quote)
			if idx < 0 {
				break
			}
			start := utf8.RuneCountInString(text[:offset+idx])
			out = append(out, interval{start, start + qLen, a.ID})
			offset += idx + len(quote)
		}
	}
	if len(out) == 0 {
		out = append(out, interval{0, n, a.ID})
	}
	return out
}

func activeIDs(intervals []interval, lo, hi int, order map[string]int) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, iv := range intervals {
		if iv.start <= lo && hi <= iv.end && !seen[iv.id] {
			seen[iv.id] = true
			ids = append(ids, iv.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return order[ids[i]] < order[ids[j]] })
	return ids
}
