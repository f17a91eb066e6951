// Package transcript linearizes a nested post into addressable text segments.
//
// The position of a segment in the slice returned by Flatten is its address:
// structural pointers recorded against one flattening stay valid only while
// the post is flattened with the same content.
package transcript

import (
	"github.com/hpungsan/quotemap/internal/thread"
)

// Kind tags the origin of a segment.
type Kind string

const (
	KindTitle    Kind = "title"
	KindSelftext Kind = "selftext"
	KindComment  Kind = "comment"
)

// Segment is one addressable unit of flattened transcript text.
type Segment struct {
	Index    int     `json:"index"`
	ID       string  `json:"id"`
	Kind     Kind    `json:"type"`
	Text     string  `json:"text"`
	ParentID *string `json:"parent_id"`

	// Raw is the text before whitespace normalization.
	Raw string `json:"-"`
}

// SourceText returns Raw when known, otherwise the display text.
func (s Segment) SourceText() string {
	if s.Raw != "" {
		return s.Raw
	}
	return s.Text
}

// SegmentID returns the segment id for a post-level segment kind, or id
// itself for comments.
func SegmentID(id string, kind Kind) string {
	switch kind {
	case KindTitle:
		return id + "-title"
	case KindSelftext:
		return id + "-selftext"
	default:
		return id
	}
}

// Flatten produces the title segment, the selftext segment, then one segment
// per reachable comment in pre-order. Traversal uses an explicit stack so
// thread depth is bounded only by memory.
func Flatten(post *thread.NestedPost) []Segment {
	if post == nil {
		return []Segment{}
	}

	count := thread.CountNodes(post.Comments)
	segments := make([]Segment, 0, 2+count)
	segments = append(segments,
		Segment{
			Index: 0,
			ID:    SegmentID(post.ID, KindTitle),
			Kind:  KindTitle,
			Text:  DisplayText(post.Title),
			Raw:   post.Title,
		},
		Segment{
			Index: 1,
			ID:    SegmentID(post.ID, KindSelftext),
			Kind:  KindSelftext,
			Text:  DisplayText(post.Selftext),
			Raw:   post.Selftext,
		},
	)

	// Structural parents, used when a nested payload omits parent_id.
	parents := make(map[*thread.NestedComment]string, count)
	for _, c := range post.Comments {
		if c != nil {
			parents[c] = post.ID
		}
	}

	thread.Walk(post.Comments, func(c *thread.NestedComment, _ int) bool {
		parent := c.ParentID
		if parent == "" {
			parent = parents[c]
		}
		for _, child := range c.Comments {
			if child != nil {
				parents[child] = c.ID
			}
		}

		segments = append(segments, Segment{
			Index:    len(segments),
			ID:       SegmentID(c.ID, KindComment),
			Kind:     KindComment,
			Text:     DisplayText(c.Body),
			ParentID: &parent,
			Raw:      c.Body,
		})
		return true
	})

	return segments
}

// IDs returns the segment ids in order.
func IDs(segments []Segment) []string {
	ids := make([]string, len(segments))
	for i, s := range segments {
		ids[i] = s.ID
	}
	return ids
}
