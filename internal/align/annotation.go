package align

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/quotemap/internal/errors"
)

// Authorship separates machine-generated codes from researcher-authored ones.
type Authorship string

const (
	AuthoredByMachine Authorship = "machine"
	AuthoredByHuman   Authorship = "human"
)

// UnmarshalJSON accepts "llm" as an alias of machine.
func (a *Authorship) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "machine", "llm":
		*a = AuthoredByMachine
	case "human":
		*a = AuthoredByHuman
	default:
		*a = Authorship(s)
	}
	return nil
}

// Valid reports whether a is a known authorship.
func (a Authorship) Valid() bool {
	return a == AuthoredByMachine || a == AuthoredByHuman
}

// RangeMarker pins an annotation to the segment at Index in a specific
// flattening. Range, when present, is a [start, end) offset into the
// segment's display text.
type RangeMarker struct {
	Index int   `json:"index"`
	Range []int `json:"range,omitempty"`
}

// Source types.
const (
	SourceComment = "comment"
	SourcePost    = "post"
)

// SourceRef pins an annotation to a segment by identity instead of position:
// a comment by id, or the post's title or selftext.
type SourceRef struct {
	Type      string `json:"type"`
	CommentID string `json:"comment_id,omitempty"`
	Title     bool   `json:"title,omitempty"`
}

// Annotation is a code applied to a quoted excerpt. It is resolved in one of
// three ways: by Marker (position), by Source (identity), or, when neither is
// set, by searching segment text for Text.
type Annotation struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Code       string       `json:"code,omitempty"`
	AuthoredBy Authorship   `json:"authored_by"`
	Marker     *RangeMarker `json:"marker,omitempty"`
	Source     *SourceRef   `json:"source,omitempty"`
}

// Mode describes how an annotation is resolved.
type Mode int

const (
	ModeText Mode = iota
	ModeMarker
	ModeSource
)

// Mode returns the resolution mode for a.
func (a Annotation) Mode() Mode {
	switch {
	case a.Marker != nil:
		return ModeMarker
	case a.Source != nil:
		return ModeSource
	default:
		return ModeText
	}
}

// Validate rejects annotations whose shape cannot be resolved. An
// out-of-bounds marker index is not a validation error.
func (a Annotation) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.NewInvalidField("id", "is required")
	}
	if !a.AuthoredBy.Valid() {
		return errors.NewInvalidField("authored_by", fmt.Sprintf("must be one of: machine, human (got %q)", a.AuthoredBy))
	}
	if a.Marker != nil && a.Source != nil {
		return errors.NewInvalidField("marker", "cannot be combined with source")
	}

	switch a.Mode() {
	case ModeMarker:
		if r := a.Marker.Range; r != nil {
			if len(r) != 2 || r[0] < 0 || r[1] < r[0] {
				return errors.NewInvalidField("marker.range", "must be [start, end] with 0 <= start <= end")
			}
		}
	case ModeSource:
		switch a.Source.Type {
		case SourceComment:
			if strings.TrimSpace(a.Source.CommentID) == "" {
				return errors.NewInvalidField("source.comment_id", "is required for comment sources")
			}
		case SourcePost:
		default:
			return errors.NewInvalidField("source.type", fmt.Sprintf("must be one of: comment, post (got %q)", a.Source.Type))
		}
	case ModeText:
		if strings.TrimSpace(a.Text) == "" {
			return errors.NewInvalidField("text", "is required when no marker or source is given")
		}
	}
	return nil
}

// ValidateAll validates each annotation and rejects duplicate ids, so an id
// can never land in both authorship maps.
func ValidateAll(annotations []Annotation) error {
	seen := make(map[string]int, len(annotations))
	for i, a := range annotations {
		if err := a.Validate(); err != nil {
			return prefixField(err, fmt.Sprintf("annotations[%d]", i))
		}
		if j, dup := seen[a.ID]; dup {
			return errors.NewInvalidField(fmt.Sprintf("annotations[%d].id", i),
				fmt.Sprintf("duplicate annotation id %q (first at index %d)", a.ID, j))
		}
		seen[a.ID] = i
	}
	return nil
}

func prefixField(err error, prefix string) error {
	qErr, ok := err.(*errors.Error)
	if !ok {
		return err
	}
	field, _ := qErr.Details["field"].(string)
	msg := strings.TrimPrefix(qErr.Message, field+": ")
	return errors.NewInvalidField(prefix+"."+field, msg)
}
