package ops

import (
	"github.com/hpungsan/quotemap/internal/thread"
	"github.com/hpungsan/quotemap/internal/transcript"
)

// FlattenInput contains parameters for the Flatten operation.
type FlattenInput struct {
	Post *thread.NestedPost `json:"post"`
}

// FlattenOutput contains the result of the Flatten operation.
type FlattenOutput struct {
	Segments []transcript.Segment `json:"segments"`
}

// Flatten turns a nested post into its ordered transcript segments.
func Flatten(input FlattenInput) (*FlattenOutput, error) {
	if err := validateNestedPost("post", input.Post); err != nil {
		return nil, err
	}
	return &FlattenOutput{Segments: transcript.Flatten(input.Post)}, nil
}
