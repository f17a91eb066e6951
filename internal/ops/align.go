package ops

import (
	"github.com/hpungsan/quotemap/internal/align"
	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/thread"
	"github.com/hpungsan/quotemap/internal/transcript"
)

// AlignInput contains parameters for the Align operation.
type AlignInput struct {
	Post        *thread.NestedPost `json:"post"`
	Annotations []align.Annotation `json:"annotations"`
}

// AlignOutput contains the result of the Align operation.
type AlignOutput = align.Result

// Align flattens the post and resolves every annotation against the
// resulting segments. The fuzzy threshold comes from cfg.
func Align(cfg *config.Config, input AlignInput) (*AlignOutput, error) {
	if err := validateNestedPost("post", input.Post); err != nil {
		return nil, err
	}
	return align.Align(transcript.Flatten(input.Post), input.Annotations, alignOptions(cfg))
}

func alignOptions(cfg *config.Config) align.Options {
	if cfg == nil {
		return align.Options{}
	}
	return align.Options{Threshold: config.IntPtr(cfg.Threshold())}
}
