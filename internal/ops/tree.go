package ops

import (
	"strings"

	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

// BuildTreeInput contains parameters for the BuildTree operation.
type BuildTreeInput struct {
	PostID   string           `json:"post_id"`
	Comments []thread.Comment `json:"comments"`
}

// BuildTreeOutput contains the result of the BuildTree operation.
type BuildTreeOutput struct {
	TopLevelComments []*thread.NestedComment `json:"top_level_comments"`
	Stats            thread.TreeStats        `json:"stats"`
}

// BuildTree nests flat comments under a post. Orphans are dropped and only
// show up as Stats.Orphaned.
func BuildTree(input BuildTreeInput) (*BuildTreeOutput, error) {
	if strings.TrimSpace(input.PostID) == "" {
		return nil, errors.NewInvalidField("post_id", "is required")
	}
	if err := validateComments("comments", input.Comments); err != nil {
		return nil, err
	}

	post, stats := thread.BuildPost(thread.Post{ID: input.PostID}, input.Comments)
	return &BuildTreeOutput{
		TopLevelComments: post.Comments,
		Stats:            stats,
	}, nil
}
