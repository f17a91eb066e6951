package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

// GetPostInput contains parameters for the GetPost operation.
type GetPostInput struct {
	DatasetID string `json:"dataset_id"`
	PostID    string `json:"post_id"`
}

// GetPostOutput contains the result of the GetPost operation.
type GetPostOutput struct {
	Post  *thread.NestedPost `json:"post"`
	Stats thread.TreeStats   `json:"stats"`
}

// GetPost loads one stored post with its comment tree.
func GetPost(ctx context.Context, source RowSource, input GetPostInput) (*GetPostOutput, error) {
	datasetID := strings.TrimSpace(input.DatasetID)
	if datasetID == "" {
		return nil, errors.NewInvalidField("dataset_id", "is required")
	}
	postID := strings.TrimSpace(input.PostID)
	if postID == "" {
		return nil, errors.NewInvalidField("post_id", "is required")
	}

	rows, err := source.GetRows(ctx, datasetID, []string{postID})
	if err != nil {
		return nil, asError(err)
	}
	if rows == nil {
		return nil, errors.NewNotFound("post", postID)
	}
	for _, p := range rows.Posts {
		if p.ID != postID {
			continue
		}
		var comments []thread.Comment
		for _, c := range rows.Comments {
			if c.PostID == postID {
				comments = append(comments, c)
			}
		}
		post, stats := thread.BuildPost(p, comments)
		return &GetPostOutput{Post: post, Stats: stats}, nil
	}
	return nil, errors.NewNotFound("post", postID)
}
