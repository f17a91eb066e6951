package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

// BatchInput contains parameters for the FetchAndAlignBatch operation.
type BatchInput struct {
	DatasetID string   `json:"dataset_id"`
	PostIDs   []string `json:"post_ids"`
}

// BatchOutput contains the result of the FetchAndAlignBatch operation.
// Posts follow the order of the requested ids; ids with no stored post are
// listed in Missing instead of failing the batch.
type BatchOutput struct {
	Posts    []*thread.NestedPost `json:"posts"`
	Missing  []string             `json:"missing"`
	Orphaned int                  `json:"orphaned"`
}

// FetchAndAlignBatch loads the rows for the requested posts from source and
// rebuilds each post's comment tree. A failure reported by source is
// returned as-is; there is no retry.
func FetchAndAlignBatch(ctx context.Context, source RowSource, cfg *config.Config, input BatchInput) (*BatchOutput, error) {
	datasetID := strings.TrimSpace(input.DatasetID)
	if datasetID == "" {
		return nil, errors.NewInvalidField("dataset_id", "is required")
	}

	postIDs, err := normalizePostIDs(input.PostIDs)
	if err != nil {
		return nil, err
	}

	maxPosts := config.DefaultConfig().BatchMaxPosts
	if cfg != nil && cfg.BatchMaxPosts > 0 {
		maxPosts = cfg.BatchMaxPosts
	}
	if len(postIDs) > maxPosts {
		return nil, errors.NewBatchTooLarge(maxPosts, len(postIDs))
	}

	out := &BatchOutput{Posts: []*thread.NestedPost{}, Missing: []string{}}
	if len(postIDs) == 0 {
		return out, nil
	}

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("fetch and align batch")
	}

	rows, err := source.GetRows(ctx, datasetID, postIDs)
	if err != nil {
		return nil, asError(err)
	}
	if rows == nil {
		return nil, errors.NewStorage(fmt.Errorf("row source returned no rows for dataset %s", datasetID))
	}

	posts := make(map[string]thread.Post, len(rows.Posts))
	for _, p := range rows.Posts {
		posts[p.ID] = p
	}
	comments := make(map[string][]thread.Comment)
	for _, c := range rows.Comments {
		comments[c.PostID] = append(comments[c.PostID], c)
	}

	for _, id := range postIDs {
		p, ok := posts[id]
		if !ok {
			out.Missing = append(out.Missing, id)
			continue
		}
		nested, stats := thread.BuildPost(p, comments[id])
		out.Posts = append(out.Posts, nested)
		out.Orphaned += stats.Orphaned
	}

	return out, nil
}

// normalizePostIDs trims and deduplicates ids, keeping first-seen order.
func normalizePostIDs(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.NewInvalidField(fmt.Sprintf("post_ids[%d]", i), "must not be empty")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
