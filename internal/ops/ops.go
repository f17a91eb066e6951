// Package ops implements quotemap's request/response operations. Every
// operation takes its collaborators and inputs explicitly and returns a
// *errors.Error on failure.
package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// RowSource retrieves flat post and comment rows for a set of post ids in a
// dataset. *db.Store implements it.
type RowSource interface {
	GetRows(ctx context.Context, datasetID string, postIDs []string) (*db.Rows, error)
}

// clampPage applies list limit defaults and bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// asError converts any error to *errors.Error. Errors from a collaborator
// that are not already structured are reported as storage failures.
func asError(err error) *errors.Error {
	if qErr, ok := err.(*errors.Error); ok {
		return qErr
	}
	return errors.NewStorage(err)
}

// validateComments rejects comments that cannot take part in tree building.
func validateComments(field string, comments []thread.Comment) error {
	for i, c := range comments {
		if strings.TrimSpace(c.ID) == "" {
			return errors.NewInvalidField(fmt.Sprintf("%s[%d].id", field, i), "is required")
		}
	}
	return nil
}

// validateNestedPost rejects a nested post with no id or with comments
// lacking ids anywhere in the tree.
func validateNestedPost(field string, post *thread.NestedPost) error {
	if post == nil {
		return errors.NewInvalidField(field, "is required")
	}
	if strings.TrimSpace(post.ID) == "" {
		return errors.NewInvalidField(field+".id", "is required")
	}
	var err error
	thread.Walk(post.Comments, func(c *thread.NestedComment, depth int) bool {
		if err != nil {
			return false
		}
		if strings.TrimSpace(c.ID) == "" {
			err = errors.NewInvalidField(field+".comments", fmt.Sprintf("comment at depth %d has no id", depth))
			return false
		}
		return true
	})
	return err
}
