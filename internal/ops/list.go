package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
)

// ListDatasetsInput contains parameters for the ListDatasets operation.
type ListDatasetsInput struct {
	Limit  int `json:"limit,omitempty"`  // default: 20, max: 100
	Offset int `json:"offset,omitempty"` // default: 0
}

// ListDatasetsOutput contains the result of the ListDatasets operation.
type ListDatasetsOutput struct {
	Items      []db.Dataset `json:"items"`
	Pagination Pagination   `json:"pagination"`
	Sort       string       `json:"sort"`
}

// ListDatasets retrieves dataset summaries, newest first.
func ListDatasets(database *sql.DB, input ListDatasetsInput) (*ListDatasetsOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	items, total, err := db.ListDatasets(database, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []db.Dataset{}
	}

	return &ListDatasetsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// ListPostsInput contains parameters for the ListPosts operation.
type ListPostsInput struct {
	DatasetID string `json:"dataset_id"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ListPostsOutput contains the result of the ListPosts operation.
type ListPostsOutput struct {
	DatasetID  string           `json:"dataset_id"`
	Items      []db.PostSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// ListPosts retrieves post summaries of a dataset in import order.
func ListPosts(database *sql.DB, input ListPostsInput) (*ListPostsOutput, error) {
	datasetID := strings.TrimSpace(input.DatasetID)
	if datasetID == "" {
		return nil, errors.NewInvalidField("dataset_id", "is required")
	}
	limit, offset := clampPage(input.Limit, input.Offset)

	items, total, err := db.ListPosts(database, datasetID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []db.PostSummary{}
	}

	return &ListPostsOutput{
		DatasetID: datasetID,
		Items:     items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "import_order",
	}, nil
}
