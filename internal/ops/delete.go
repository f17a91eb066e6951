package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
)

// DeleteDatasetInput contains parameters for the DeleteDataset operation.
type DeleteDatasetInput struct {
	DatasetID string `json:"dataset_id"`
}

// DeleteDatasetOutput contains the result of the DeleteDataset operation.
type DeleteDatasetOutput struct {
	Deleted   bool   `json:"deleted"`
	DatasetID string `json:"dataset_id"`
	Posts     int    `json:"posts"`
	Comments  int    `json:"comments"`
}

// DeleteDataset permanently removes a dataset with its posts and comments.
func DeleteDataset(database *sql.DB, input DeleteDatasetInput) (*DeleteDatasetOutput, error) {
	id := strings.TrimSpace(input.DatasetID)
	if id == "" {
		return nil, errors.NewInvalidField("dataset_id", "is required")
	}

	posts, comments, err := db.DeleteDataset(database, id)
	if err != nil {
		return nil, err
	}

	return &DeleteDatasetOutput{
		Deleted:   true,
		DatasetID: id,
		Posts:     posts,
		Comments:  comments,
	}, nil
}
