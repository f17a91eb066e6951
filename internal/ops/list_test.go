package ops

import (
	"testing"

	"github.com/hpungsan/quotemap/internal/errors"
)

func TestListDatasets(t *testing.T) {
	database := openTestDB(t)
	first := importSample(t, database)
	second := importSample(t, database)

	out, err := ListDatasets(database, ListDatasetsInput{})
	if err != nil {
		t.Fatalf("ListDatasets failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(out.Items))
	}
	ids := map[string]bool{out.Items[0].ID: true, out.Items[1].ID: true}
	if !ids[first] || !ids[second] {
		t.Errorf("Items = %v, want both imported datasets", out.Items)
	}
	if out.Items[0].PostCount != 2 || out.Items[0].CommentCount != 4 {
		t.Errorf("counts = %d/%d, want 2/4", out.Items[0].PostCount, out.Items[0].CommentCount)
	}
	if out.Pagination.Limit != DefaultListLimit {
		t.Errorf("Limit = %d, want %d", out.Pagination.Limit, DefaultListLimit)
	}
	if out.Pagination.HasMore {
		t.Error("HasMore = true, want false")
	}
	if out.Sort != "created_at_desc" {
		t.Errorf("Sort = %q, want created_at_desc", out.Sort)
	}
}

func TestListDatasets_Pagination(t *testing.T) {
	database := openTestDB(t)
	for range 3 {
		importSample(t, database)
	}

	out, err := ListDatasets(database, ListDatasetsInput{Limit: 2})
	if err != nil {
		t.Fatalf("ListDatasets failed: %v", err)
	}
	if len(out.Items) != 2 || !out.Pagination.HasMore || out.Pagination.Total != 3 {
		t.Errorf("page 1 = %d items, has_more %v, total %d; want 2, true, 3",
			len(out.Items), out.Pagination.HasMore, out.Pagination.Total)
	}

	out, err = ListDatasets(database, ListDatasetsInput{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListDatasets failed: %v", err)
	}
	if len(out.Items) != 1 || out.Pagination.HasMore {
		t.Errorf("page 2 = %d items, has_more %v; want 1, false", len(out.Items), out.Pagination.HasMore)
	}
}

func TestListDatasets_Empty(t *testing.T) {
	database := openTestDB(t)

	out, err := ListDatasets(database, ListDatasetsInput{})
	if err != nil {
		t.Fatalf("ListDatasets failed: %v", err)
	}
	if out.Items == nil || len(out.Items) != 0 {
		t.Errorf("Items = %v, want empty non-nil slice", out.Items)
	}
}

func TestListPosts(t *testing.T) {
	database := openTestDB(t)
	id := importSample(t, database)

	out, err := ListPosts(database, ListPostsInput{DatasetID: id})
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(out.Items))
	}
	if out.Items[0].ID != "p1" || out.Items[1].ID != "p2" {
		t.Errorf("order = [%s %s], want import order [p1 p2]", out.Items[0].ID, out.Items[1].ID)
	}
	if out.Items[0].CommentCount != 3 {
		t.Errorf("p1 CommentCount = %d, want 3", out.Items[0].CommentCount)
	}
	if out.Sort != "import_order" {
		t.Errorf("Sort = %q, want import_order", out.Sort)
	}
}

func TestListPosts_Errors(t *testing.T) {
	database := openTestDB(t)

	_, err := ListPosts(database, ListPostsInput{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty dataset_id: expected ErrInvalidRequest, got: %v", err)
	}

	_, err = ListPosts(database, ListPostsInput{DatasetID: "missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown dataset: expected ErrNotFound, got: %v", err)
	}
}
