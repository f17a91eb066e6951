package ops

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/hpungsan/quotemap/internal/align"
	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

func sampleComments() []thread.Comment {
	return []thread.Comment{
		{ID: "c2", ParentID: "c1", Body: "nested reply"},
		{ID: "c1", ParentID: "p1", Body: "first reply"},
		{ID: "c3", ParentID: "p1", Body: "second reply"},
		{ID: "c4", ParentID: "gone", Body: "orphan"},
	}
}

func samplePost(t *testing.T) *thread.NestedPost {
	t.Helper()
	post, _ := thread.BuildPost(thread.Post{ID: "p1", Title: "Hello World", Selftext: "post body"}, sampleComments())
	return post
}

func TestBuildTree(t *testing.T) {
	out, err := BuildTree(BuildTreeInput{PostID: "p1", Comments: sampleComments()})
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}

	if len(out.TopLevelComments) != 2 {
		t.Fatalf("len(TopLevelComments) = %d, want 2", len(out.TopLevelComments))
	}
	if out.TopLevelComments[0].ID != "c1" || out.TopLevelComments[1].ID != "c3" {
		t.Errorf("top level = [%s %s], want [c1 c3]", out.TopLevelComments[0].ID, out.TopLevelComments[1].ID)
	}
	if len(out.TopLevelComments[0].Comments) != 1 || out.TopLevelComments[0].Comments[0].ID != "c2" {
		t.Errorf("c1 replies = %v, want [c2]", out.TopLevelComments[0].Comments)
	}
	want := thread.TreeStats{Input: 4, Reachable: 3, Orphaned: 1}
	if out.Stats != want {
		t.Errorf("Stats = %+v, want %+v", out.Stats, want)
	}
}

func TestBuildTree_Validation(t *testing.T) {
	_, err := BuildTree(BuildTreeInput{Comments: sampleComments()})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing post_id: expected ErrInvalidRequest, got: %v", err)
	}

	_, err = BuildTree(BuildTreeInput{PostID: "p1", Comments: []thread.Comment{{ParentID: "p1"}}})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("comment without id: expected ErrInvalidRequest, got: %v", err)
	}
	if got := err.(*errors.Error).Details["field"]; got != "comments[0].id" {
		t.Errorf("field = %v, want comments[0].id", got)
	}
}

func TestBuildTree_Empty(t *testing.T) {
	out, err := BuildTree(BuildTreeInput{PostID: "p1"})
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}
	if len(out.TopLevelComments) != 0 || out.Stats.Input != 0 {
		t.Errorf("got %d comments, stats %+v, want none", len(out.TopLevelComments), out.Stats)
	}
}

func TestFlatten(t *testing.T) {
	out, err := Flatten(FlattenInput{Post: samplePost(t)})
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	wantIDs := []string{"p1-title", "p1-selftext", "c1", "c2", "c3"}
	if len(out.Segments) != len(wantIDs) {
		t.Fatalf("len(Segments) = %d, want %d", len(out.Segments), len(wantIDs))
	}
	for i, id := range wantIDs {
		if out.Segments[i].ID != id || out.Segments[i].Index != i {
			t.Errorf("Segments[%d] = %s@%d, want %s@%d", i, out.Segments[i].ID, out.Segments[i].Index, id, i)
		}
	}
	if p := out.Segments[3].ParentID; p == nil || *p != "c1" {
		t.Errorf("c2 parent = %v, want c1", p)
	}
}

func TestFlatten_RequiresPost(t *testing.T) {
	_, err := Flatten(FlattenInput{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestAlign(t *testing.T) {
	out, err := Align(config.DefaultConfig(), AlignInput{
		Post: samplePost(t),
		Annotations: []align.Annotation{
			{ID: "h1", Text: "first reply", AuthoredBy: align.AuthoredByHuman},
			{ID: "m1", Marker: &align.RangeMarker{Index: 0}, AuthoredBy: align.AuthoredByMachine},
			{ID: "m2", Source: &align.SourceRef{Type: align.SourceComment, CommentID: "c3"}, AuthoredBy: align.AuthoredByMachine},
		},
	})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	if got := out.HumanMatches["h1"]; len(got) != 1 || got[0] != "c1" {
		t.Errorf("h1 matches = %v, want [c1]", got)
	}
	if got := out.MachineMatches["m1"]; len(got) != 1 || got[0] != "p1-title" {
		t.Errorf("m1 matches = %v, want [p1-title]", got)
	}
	if got := out.MachineMatches["m2"]; len(got) != 1 || got[0] != "c3" {
		t.Errorf("m2 matches = %v, want [c3]", got)
	}
	wantUnmapped := []string{"p1-selftext", "c2"}
	if len(out.Unmapped) != 2 || out.Unmapped[0] != wantUnmapped[0] || out.Unmapped[1] != wantUnmapped[1] {
		t.Errorf("Unmapped = %v, want %v", out.Unmapped, wantUnmapped)
	}
}

func TestAlign_ConfiguredThreshold(t *testing.T) {
	post := samplePost(t)
	anns := []align.Annotation{{ID: "h1", Text: "fist reply", AuthoredBy: align.AuthoredByHuman}}

	out, err := Align(config.DefaultConfig(), AlignInput{Post: post, Annotations: anns})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if got := out.HumanMatches["h1"]; len(got) != 1 || got[0] != "c1" {
		t.Errorf("default threshold matches = %v, want [c1]", got)
	}

	strict := config.DefaultConfig()
	strict.FuzzyThreshold = config.IntPtr(100)
	out, err = Align(strict, AlignInput{Post: post, Annotations: anns})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if got := out.HumanMatches["h1"]; len(got) != 0 {
		t.Errorf("threshold 100 matches = %v, want none", got)
	}
}

func TestAlign_InvalidAnnotation(t *testing.T) {
	_, err := Align(nil, AlignInput{
		Post:        samplePost(t),
		Annotations: []align.Annotation{{ID: "a1", Text: "x", AuthoredBy: "robot"}},
	})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestFetchAndAlignBatch(t *testing.T) {
	src := &fakeSource{rows: &db.Rows{
		Posts: []thread.Post{{ID: "p1", Title: "one"}, {ID: "p2", Title: "two"}},
		Comments: []thread.Comment{
			{ID: "c1", PostID: "p1", ParentID: "p1", Body: "a"},
			{ID: "c2", PostID: "p2", ParentID: "p2", Body: "b"},
			{ID: "c3", PostID: "p2", ParentID: "c2", Body: "c"},
			{ID: "c4", PostID: "p2", ParentID: "nowhere", Body: "d"},
		},
	}}

	out, err := FetchAndAlignBatch(context.Background(), src, config.DefaultConfig(), BatchInput{
		DatasetID: "ds1",
		PostIDs:   []string{"p2", " p1 ", "p2", "p9"},
	})
	if err != nil {
		t.Fatalf("FetchAndAlignBatch failed: %v", err)
	}

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
	if len(src.asked) != 3 {
		t.Errorf("source asked for %v, want deduplicated ids", src.asked)
	}
	if len(out.Posts) != 2 || out.Posts[0].ID != "p2" || out.Posts[1].ID != "p1" {
		t.Fatalf("Posts = %v, want request order [p2 p1]", out.Posts)
	}
	if thread.CountNodes(out.Posts[0].Comments) != 2 {
		t.Errorf("p2 reachable comments = %d, want 2", thread.CountNodes(out.Posts[0].Comments))
	}
	if len(out.Missing) != 1 || out.Missing[0] != "p9" {
		t.Errorf("Missing = %v, want [p9]", out.Missing)
	}
	if out.Orphaned != 1 {
		t.Errorf("Orphaned = %d, want 1", out.Orphaned)
	}
}

func TestFetchAndAlignBatch_Empty(t *testing.T) {
	src := &fakeSource{}

	out, err := FetchAndAlignBatch(context.Background(), src, nil, BatchInput{DatasetID: "ds1"})
	if err != nil {
		t.Fatalf("FetchAndAlignBatch failed: %v", err)
	}
	if src.calls != 0 {
		t.Errorf("source called %d times, want 0", src.calls)
	}
	if out.Posts == nil || len(out.Posts) != 0 || out.Missing == nil {
		t.Errorf("output = %+v, want empty non-nil slices", out)
	}
}

func TestFetchAndAlignBatch_Errors(t *testing.T) {
	small := config.DefaultConfig()
	small.BatchMaxPosts = 2

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		src   *fakeSource
		cfg   *config.Config
		input BatchInput
		code  errors.ErrorCode
	}{
		{"missing dataset", context.Background(), &fakeSource{}, nil,
			BatchInput{PostIDs: []string{"p1"}}, errors.ErrInvalidRequest},
		{"blank post id", context.Background(), &fakeSource{}, nil,
			BatchInput{DatasetID: "ds1", PostIDs: []string{"p1", " "}}, errors.ErrInvalidRequest},
		{"too large", context.Background(), &fakeSource{}, small,
			BatchInput{DatasetID: "ds1", PostIDs: []string{"p1", "p2", "p3"}}, errors.ErrBatchTooLarge},
		{"cancelled", cancelled, &fakeSource{}, nil,
			BatchInput{DatasetID: "ds1", PostIDs: []string{"p1"}}, errors.ErrCancelled},
		{"plain source error", context.Background(), &fakeSource{err: stderrors.New("disk gone")}, nil,
			BatchInput{DatasetID: "ds1", PostIDs: []string{"p1"}}, errors.ErrStorage},
		{"structured source error", context.Background(), &fakeSource{err: errors.NewNotFound("dataset", "ds1")}, nil,
			BatchInput{DatasetID: "ds1", PostIDs: []string{"p1"}}, errors.ErrNotFound},
		{"nil rows", context.Background(), &fakeSource{}, nil,
			BatchInput{DatasetID: "ds1", PostIDs: []string{"p1"}}, errors.ErrStorage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FetchAndAlignBatch(tc.ctx, tc.src, tc.cfg, tc.input)
			if !errors.Is(err, tc.code) {
				t.Errorf("expected %s, got: %v", tc.code, err)
			}
		})
	}
}

func TestFetchAndAlignBatch_DuplicatesCountOnce(t *testing.T) {
	small := config.DefaultConfig()
	small.BatchMaxPosts = 1
	src := &fakeSource{rows: &db.Rows{Posts: []thread.Post{{ID: "p1"}}}}

	out, err := FetchAndAlignBatch(context.Background(), src, small, BatchInput{
		DatasetID: "ds1",
		PostIDs:   []string{"p1", "p1"},
	})
	if err != nil {
		t.Fatalf("FetchAndAlignBatch failed: %v", err)
	}
	if len(out.Posts) != 1 {
		t.Errorf("len(Posts) = %d, want 1", len(out.Posts))
	}
}

func TestGetPost(t *testing.T) {
	database := openTestDB(t)
	id := importSample(t, database)
	store := db.NewStore(database)

	out, err := GetPost(context.Background(), store, GetPostInput{DatasetID: id, PostID: "p1"})
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if out.Post.Title != "Hello World" {
		t.Errorf("Title = %q, want Hello World", out.Post.Title)
	}
	want := thread.TreeStats{Input: 3, Reachable: 2, Orphaned: 1}
	if out.Stats != want {
		t.Errorf("Stats = %+v, want %+v", out.Stats, want)
	}

	_, err = GetPost(context.Background(), store, GetPostInput{DatasetID: id, PostID: "nope"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown post: expected ErrNotFound, got: %v", err)
	}

	_, err = GetPost(context.Background(), store, GetPostInput{DatasetID: id})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing post_id: expected ErrInvalidRequest, got: %v", err)
	}
}
