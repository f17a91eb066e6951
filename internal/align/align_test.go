package align

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
	"github.com/hpungsan/quotemap/internal/transcript"
)

func scenarioSegments(t *testing.T) []transcript.Segment {
	t.Helper()
	post, _ := thread.BuildPost(thread.Post{ID: "p1", Title: "Hello World"}, []thread.Comment{
		{ID: "c1", Body: "first reply", ParentID: "p1"},
		{ID: "c2", Body: "nested reply", ParentID: "c1"},
		{ID: "c3", Body: "orphan", ParentID: "missing"},
	})
	return transcript.Flatten(post)
}

func marker(i int) *RangeMarker {
	return &RangeMarker{Index: i}
}

func TestAlign_Scenario(t *testing.T) {
	segments := scenarioSegments(t)

	result, err := Align(segments, []Annotation{
		{ID: "a1", Text: "first reply", AuthoredBy: AuthoredByHuman},
	}, Options{})
	require.NoError(t, err)

	require.Equal(t, map[string][]string{"a1": {"c1"}}, result.HumanMatches)
	require.Empty(t, result.MachineMatches)
	require.Equal(t, []string{"p1-title", "p1-selftext", "c2"}, result.Unmapped)
}

func TestAlign_ExactContainmentAlwaysMatches(t *testing.T) {
	segments := transcript.Flatten(&thread.NestedPost{
		Post: thread.Post{ID: "p", Title: "t"},
		Comments: []*thread.NestedComment{
			{Comment: thread.Comment{ID: "long", ParentID: "p",
				Body: "This is a very long comment that goes on and on, and somewhere in the middle it says: the quote. Then it keeps going for a while longer."}},
		},
	})

	// The fuzzy score of a short quote against a long segment is low, but
	// literal containment must still win.
	quote := "the quote"
	require.Less(t, Ratio(transcript.NormalizeText(segments[2].Text), transcript.NormalizeText(quote)), DefaultThreshold)

	result, err := Align(segments, []Annotation{{ID: "a", Text: quote, AuthoredBy: AuthoredByMachine}}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"long"}, result.MachineMatches["a"])
}

func TestAlign_ExactContainmentAgainstRawText(t *testing.T) {
	segments := transcript.Flatten(&thread.NestedPost{
		Post: thread.Post{ID: "p"},
		Comments: []*thread.NestedComment{
			{Comment: thread.Comment{ID: "c", ParentID: "p", Body: "line one\n\nline two, and a lot of other words besides"}},
		},
	})

	result, err := Align(segments, []Annotation{{ID: "a", Text: "one\n\nline", AuthoredBy: AuthoredByHuman}}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, result.HumanMatches["a"])
}

func TestAlign_FuzzyMatch(t *testing.T) {
	segments := transcript.Flatten(&thread.NestedPost{
		Post: thread.Post{ID: "p", Title: "Unrelated heading"},
		Comments: []*thread.NestedComment{
			{Comment: thread.Comment{ID: "c1", ParentID: "p", Body: "I really LOVE this product, honestly!"}},
			{Comment: thread.Comment{ID: "c2", ParentID: "p", Body: "I really love this producr honestly"}},
			{Comment: thread.Comment{ID: "c3", ParentID: "p", Body: "Shipping took three weeks."}},
		},
	})

	result, err := Align(segments, []Annotation{
		{ID: "a", Text: "i really love this product honestly", AuthoredBy: AuthoredByMachine},
	}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, result.MachineMatches["a"])
	require.Equal(t, []string{"p-title", "p-selftext", "c3"}, result.Unmapped)
}

func TestAlign_Threshold(t *testing.T) {
	segments := transcript.Flatten(&thread.NestedPost{
		Post: thread.Post{ID: "p"},
		Comments: []*thread.NestedComment{
			{Comment: thread.Comment{ID: "c", ParentID: "p", Body: "abcdefghij"}},
		},
	})
	// "abcdefghxx" vs "abcdefghij": lensum 20, distance 4 -> 80.
	ann := []Annotation{{ID: "a", Text: "abcdefghxx", AuthoredBy: AuthoredByHuman}}

	result, err := Align(segments, ann, Options{})
	require.NoError(t, err)
	require.Empty(t, result.HumanMatches["a"])

	result, err = Align(segments, ann, Options{Threshold: intPtr(80)})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, result.HumanMatches["a"])

	// An explicit 0 is honored rather than replaced by the default.
	result, err = Align(segments, ann, Options{Threshold: intPtr(0)})
	require.NoError(t, err)
	require.Equal(t, []string{"p-title", "p-selftext", "c"}, result.HumanMatches["a"])
	require.Empty(t, result.Unmapped)
}

func TestOptions_MinScore(t *testing.T) {
	require.Equal(t, DefaultThreshold, Options{}.MinScore())
	require.Equal(t, 0, Options{Threshold: intPtr(0)}.MinScore())
	require.Equal(t, 95, Options{Threshold: intPtr(95)}.MinScore())
}

func intPtr(n int) *int {
	return &n
}

func TestAlign_MarkerExact(t *testing.T) {
	segments := scenarioSegments(t)

	result, err := Align(segments, []Annotation{
		// Text scores low against c2, and literally matches c1: the marker wins.
		{ID: "m", Text: "first reply", AuthoredBy: AuthoredByHuman, Marker: marker(3)},
	}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, result.HumanMatches["m"])
	require.Equal(t, []string{"p1-title", "p1-selftext", "c1"}, result.Unmapped)
}

func TestAlign_MarkerOutOfBounds(t *testing.T) {
	segments := scenarioSegments(t)

	for _, idx := range []int{4, 100, -1} {
		t.Run(fmt.Sprint(idx), func(t *testing.T) {
			result, err := Align(segments, []Annotation{
				{ID: "m", Text: "first reply", AuthoredBy: AuthoredByMachine, Marker: marker(idx)},
			}, Options{})
			require.NoError(t, err)
			require.Equal(t, []string{}, result.MachineMatches["m"])
			require.Len(t, result.Unmapped, 4)
		})
	}
}

func TestAlign_Source(t *testing.T) {
	segments := scenarioSegments(t)

	result, err := Align(segments, []Annotation{
		{ID: "s1", Text: "zzz", AuthoredBy: AuthoredByHuman, Source: &SourceRef{Type: SourceComment, CommentID: "c2"}},
		{ID: "s2", AuthoredBy: AuthoredByMachine, Source: &SourceRef{Type: SourcePost, Title: true}},
		{ID: "s3", AuthoredBy: AuthoredByMachine, Source: &SourceRef{Type: SourcePost}},
		{ID: "s4", AuthoredBy: AuthoredByMachine, Source: &SourceRef{Type: SourceComment, CommentID: "gone"}},
	}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, result.HumanMatches["s1"])
	require.Equal(t, []string{"p1-title"}, result.MachineMatches["s2"])
	require.Equal(t, []string{"p1-selftext"}, result.MachineMatches["s3"])
	require.Equal(t, []string{}, result.MachineMatches["s4"])
	require.Equal(t, []string{"c1"}, result.Unmapped)
}

func TestAlign_Partition(t *testing.T) {
	var comments []thread.Comment
	bodies := []string{"the food was cold", "service was slow", "loved the dessert", "too expensive", "the food was cold!!"}
	for i, b := range bodies {
		comments = append(comments, thread.Comment{ID: fmt.Sprintf("c%d", i), ParentID: "p", Body: b})
	}
	post, _ := thread.BuildPost(thread.Post{ID: "p", Title: "Dinner review"}, comments)
	segments := transcript.Flatten(post)

	result, err := Align(segments, []Annotation{
		{ID: "cold", Text: "The food was cold", AuthoredBy: AuthoredByMachine},
		{ID: "slow", Text: "service was slow", AuthoredBy: AuthoredByHuman},
		{ID: "pin", AuthoredBy: AuthoredByHuman, Marker: marker(0)},
	}, Options{})
	require.NoError(t, err)

	matched := map[string]bool{}
	for _, m := range []map[string][]string{result.MachineMatches, result.HumanMatches} {
		for _, ids := range m {
			for _, id := range ids {
				matched[id] = true
			}
		}
	}
	unmapped := map[string]bool{}
	for _, id := range result.Unmapped {
		unmapped[id] = true
	}

	for _, s := range segments {
		require.NotEqual(t, matched[s.ID], unmapped[s.ID], "segment %s must be in exactly one set", s.ID)
	}
	require.Equal(t, []string{"c0", "c4"}, result.MachineMatches["cold"])
}

func TestAlign_AuthorshipSeparation(t *testing.T) {
	segments := scenarioSegments(t)

	result, err := Align(segments, []Annotation{
		{ID: "m1", Text: "Hello", AuthoredBy: AuthoredByMachine},
		{ID: "h1", Text: "Hello", AuthoredBy: AuthoredByHuman},
	}, Options{})
	require.NoError(t, err)
	require.Contains(t, result.MachineMatches, "m1")
	require.NotContains(t, result.MachineMatches, "h1")
	require.Contains(t, result.HumanMatches, "h1")
	require.NotContains(t, result.HumanMatches, "m1")

	_, err = Align(segments, []Annotation{
		{ID: "x", Text: "Hello", AuthoredBy: AuthoredByMachine},
		{ID: "x", Text: "Hello", AuthoredBy: AuthoredByHuman},
	}, Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAlign_DuplicateSegmentIDs(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, ID: "p-title", Kind: transcript.KindTitle, Text: "a"},
		{Index: 1, ID: "dup", Kind: transcript.KindComment, Text: "b"},
		{Index: 2, ID: "dup", Kind: transcript.KindComment, Text: "hello there"},
	}

	result, err := Align(segments, []Annotation{{ID: "a", Text: "hello there", AuthoredBy: AuthoredByHuman}}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"dup"}, result.HumanMatches["a"])
	require.Equal(t, []string{"p-title"}, result.Unmapped)

	result, err = Align(segments, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"p-title", "dup"}, result.Unmapped)
}

func TestAlign_ResultJSON(t *testing.T) {
	result, err := Align(scenarioSegments(t), []Annotation{
		{ID: "a1", Text: "first reply", AuthoredBy: AuthoredByHuman},
	}, Options{})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"machine_matches": {},
		"human_matches": {"a1": ["c1"]},
		"unmapped": ["p1-title", "p1-selftext", "c2"]
	}`, string(data))
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"abc", "abc", 100},
		{"abc", "abd", 67},
		{"hello world", "hello worlds", 96},
		{"first reply", "nested reply", 70},
		{"", "abc", 0},
		{"abc", "", 0},
		{"abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			if got := Ratio(tt.a, tt.b); got != tt.want {
				t.Errorf("Ratio(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	seg := transcript.Segment{ID: "c", Text: "Some Text here", Raw: "Some  Text here"}
	require.Equal(t, 100, Score("Text here", seg))
	require.Equal(t, 100, Score("some text here", seg))
	require.Less(t, Score("completely different", seg), DefaultThreshold)
}
