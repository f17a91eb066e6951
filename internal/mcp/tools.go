package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Shared JSON schemas for nested arguments.
var (
	commentSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": "string"},
			"post_id":     map[string]any{"type": "string"},
			"parent_id":   map[string]any{"type": "string", "description": "Post id for top-level replies, otherwise the parent comment id"},
			"body":        map[string]any{"type": "string"},
			"author":      map[string]any{"type": "string"},
			"created_utc": map[string]any{"type": "integer"},
		},
		"required": []string{"id", "parent_id"},
	}

	nestedPostProps = map[string]any{
		"id":       map[string]any{"type": "string"},
		"title":    map[string]any{"type": "string"},
		"selftext": map[string]any{"type": "string"},
		"comments": map[string]any{
			"type":        "array",
			"description": "Top-level replies; each reply may carry its own comments array",
			"items":       map[string]any{"type": "object"},
		},
	}

	annotationSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": "string"},
			"text":        map[string]any{"type": "string", "description": "Quoted excerpt, matched exactly or fuzzily"},
			"code":        map[string]any{"type": "string"},
			"authored_by": map[string]any{"type": "string", "enum": []string{"machine", "human"}},
			"marker": map[string]any{
				"type":        "object",
				"description": "Pins the annotation to the segment at index",
				"properties": map[string]any{
					"index": map[string]any{"type": "integer"},
					"range": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				},
			},
			"source": map[string]any{
				"type":        "object",
				"description": "Pins the annotation to a comment by id, or to the post title or selftext",
				"properties": map[string]any{
					"type":       map[string]any{"type": "string", "enum": []string{"comment", "post"}},
					"comment_id": map[string]any{"type": "string"},
					"title":      map[string]any{"type": "boolean"},
				},
			},
		},
		"required": []string{"id", "authored_by"},
	}
)

var buildTreeToolDef = mcp.NewTool("thread_build_tree",
	mcp.WithDescription("Rebuild a nested comment tree from flat, parent-linked comments. Orphans are dropped and counted in stats."),
	mcp.WithString("post_id", mcp.Required(), mcp.Description("Id of the post the comments reply to")),
	mcp.WithArray("comments", mcp.Required(), mcp.Description("Flat comment records"), mcp.Items(commentSchema)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var flattenToolDef = mcp.NewTool("transcript_flatten",
	mcp.WithDescription("Flatten a nested post into ordered transcript segments: title, selftext, then comments in pre-order."),
	mcp.WithObject("post", mcp.Required(), mcp.Description("Nested post"), mcp.Properties(nestedPostProps)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var alignToolDef = mcp.NewTool("codes_align",
	mcp.WithDescription("Map coded annotations onto a nested post's segments and list segments no annotation reached."),
	mcp.WithObject("post", mcp.Required(), mcp.Description("Nested post"), mcp.Properties(nestedPostProps)),
	mcp.WithArray("annotations", mcp.Required(), mcp.Items(annotationSchema)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var reportToolDef = mcp.NewTool("codes_report",
	mcp.WithDescription("Write an HTML audit report of an alignment. Give either post, or dataset_id and post_id."),
	mcp.WithObject("post", mcp.Description("Nested post"), mcp.Properties(nestedPostProps)),
	mcp.WithString("dataset_id", mcp.Description("Dataset holding the post")),
	mcp.WithString("post_id", mcp.Description("Stored post id")),
	mcp.WithArray("annotations", mcp.Items(annotationSchema)),
	mcp.WithString("path", mcp.Description("Output .html path (default: ~/.quotemap/reports/<post>-<timestamp>.html)")),
)

var fetchBatchToolDef = mcp.NewTool("dataset_fetch_batch",
	mcp.WithDescription("Load stored posts by id and return each with its rebuilt comment tree."),
	mcp.WithString("dataset_id", mcp.Required()),
	mcp.WithArray("post_ids", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithReadOnlyHintAnnotation(true),
)

var importToolDef = mcp.NewTool("dataset_import",
	mcp.WithDescription("Import a reddit-style JSON or JSONL dump into a new dataset, or append it to an existing one."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to a .json or .jsonl file")),
	mcp.WithString("dataset_id", mcp.Description("Append to this dataset instead of creating one")),
	mcp.WithString("name", mcp.Description("Name for a new dataset")),
)

var listToolDef = mcp.NewTool("dataset_list",
	mcp.WithDescription("List datasets, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var postsToolDef = mcp.NewTool("dataset_posts",
	mcp.WithDescription("List the posts of a dataset in import order."),
	mcp.WithString("dataset_id", mcp.Required()),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getPostToolDef = mcp.NewTool("dataset_get_post",
	mcp.WithDescription("Load one stored post with its comment tree."),
	mcp.WithString("dataset_id", mcp.Required()),
	mcp.WithString("post_id", mcp.Required()),
	mcp.WithReadOnlyHintAnnotation(true),
)

var deleteToolDef = mcp.NewTool("dataset_delete",
	mcp.WithDescription("Permanently delete a dataset with all of its posts and comments."),
	mcp.WithString("dataset_id", mcp.Required()),
	mcp.WithDestructiveHintAnnotation(true),
)
