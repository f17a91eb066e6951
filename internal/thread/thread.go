// Package thread reconstructs nested discussion trees from flat,
// parent-id-linked comment records.
package thread

import "strings"

// Post is a discussion root. Fields not used by tree reconstruction or
// alignment are carried through untouched in Extra.
type Post struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Selftext   string         `json:"selftext"`
	Author     string         `json:"author,omitempty"`
	Subreddit  string         `json:"subreddit,omitempty"`
	CreatedUTC int64          `json:"created_utc,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Comment is the flat form of a reply. ParentID is either the post id
// (top-level reply) or another comment id (nested reply).
type Comment struct {
	ID         string `json:"id"`
	PostID     string `json:"post_id,omitempty"`
	ParentID   string `json:"parent_id"`
	Body       string `json:"body"`
	Author     string `json:"author,omitempty"`
	CreatedUTC int64  `json:"created_utc,omitempty"`
}

// NestedComment is a Comment with its replies attached in discovery order.
type NestedComment struct {
	Comment
	Comments []*NestedComment `json:"comments"`
}

// NestedPost is a Post with its top-level replies attached.
type NestedPost struct {
	Post
	Comments []*NestedComment `json:"comments"`
}

// TreeStats reports how much of the flat input ended up reachable. Input
// counts distinct comment ids. Orphaned comments are never an error.
type TreeStats struct {
	Input     int `json:"input"`
	Reachable int `json:"reachable"`
	Orphaned  int `json:"orphaned"`
}

// StripKindPrefix removes a reddit-style kind prefix ("t1_", "t3_", ...)
// from a fullname. Plain ids are returned unchanged.
func StripKindPrefix(id string) string {
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok || rest == "" || len(prefix) != 2 || prefix[0] != 't' {
		return id
	}
	if prefix[1] < '0' || prefix[1] > '9' {
		return id
	}
	return rest
}
