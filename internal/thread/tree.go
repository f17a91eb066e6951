package thread

// BuildCommentTree maps every comment id to a nested node and attaches each
// node to the node named by its parent id.
//
// Construction is two linear passes over the flat slice: nodes first, then
// attachment. A node is attached at most once, to its literal parent, so a
// cyclic parent chain in the data cannot cause unbounded work. When an id
// occurs more than once, the last occurrence wins and earlier ones are
// ignored in both passes. A comment naming itself as parent is not attached.
func BuildCommentTree(comments []Comment) map[string]*NestedComment {
	nodes, last := indexComments(comments)
	attach(comments, nodes, last, "")
	return nodes
}

// TopLevelComments builds the tree and returns the replies whose parent id
// is postID, in input order. Comments whose parent resolves to neither the
// post nor another comment are orphans and appear nowhere.
func TopLevelComments(comments []Comment, postID string) []*NestedComment {
	nodes, last := indexComments(comments)
	attach(comments, nodes, last, postID)
	return topLevel(comments, nodes, last, postID)
}

// BuildPost attaches the comments belonging to post and reports how many of
// them are reachable from the post.
func BuildPost(post Post, comments []Comment) (*NestedPost, TreeStats) {
	nodes, last := indexComments(comments)
	attach(comments, nodes, last, post.ID)
	top := topLevel(comments, nodes, last, post.ID)

	reachable := CountNodes(top)
	return &NestedPost{Post: post, Comments: top}, TreeStats{
		Input:     len(nodes),
		Reachable: reachable,
		Orphaned:  len(nodes) - reachable,
	}
}

// CountNodes returns the number of comments in a forest.
func CountNodes(roots []*NestedComment) int {
	count := 0
	Walk(roots, func(*NestedComment, int) bool {
		count++
		return true
	})
	return count
}

// Walk visits a comment forest in pre-order without recursion. depth is 0
// for roots. Returning false from fn skips the node's replies.
func Walk(roots []*NestedComment, fn func(c *NestedComment, depth int) bool) {
	type frame struct {
		node  *NestedComment
		depth int
	}

	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{roots[i], 0})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.node == nil {
			continue
		}
		if !fn(top.node, top.depth) {
			continue
		}
		children := top.node.Comments
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{children[i], top.depth + 1})
		}
	}
}

// indexComments returns the id->node map and, per id, the index of the
// occurrence that won.
func indexComments(comments []Comment) (map[string]*NestedComment, map[string]int) {
	nodes := make(map[string]*NestedComment, len(comments))
	last := make(map[string]int, len(comments))
	for i, c := range comments {
		nodes[c.ID] = &NestedComment{Comment: c, Comments: []*NestedComment{}}
		last[c.ID] = i
	}
	return nodes, last
}

// attach appends every winning node to its parent's children. A parent id
// equal to postID always denotes the post, even if a comment shares the id.
func attach(comments []Comment, nodes map[string]*NestedComment, last map[string]int, postID string) {
	for i, c := range comments {
		if last[c.ID] != i || c.ParentID == c.ID {
			continue
		}
		if postID != "" && c.ParentID == postID {
			continue
		}
		parent, ok := nodes[c.ParentID]
		if !ok {
			continue
		}
		parent.Comments = append(parent.Comments, nodes[c.ID])
	}
}

func topLevel(comments []Comment, nodes map[string]*NestedComment, last map[string]int, postID string) []*NestedComment {
	top := make([]*NestedComment, 0)
	for i, c := range comments {
		if last[c.ID] != i || c.ParentID != postID {
			continue
		}
		top = append(top, nodes[c.ID])
	}
	return top
}
