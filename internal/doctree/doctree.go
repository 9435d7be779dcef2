// Package doctree is the parser-independent shape of a decoded document.
package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections or pages
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// Walk visits every node depth-first in document order.
func (t *DocTree) Walk(fn func(n *DocNode)) {
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			fn(n)
			walk(n.Children)
		}
	}
	walk(t.Children)
}

// Text flattens the tree into plain text. Headings and node texts are kept
// as separate blocks so that blank-line boundaries survive flattening.
func (t *DocTree) Text() string {
	var sb strings.Builder
	t.Walk(func(n *DocNode) {
		for _, part := range []string{n.Title, n.Text} {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(part)
		}
	})
	return sb.String()
}

// Pages returns the number of distinct source pages referenced by the tree.
func (t *DocTree) Pages() int {
	seen := map[int]bool{}
	t.Walk(func(n *DocNode) {
		if n.Page > 0 {
			seen[n.Page] = true
		}
	})
	return len(seen)
}
