package parser

import (
	"strings"

	"github.com/dgallion1/papergest/internal/doctree"
)

// treeBuilder nests headings by level and attaches paragraph text to the
// innermost open heading.
type treeBuilder struct {
	root    *doctree.DocNode
	stack   []stackEntry
	pending strings.Builder
}

type stackEntry struct {
	node  *doctree.DocNode
	level int
}

func newTreeBuilder(title string) *treeBuilder {
	root := &doctree.DocNode{Title: title}
	return &treeBuilder{
		root:  root,
		stack: []stackEntry{{node: root, level: 0}},
	}
}

func (b *treeBuilder) flush() {
	t := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// heading opens a new section at level (1 = outermost).
func (b *treeBuilder) heading(level int, title string) {
	b.flush()
	node := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, stackEntry{node: node, level: level})
}

// paragraph appends a block of body text to the current section.
func (b *treeBuilder) paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.pending.Len() > 0 {
		b.pending.WriteString("\n\n")
	}
	b.pending.WriteString(text)
}

// finish moves the built sections into tree. Text that appeared before the
// first heading is kept as the leading child.
func (b *treeBuilder) finish(tree *doctree.DocTree) {
	b.flush()
	if b.root.Text != "" {
		tree.Children = append(tree.Children, &doctree.DocNode{Text: b.root.Text})
	}
	tree.Children = append(tree.Children, b.root.Children...)
}
