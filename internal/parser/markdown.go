package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/papergest/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Ordered list items
// keep their numbering so question markers survive parsing.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	tree := &doctree.DocTree{Title: baseTitle(filename, ".md", ".markdown")}
	b := newTreeBuilder(tree.Title)

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			b.heading(h.Level, string(h.Text(src)))
			continue
		}
		b.paragraph(blockText(n, src))
	}
	b.finish(tree)

	return tree, nil
}

// blockText renders a block node as plain text. Lists become one line per
// item, numbered when the list is ordered.
func blockText(n ast.Node, src []byte) string {
	switch node := n.(type) {
	case *ast.List:
		var buf strings.Builder
		i := 0
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			if node.IsOrdered() {
				fmt.Fprintf(&buf, "%d. ", node.Start+i)
			}
			buf.WriteString(childrenText(item, src, " "))
			i++
		}
		return buf.String()
	case *ast.Blockquote, *ast.ListItem:
		return childrenText(n, src, "\n\n")
	case *ast.ThematicBreak, *ast.HTMLBlock:
		return ""
	}
	return linesText(n, src)
}

func childrenText(n ast.Node, src []byte, sep string) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := blockText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, sep)
}

// linesText returns the raw source lines of a leaf block.
func linesText(n ast.Node, src []byte) string {
	if n.Type() != ast.TypeBlock {
		return ""
	}
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimSpace(buf.String())
}
