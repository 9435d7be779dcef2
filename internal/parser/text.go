package parser

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/papergest/internal/doctree"
)

// ErrNotText is returned for payloads that are not UTF-8 text.
var ErrNotText = errors.New("not a utf-8 text document")

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// TextParser reads plain-text papers. Form feeds mark page breaks and blank
// lines separate paragraphs; every paragraph becomes a node carrying its page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return nil, ErrNotText
	}
	src := strings.ReplaceAll(string(data), "\r\n", "\n")

	tree := &doctree.DocTree{Title: baseTitle(filename, ".txt")}
	pages := strings.Split(src, "\f")
	for i, page := range pages {
		for _, para := range paragraphBreak.Split(page, -1) {
			para = strings.Trim(para, "\n\r")
			if strings.TrimSpace(para) == "" {
				continue
			}
			node := &doctree.DocNode{Text: para}
			if len(pages) > 1 {
				node.Page = i + 1
			}
			tree.Children = append(tree.Children, node)
		}
	}
	return tree, nil
}
