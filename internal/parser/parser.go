package parser

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/papergest/internal/doctree"
)

// Parser turns the bytes of one paper into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// ErrUnsupported means no parser accepts the payload.
var ErrUnsupported = errors.New("unsupported document format")

type Options struct {
	// PDFFallbackPdftotext shells out to pdftotext when the built-in PDF
	// reader finds no text.
	PDFFallbackPdftotext bool
}

// format ties file extensions and a sniffed MIME prefix to a parser.
type format struct {
	exts  []string
	mime  string
	build func(Options) Parser
}

var formats = []format{
	{exts: []string{".pdf"}, mime: "application/pdf", build: func(o Options) Parser {
		return &PDFParser{FallbackPdftotext: o.PDFFallbackPdftotext}
	}},
	{exts: []string{".docx"}, mime: "application/zip", build: func(Options) Parser { return &DOCXParser{} }},
	{exts: []string{".html", ".htm"}, mime: "text/html", build: func(Options) Parser { return &HTMLParser{} }},
	{exts: []string{".md", ".markdown"}, build: func(Options) Parser { return &MarkdownParser{} }},
	{exts: []string{".csv"}, build: func(Options) Parser { return &CSVParser{} }},
	{exts: []string{".txt"}, build: func(Options) Parser { return &TextParser{} }},
}

func lookupExt(filename string) (format, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range formats {
		for _, e := range f.exts {
			if e == ext {
				return f, true
			}
		}
	}
	return format{}, false
}

// IsSupportedExtension reports whether filename has an extension some
// parser handles.
func IsSupportedExtension(filename string) bool {
	_, ok := lookupExt(filename)
	return ok
}

// ForFile picks a parser by extension with default options.
func ForFile(filename string) (Parser, error) {
	return Options{}.ForFile(filename)
}

func (o Options) ForFile(filename string) (Parser, error) {
	f, ok := lookupExt(filename)
	if !ok {
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupported, filepath.Ext(filename))
	}
	return f.build(o), nil
}

// Detect trusts a known extension and otherwise sniffs the payload.
// Unrecognised UTF-8 text is read as plain text.
func (o Options) Detect(filename string, data []byte) (Parser, error) {
	if f, ok := lookupExt(filename); ok {
		return f.build(o), nil
	}
	ct := http.DetectContentType(data)
	for _, f := range formats {
		if f.mime != "" && strings.HasPrefix(ct, f.mime) {
			return f.build(o), nil
		}
	}
	if strings.HasPrefix(ct, "text/plain") && utf8.Valid(data) {
		return &TextParser{}, nil
	}
	return nil, fmt.Errorf("%w: detected %s", ErrUnsupported, ct)
}

// baseTitle is the file's base name without the first matching extension.
func baseTitle(filename string, exts ...string) string {
	name := filepath.Base(filename)
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if trimmed, ok := strings.CutSuffix(lower, ext); ok {
			return name[:len(trimmed)]
		}
	}
	return name
}
