package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dgallion1/papergest/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNoText is returned when a PDF decodes but yields no extractable text,
// as with scanned papers.
var ErrNoText = errors.New("pdf contains no extractable text")

// ErrMalformed is returned when the PDF structure cannot be read.
var ErrMalformed = errors.New("malformed pdf")

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

// Parse returns one node per non-empty page. Nodes carry the page number but
// no title so that flattened text holds only page content.
//
// pdfcpu reads and validates the file structure first. A payload it rejects
// never reaches the page reader; it is handed to pdftotext when the fallback
// is enabled and reported as ErrMalformed otherwise.
func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	var pages []string
	pageCount, structErr := api.PageCount(bytes.NewReader(data), nil)
	switch {
	case structErr != nil && !p.FallbackPdftotext:
		return nil, fmt.Errorf("%w: %w", ErrMalformed, structErr)
	case structErr != nil:
		text, ferr := extractPdftotext(data)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, errors.Join(structErr, ferr))
		}
		pages = strings.Split(text, "\f")
	case pageCount == 0:
		return nil, fmt.Errorf("%w (0 pages)", ErrNoText)
	default:
		pages, err = extractPDFPages(data)
		if (err != nil || blank(pages)) && p.FallbackPdftotext {
			if text, ferr := extractPdftotext(data); ferr == nil {
				pages, err = strings.Split(text, "\f"), nil
			}
		}
		if err != nil {
			return nil, fmt.Errorf("extract pdf text: %w", err)
		}
	}
	if blank(pages) {
		return nil, fmt.Errorf("%w (%d pages)", ErrNoText, pageCount)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename, ".pdf")}
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Text: page,
			Page: i + 1,
		})
	}
	return tree, nil
}

// extractPDFPages returns the plain text of each page. The reader panics on
// some malformed inputs, so panics are converted to errors.
func extractPDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("pdf reader: %v", rec)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func extractPdftotext(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "papergest-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", tmpPath, "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func blank(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}
