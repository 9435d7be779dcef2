package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/papergest/internal/doctree"
)

// questionColumns are header names treated as the question text of a row.
var questionColumns = []string{"question", "prompt", "text", "item"}

// CSVParser handles CSV files. When the header names a question column each
// row becomes one numbered node holding that cell; otherwise rows are
// rendered as "header: value" lines.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename, ".csv")}
	if len(records) == 0 {
		return tree, nil
	}

	headers := records[0]
	col := questionColumn(headers)

	n := 0
	for _, row := range records[1:] {
		var text string
		if col >= 0 {
			if col >= len(row) {
				continue
			}
			text = strings.TrimSpace(row[col])
		} else {
			text = rowText(headers, row)
		}
		if text == "" {
			continue
		}
		n++
		tree.Children = append(tree.Children, &doctree.DocNode{
			Text: fmt.Sprintf("%d. %s", n, text),
		})
	}

	return tree, nil
}

func questionColumn(headers []string) int {
	for _, name := range questionColumns {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func rowText(headers, row []string) string {
	var parts []string
	for j, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if j < len(headers) && headers[j] != "" {
			parts = append(parts, headers[j]+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, ", ")
}
