package result

import (
	"bytes"
	"fmt"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/go-pdf/fpdf"
)

// PDFWriter renders a result as a printable question sheet.
type PDFWriter struct {
	Path string
}

func (w PDFWriter) Write(res *exam.Result) error {
	data, err := RenderPDF(res)
	if err != nil {
		return err
	}
	return writeFileAtomic(w.Path, data)
}

// RenderPDF lays out the subject and topic as a header, the numbered
// questions, and any failures on a trailing section.
func RenderPDF(res *exam.Result) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(fmt.Sprintf("%s: %s", res.Subject, res.Topic), true)
	pdf.SetCreator("papergest", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 7, tr(fmt.Sprintf("%s: %s", res.Subject, res.Topic)), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, fmt.Sprintf("%d questions, extracted %s", res.QuestionCount(), res.ExtractedAt.UTC().Format("2006-01-02 15:04 MST")), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for i, q := range res.Questions {
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", i+1, q)), "", "L", false)
		pdf.Ln(2)
	}
	if len(res.Questions) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.MultiCell(0, 6, "No matching questions.", "", "L", false)
	}

	if len(res.Failures) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, "Skipped documents", "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		for _, f := range res.Failures {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s (%s)", f.DocumentRef, f.Reason)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
