package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/parser"
)

func sampleResult() *exam.Result {
	res := exam.NewResult("Maths", "arithmetic", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	res.Questions = append(res.Questions, "What is 2+2?", "Is 3 < 4 & 5 > 1?")
	res.AddFailure("bad.pdf", exam.Errorf(exam.KindUnreadable, "bad.pdf", "no text"))
	return res
}

func TestJSONWriter_WritesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := (JSONWriter{Path: path}).Write(sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"Is 3 < 4 & 5 > 1?"`) {
		t.Errorf("operators escaped:\n%s", data)
	}
	if !strings.Contains(string(data), "\n  \"subject\": \"Maths\"") {
		t.Errorf("not indented:\n%s", data)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"subject", "topic", "question_count", "extracted_at", "questions", "failures"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if raw["question_count"].(float64) != 2 {
		t.Errorf("question_count = %v", raw["question_count"])
	}

	back, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if back.QuestionCount() != 2 || back.Failures[0].Reason != exam.KindUnreadable {
		t.Errorf("round trip = %+v", back)
	}
}

func TestJSONWriter_EmptyResultHasFailures(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, exam.NewResult("s", "t", time.Now())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"failures": []`) || !strings.Contains(buf.String(), `"questions": []`) {
		t.Errorf("empty lists missing:\n%s", buf.String())
	}
}

func TestJSONWriter_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.json")
	for range 3 {
		if err := (JSONWriter{Path: path}).Write(sampleResult()); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir holds %d entries, want 1", len(entries))
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, sampleResult())
	want := "\n1. What is 2+2?\n\n2. Is 3 < 4 & 5 > 1?\n"
	if buf.String() != want {
		t.Errorf("Print = %q, want %q", buf.String(), want)
	}
}

func TestRenderPDF(t *testing.T) {
	data, err := RenderPDF(sampleResult())
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatal("output is not a pdf")
	}

	tree, err := (&parser.PDFParser{}).Parse(bytes.NewReader(data), "out.pdf")
	if errors.Is(err, parser.ErrNoText) {
		t.Skip("pdf text extraction unavailable for generated fonts")
	}
	if err != nil {
		t.Fatalf("parse rendered pdf: %v", err)
	}
	compact := strings.Join(strings.Fields(tree.Text()), "")
	if !strings.Contains(compact, "Whatis2+2?") {
		t.Errorf("rendered text = %q", tree.Text())
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write(*exam.Result) error { return f.err }

func TestMulti_StopsAtFirstError(t *testing.T) {
	boom := errors.New("disk full")
	path := filepath.Join(t.TempDir(), "q.json")
	err := Multi{failingWriter{boom}, JSONWriter{Path: path}}.Write(sampleResult())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("later writer ran after a failure")
	}
}
