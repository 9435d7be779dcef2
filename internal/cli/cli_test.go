package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dgallion1/papergest/internal/acquire"
	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/result"
)

// isolate clears provider credentials and points storage at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "PAPERGEST_CONFIG"} {
		t.Setenv(k, "")
	}
	t.Setenv("PAPERGEST_STORE", "memory")
	t.Setenv("PAPERGEST_DATA_DIR", dir)
	t.Setenv("PAPERGEST_RAW_DIR", filepath.Join(dir, "raw"))
	t.Setenv("ACQUIRE_RPS", "0")
	t.Setenv("PDF_FALLBACK_PDFTOTEXT", "false")
	return dir
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writePaper(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract_WritesAndPrints(t *testing.T) {
	dir := isolate(t)
	paper := writePaper(t, dir, "paper.txt", "1. What is 2+2? 2. Define a matrix.")
	save := filepath.Join(dir, "out", "q.json")

	stdout, _, err := run(t, "extract", "--file_path", paper, "--topic", "arithmetic", "--save_path", save)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if stdout != "\n1. What is 2+2?\n" {
		t.Errorf("stdout = %q", stdout)
	}

	res, err := result.ReadJSON(save)
	if err != nil {
		t.Fatal(err)
	}
	if res.Subject != "Unknown" || res.Topic != "arithmetic" {
		t.Errorf("subject/topic = %q/%q", res.Subject, res.Topic)
	}
	if !slices.Equal(res.Questions, []string{"What is 2+2?"}) {
		t.Errorf("questions = %q", res.Questions)
	}
}

func TestExtract_PDFOutput(t *testing.T) {
	dir := isolate(t)
	paper := writePaper(t, dir, "paper.md", "# Paper\n\n1. What is 2+2?\n")
	pdfPath := filepath.Join(dir, "q.pdf")

	_, _, err := run(t, "extract", "--file_path", paper, "--topic", "arithmetic",
		"--save_path", filepath.Join(dir, "q.json"), "--pdf_path", pdfPath)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("pdf not written: %v", err)
	}
}

func TestExtract_UseLLMWithoutProvider(t *testing.T) {
	dir := isolate(t)
	paper := writePaper(t, dir, "paper.txt", "1. What is 2+2?")
	save := filepath.Join(dir, "q.json")

	if _, _, err := run(t, "extract", "--file_path", paper, "--topic", "arithmetic", "--use_llm", "--save_path", save); err != nil {
		t.Fatalf("extract: %v", err)
	}
	res, err := result.ReadJSON(save)
	if err != nil {
		t.Fatal(err)
	}
	if res.QuestionCount() != 1 {
		t.Errorf("questions = %q", res.Questions)
	}
	if len(res.Failures) != 1 || res.Failures[0].Reason != exam.KindEnhancement {
		t.Errorf("failures = %+v", res.Failures)
	}
}

func TestExtract_Errors(t *testing.T) {
	dir := isolate(t)
	paper := writePaper(t, dir, "paper.txt", "1. What is 2+2?")
	save := filepath.Join(dir, "q.json")

	tests := []struct {
		name string
		args []string
		kind exam.Kind
	}{
		{"blank topic", []string{"--file_path", paper, "--topic", "   "}, exam.KindInvalidRequest},
		{"missing file", []string{"--file_path", filepath.Join(dir, "nope.pdf"), "--topic", "algebra"}, exam.KindInvalidRequest},
		{"missing flag", []string{"--topic", "algebra"}, exam.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, append([]string{"extract", "--save_path", save}, tt.args...)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := exam.KindOf(err); got != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", got, tt.kind, err)
			}
		})
	}
	if _, err := os.Stat(save); !os.IsNotExist(err) {
		t.Error("result written for a rejected request")
	}
}

func TestExtract_BadConfigFile(t *testing.T) {
	dir := isolate(t)
	paper := writePaper(t, dir, "paper.txt", "1. What is 2+2?")
	cfgPath := writePaper(t, dir, "c.yaml", "store: redis\n")

	_, _, err := run(t, "--config", cfgPath, "extract", "--file_path", paper, "--topic", "arithmetic")
	if err == nil || !strings.Contains(err.Error(), "StoreKind") {
		t.Errorf("err = %v", err)
	}
}

// paperSite serves a listing with one good and one missing paper. Listing
// requests fail when down is set.
func paperSite(t *testing.T, down bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if down {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<html><body>
<a href="/files/math_algebra_2023.pdf">Math algebra 2023</a>
<a href="/files/math_algebra_2022.pdf">Math algebra 2022</a>
</body></html>`)
	})
	mux.HandleFunc("/files/math_algebra_2023.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 truncated")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("ACQUIRE_SEARCH_URLS", srv.URL+"/search?s={subject}&t={topic}")
	return srv
}

func TestScrape_ReportsNewDocuments(t *testing.T) {
	dir := isolate(t)
	paperSite(t, false)

	stdout, _, err := run(t, "scrape", "--subject", "math", "--topic", "algebra")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if !strings.Contains(stdout, "Downloaded 1 new documents (0 already known, 1 failed)") {
		t.Errorf("stdout = %q", stdout)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "raw"))
	if len(entries) != 1 {
		t.Errorf("raw dir holds %d files", len(entries))
	}
}

func TestPipeline_PartialFailureExitsZero(t *testing.T) {
	dir := isolate(t)
	paperSite(t, false)
	save := filepath.Join(dir, "q.json")

	if _, _, err := run(t, "pipeline", "--subject", "math", "--topic", "algebra", "--save_path", save); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	res, err := result.ReadJSON(save)
	if err != nil {
		t.Fatal(err)
	}
	var reasons []exam.Kind
	for _, f := range res.Failures {
		reasons = append(reasons, f.Reason)
	}
	if want := []exam.Kind{exam.KindAcquisition, exam.KindUnreadable}; !slices.Equal(reasons, want) {
		t.Errorf("failure reasons = %v, want %v", reasons, want)
	}
	if res.QuestionCount() != 0 {
		t.Errorf("questions = %q", res.Questions)
	}
}

func TestPipeline_SourceUnavailableFails(t *testing.T) {
	dir := isolate(t)
	paperSite(t, true)
	save := filepath.Join(dir, "q.json")

	_, _, err := run(t, "pipeline", "--subject", "math", "--topic", "algebra", "--save_path", save)
	if !errors.Is(err, acquire.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if _, err := os.Stat(save); !os.IsNotExist(err) {
		t.Error("result written although acquisition was unavailable")
	}
}

func TestPipeline_InvalidRequestBeforeAcquisition(t *testing.T) {
	isolate(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()
	t.Setenv("ACQUIRE_SEARCH_URLS", srv.URL+"/?q={subject}")

	_, _, err := run(t, "pipeline", "--subject", "math", "--topic", "\x00")
	if !exam.IsKind(err, exam.KindInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("listing fetched %d times", n)
	}
}

func TestServe_RequiresAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("PAPERGEST_API_KEY", "")
	if _, _, err := run(t, "serve"); err == nil || !strings.Contains(err.Error(), "PAPERGEST_API_KEY") {
		t.Errorf("err = %v", err)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	var names []string
	for _, c := range NewRootCommand().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"extract", "pipeline", "scrape", "serve"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing subcommand %q in %v", want, names)
		}
	}
}
