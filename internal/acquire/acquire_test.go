package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/store"
)

const listingPage = `<html><body>
<a href="/files/math-algebra-2023.pdf">Math Algebra 2023</a>
<a href="/files/math-algebra-2022.pdf#page=2">2022 paper</a>
<a href="/files/physics-optics.pdf">Physics Optics</a>
<a href="/files/math-geometry.pdf">Math Geometry</a>
<a href="/notes/math-algebra.html">Math Algebra notes</a>
<a href="/files/broken-math-algebra.pdf">Math Algebra broken</a>
<a href="mailto:pdf@math-algebra.example">Math Algebra pdf contact</a>
</body></html>`

func testServer(t *testing.T, listingStatus *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if code := int(listingStatus.Load()); code != 0 {
			w.WriteHeader(code)
			return
		}
		fmt.Fprint(w, listingPage)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html>not found</html>")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprintf(w, "%%PDF-1.4 %s", r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient() *Client {
	return NewClient(WithRateLimit(0), WithTimeouts(time.Second, time.Second))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.NewMemoryBackend(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func TestParseListing_FiltersBySubjectAndTopic(t *testing.T) {
	links, err := ParseListing([]byte(listingPage), "https://papers.example.com/search?q=x", "Math", "Algebra", 5)
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	want := []string{
		"https://papers.example.com/files/math-algebra-2023.pdf",
		"https://papers.example.com/files/math-algebra-2022.pdf#page=2",
		"https://papers.example.com/files/broken-math-algebra.pdf",
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d: %+v", len(links), len(want), links)
	}
	for i, l := range links {
		if l.URL != want[i] {
			t.Errorf("link %d = %q, want %q", i, l.URL, want[i])
		}
		if len(l.Fingerprint) != 64 {
			t.Errorf("link %d fingerprint %q", i, l.Fingerprint)
		}
	}
	if links[0].Title != "Math Algebra 2023" {
		t.Errorf("title = %q", links[0].Title)
	}
}

func TestParseListing_Limit(t *testing.T) {
	var b strings.Builder
	for i := range 12 {
		fmt.Fprintf(&b, `<a href="/p/history-war-%d.pdf">History War %d</a>`, i, i)
	}
	links, err := ParseListing([]byte(b.String()), "http://x.test/", "history", "war", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 5 {
		t.Errorf("got %d links, want 5", len(links))
	}
}

func TestFingerprint_CanonicalURL(t *testing.T) {
	a, _ := url.Parse("HTTPS://Papers.Example.com:443/a.pdf#top")
	b, _ := url.Parse("https://papers.example.com/a.pdf")
	if Fingerprint(Canonical(a)) != Fingerprint(Canonical(b)) {
		t.Errorf("canonical forms differ: %q vs %q", Canonical(a), Canonical(b))
	}
}

func TestSearchURL(t *testing.T) {
	got := SearchURL("https://x.test/search?subject={subject}&topic={topic}", "Computer Science", "graphs & trees")
	want := "https://x.test/search?subject=Computer+Science&topic=graphs+%26+trees"
	if got != want {
		t.Errorf("SearchURL = %q, want %q", got, want)
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     bool
	}{
		{"pdf content type", "application/pdf", "tiny", false},
		{"pdf signature", "application/octet-stream", "%PDF-1.7", false},
		{"small html", "text/html", "<html>404</html>", true},
		{"large unknown", "text/plain", strings.Repeat("x", 1200), false},
		{"empty", "application/pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.contentType, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("err %v is not ErrInvalidPayload", err)
			}
		})
	}
}

func TestSafeName(t *testing.T) {
	got := SafeName("Math: Algebra / Paper #1 (2023)", "abcdef0123456789")
	if got != "math_algebra_paper_1_2023_abcdef01" {
		t.Errorf("SafeName = %q", got)
	}
	if got := SafeName("***", ""); got != "paper" {
		t.Errorf("SafeName(symbols) = %q", got)
	}
}

func TestAcquire_DownloadsNewAndSkipsKnown(t *testing.T) {
	var status atomic.Int32
	srv := testServer(t, &status)
	client := newTestClient()
	scraper := NewScraper(client, []string{srv.URL + "/search?q={subject}+{topic}"}, 5, nil)
	st := openStore(t)
	dir := t.TempDir()
	acq := New(scraper, client, st, dir, nil)

	ctx := context.Background()
	rep, err := acq.Acquire(ctx, "math", "algebra")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if rep.Listed != 3 || rep.New != 2 {
		t.Fatalf("report = %+v, want 3 listed and 2 new", rep)
	}
	if len(rep.Failures) != 1 || !exam.IsKind(rep.Failures[0], exam.KindAcquisition) {
		t.Fatalf("failures = %v, want one AcquisitionFailure", rep.Failures)
	}

	var docs int
	for e := range st.List("math", "algebra") {
		docs++
		data, err := os.ReadFile(e.Path)
		if err != nil {
			t.Fatalf("read %s: %v", e.Path, err)
		}
		if !strings.HasPrefix(string(data), "%PDF") {
			t.Errorf("%s does not hold the payload", e.Path)
		}
		if e.Origin == "" || e.Topic != "algebra" {
			t.Errorf("entry = %+v", e)
		}
	}
	if docs != 2 {
		t.Errorf("store lists %d docs, want 2", docs)
	}

	rep, err = acq.Acquire(ctx, "math", "algebra")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if rep.New != 0 || rep.Skipped != 2 {
		t.Errorf("second report = %+v, want 0 new and 2 skipped", rep)
	}
}

func TestAcquire_AllListingsFailIsUnavailable(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := testServer(t, &status)
	client := newTestClient()
	scraper := NewScraper(client, []string{
		srv.URL + "/search?q={subject}",
		srv.URL + "/search?topic={topic}",
	}, 5, nil)
	acq := New(scraper, client, openStore(t), t.TempDir(), nil)

	_, err := acq.Acquire(context.Background(), "math", "algebra")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("err %v does not carry the status", err)
	}
}

func TestAcquire_OneListingFailing(t *testing.T) {
	var status atomic.Int32
	srv := testServer(t, &status)
	client := newTestClient()
	scraper := NewScraper(client, []string{
		"http://127.0.0.1:1/unreachable",
		srv.URL + "/search?q={subject}+{topic}",
	}, 5, nil)
	acq := New(scraper, client, openStore(t), t.TempDir(), nil)

	rep, err := acq.Acquire(context.Background(), "math", "algebra")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if rep.New != 2 {
		t.Errorf("new = %d, want 2", rep.New)
	}
}

func TestClient_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("a", 2048))
	}))
	defer srv.Close()

	c := NewClient(WithRateLimit(0), WithMaxBytes(1024))
	if _, err := c.Download(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(WithRateLimit(0), WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	start := time.Now()
	if _, err := c.GetListing(context.Background(), srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout not enforced: %v", time.Since(start))
	}
}

func TestClient_SendsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c := NewClient(WithRateLimit(0), WithUserAgent("papergest-test"))
	if _, err := c.GetListing(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if got.Load() != "papergest-test" {
		t.Errorf("User-Agent = %v", got.Load())
	}
}
