package topic

import (
	"slices"
	"testing"

	"github.com/dgallion1/papergest/internal/exam"
)

func cand(pos int, text string) exam.Candidate {
	return exam.NewCandidate("doc", pos, text)
}

func TestParse(t *testing.T) {
	tp := Parse("  Linear   ALGEBRA and Geometry ", DefaultSynonyms)
	if tp.Phrase != "linear algebra and geometry" {
		t.Errorf("unexpected phrase %q", tp.Phrase)
	}
	if !slices.Equal(tp.Terms, []string{"linear", "algebra", "geometry"}) {
		t.Errorf("unexpected terms %q", tp.Terms)
	}
	if !slices.Contains(tp.Synonyms, "matrix") || !slices.Contains(tp.Synonyms, "triangle") {
		t.Errorf("expected algebra and geometry synonyms, got %q", tp.Synonyms)
	}

	only := Parse("the", nil)
	if !slices.Equal(only.Terms, []string{"the"}) {
		t.Errorf("stopword-only topic should keep its words, got %q", only.Terms)
	}
}

func TestMatches(t *testing.T) {
	f := NewFilter(1.0)
	tests := []struct {
		text  string
		topic string
		want  bool
	}{
		{"What is 2+2?", "arithmetic", true},
		{"Define a matrix.", "arithmetic", false},
		{"Define a matrix.", "Linear Algebra", true},
		{"Solve the algebraic equation x = 3.", "algebra", true},
		{"Draw a map of Europe.", "algebra", false},
		{"", "algebra", false},
		{"Anything at all", "", false},
		{"Discuss the role of DNA.", "dna", true},
		{"Discuss the role of mRNA.", "rna", false},
	}
	for _, tt := range tests {
		if got := f.Matches(cand(0, tt.text), tt.topic); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.text, tt.topic, got, tt.want)
		}
	}
}

func TestScore_Monotonic(t *testing.T) {
	s := DefaultScorer()
	tp := Parse("linear algebra", DefaultSynonyms)

	texts := []string{
		"Describe the weather.",
		"Describe a matrix.",
		"Describe a matrix and a vector.",
		"In linear algebra, describe a matrix and a vector.",
	}
	prev := -1.0
	for _, text := range texts {
		score := s.Score(text, tp)
		if score < prev {
			t.Fatalf("score decreased from %v to %v at %q", prev, score, text)
		}
		if again := s.Score(text, tp); again != score {
			t.Fatalf("score not deterministic for %q: %v then %v", text, score, again)
		}
		prev = score
	}
	if prev != 5 {
		t.Errorf("expected full score 5 (2 terms, 2 synonyms, phrase), got %v", prev)
	}
}

func TestFilter_PreservesOrderAndAdvances(t *testing.T) {
	f := NewFilter(1.0)
	in := []exam.Candidate{
		cand(0, "What is 2+2?"),
		cand(1, "Define a matrix."),
		cand(2, "Find the sum of 3 and 4."),
	}

	got := slices.Collect(f.Filter(slices.Values(in), "arithmetic"))
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].Position != 0 || got[1].Position != 2 {
		t.Errorf("order not preserved: %+v", got)
	}
	for _, c := range got {
		if c.Status != exam.StatusMatched {
			t.Errorf("expected matched status, got %s", c.Status)
		}
	}
	if in[0].Status != exam.StatusUnmatched {
		t.Error("filter must not mutate its input")
	}
}

func TestFilter_NoMatchesIsEmpty(t *testing.T) {
	f := NewFilter(1.0)
	in := []exam.Candidate{cand(0, "Define a matrix.")}
	if got := slices.Collect(f.Filter(slices.Values(in), "organic chemistry")); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

type constScorer float64

func (c constScorer) Score(string, Topic) float64 { return float64(c) }

func TestFilter_CustomScorer(t *testing.T) {
	f := &Filter{Scorer: constScorer(0.5), Threshold: 0.5}
	if !f.Matches(cand(0, "anything"), "whatever") {
		t.Error("expected score at threshold to match")
	}
	f.Threshold = 0.6
	if f.Matches(cand(0, "anything"), "whatever") {
		t.Error("expected score below threshold to be rejected")
	}
}
