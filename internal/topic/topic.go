// Package topic scores question candidates against a requested topic.
package topic

import (
	"iter"
	"strings"
	"unicode"

	"github.com/dgallion1/papergest/internal/exam"
)

// DefaultSynonyms extends topic terms with related vocabulary. Keys are
// lowercase topic terms or whole topic phrases.
var DefaultSynonyms = map[string][]string{
	"algebra":     {"matrix", "matrices", "vector", "equation", "system"},
	"arithmetic":  {"+", "×", "÷", "=", "add", "sum", "plus", "minus", "subtract", "multiply", "divide", "product", "quotient"},
	"calculus":    {"derivative", "differentiate", "integral", "integrate", "limit"},
	"geometry":    {"angle", "triangle", "circle", "polygon", "area"},
	"probability": {"random", "chance", "expected value", "distribution"},
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "or": true,
	"in": true, "on": true, "for": true, "to": true, "with": true, "&": true,
}

// Topic is a parsed topic string.
type Topic struct {
	Raw      string
	Phrase   string   // lowercased, whitespace collapsed
	Terms    []string // significant terms in order
	Synonyms []string // related vocabulary, deduplicated
}

// Parse splits raw into significant terms and resolves synonyms from table.
// A topic made only of stopwords keeps those words as its terms.
func Parse(raw string, table map[string][]string) Topic {
	words := strings.Fields(strings.ToLower(raw))
	t := Topic{Raw: raw, Phrase: strings.Join(words, " ")}

	seen := map[string]bool{}
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		t.Terms = append(t.Terms, w)
	}
	if len(t.Terms) == 0 {
		t.Terms = words
	}

	keys := append([]string{t.Phrase}, t.Terms...)
	for _, k := range keys {
		for _, syn := range table[k] {
			syn = strings.ToLower(syn)
			if !seen[syn] {
				seen[syn] = true
				t.Synonyms = append(t.Synonyms, syn)
			}
		}
	}
	return t
}

// Scorer rates how strongly text relates to a topic. Implementations must
// be deterministic, never decrease when more matching terms are present,
// and be defined for every input.
type Scorer interface {
	Score(text string, t Topic) float64
}

// KeywordScorer sums weights of the distinct topic terms and synonyms found
// in the text, plus a bonus when the whole multi-word phrase appears.
type KeywordScorer struct {
	TermWeight    float64
	SynonymWeight float64
	PhraseBonus   float64
}

// DefaultScorer weighs terms, synonyms and phrase equally.
func DefaultScorer() KeywordScorer {
	return KeywordScorer{TermWeight: 1, SynonymWeight: 1, PhraseBonus: 1}
}

func (s KeywordScorer) Score(text string, t Topic) float64 {
	lower := strings.ToLower(text)
	words := wordSet(lower)

	var score float64
	for _, term := range t.Terms {
		if contains(lower, words, term) {
			score += s.TermWeight
		}
	}
	for _, syn := range t.Synonyms {
		if contains(lower, words, syn) {
			score += s.SynonymWeight
		}
	}
	if len(t.Terms) > 1 && strings.Contains(strings.Join(strings.Fields(lower), " "), t.Phrase) {
		score += s.PhraseBonus
	}
	return score
}

// contains matches long terms as substrings so that inflections count
// ("algebra" in "algebraic"), short terms as whole words, and terms with
// symbols verbatim.
func contains(lower string, words map[string]bool, term string) bool {
	if term == "" {
		return false
	}
	if !isWord(term) || len([]rune(term)) >= 4 {
		return strings.Contains(lower, term)
	}
	return words[term]
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func wordSet(lower string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		set[w] = true
	}
	return set
}

// Filter retains candidates whose score reaches Threshold.
type Filter struct {
	Scorer    Scorer
	Threshold float64
	Synonyms  map[string][]string
}

// NewFilter returns a filter using the keyword scorer and built-in synonyms.
func NewFilter(threshold float64) *Filter {
	return &Filter{Scorer: DefaultScorer(), Threshold: threshold, Synonyms: DefaultSynonyms}
}

// Matches reports whether c relates to topic.
func (f *Filter) Matches(c exam.Candidate, topic string) bool {
	return f.matches(c, Parse(topic, f.Synonyms))
}

func (f *Filter) matches(c exam.Candidate, t Topic) bool {
	return f.Scorer.Score(c.Text, t) >= f.Threshold
}

// Filter lazily yields the matching candidates of seq in their original
// order, advanced to the matched status.
func (f *Filter) Filter(seq iter.Seq[exam.Candidate], topic string) iter.Seq[exam.Candidate] {
	t := Parse(topic, f.Synonyms)
	return func(yield func(exam.Candidate) bool) {
		for c := range seq {
			if !f.matches(c, t) {
				continue
			}
			if err := c.Advance(exam.StatusMatched); err != nil {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}
