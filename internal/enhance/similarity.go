package enhance

import (
	"slices"
	"strings"
	"unicode"

	"github.com/dgallion1/papergest/internal/exam"
)

// Similarity is 1 minus the normalized edit distance between a and b after
// lowercasing and dropping whitespace. Identical questions that differ only
// in spacing or case score 1.
func Similarity(a, b string) float64 {
	ra, rb := squash(a), squash(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// MarkDuplicates flags enhanced candidates that are near-identical to an
// earlier enhanced sibling and mention exactly the same numbers and
// single-letter symbols. Only the later candidate is flagged, so the
// earliest occurrence always survives. It returns the number flagged.
func MarkDuplicates(cands []exam.Candidate, threshold float64) int {
	if threshold <= 0 || threshold > 1 {
		return 0
	}
	flagged := 0
	for j := range cands {
		if cands[j].Status != exam.StatusEnhanced {
			continue
		}
		for i := 0; i < j; i++ {
			if cands[i].Status != exam.StatusEnhanced || cands[i].IsDuplicate() {
				continue
			}
			if !lengthsCompatible(cands[i].Text, cands[j].Text, threshold) || !sameSymbols(cands[i].Text, cands[j].Text) {
				continue
			}
			if Similarity(cands[i].Text, cands[j].Text) >= threshold {
				cands[j].DuplicateOf = cands[i].Position
				flagged++
				break
			}
		}
	}
	return flagged
}

// lengthsCompatible rules out pairs whose length gap alone keeps them below
// threshold.
func lengthsCompatible(a, b string, threshold float64) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return true
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return 1-float64(diff)/float64(longest) >= threshold-0.05
}

// sameSymbols compares the numbers and single-character tokens of a and b,
// which carry most of the meaning of short exam questions.
func sameSymbols(a, b string) bool {
	return slices.Equal(symbols(a), symbols(b))
}

func symbols(s string) []string {
	var out []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(tok)) == 1 || strings.ContainsFunc(tok, unicode.IsDigit) {
			out = append(out, tok)
		}
	}
	slices.Sort(out)
	return out
}

func squash(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
