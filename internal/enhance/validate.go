package enhance

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

// maxRewriteChars bounds any single rewritten question.
const maxRewriteChars = 4000

// ValidateRewrite reports whether rewritten may replace original. Rewrites
// that are empty, that shrink or grow the question out of proportion, or that
// carry instruction-like text are rejected.
func ValidateRewrite(original, rewritten string) bool {
	text := strings.TrimSpace(rewritten)
	n := utf8.RuneCountInString(text)
	orig := utf8.RuneCountInString(strings.TrimSpace(original))
	if n < 3 || n > maxRewriteChars {
		return false
	}
	if n < orig/3 || n > 2*orig+100 {
		return false
	}
	if strings.EqualFold(text, "unrelated") {
		return false
	}
	if injectionPattern.MatchString(text) && !injectionPattern.MatchString(original) {
		return false
	}
	return true
}
