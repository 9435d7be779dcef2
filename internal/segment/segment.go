// Package segment splits a document's text into question candidates.
package segment

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/parser"
	"golang.org/x/text/unicode/norm"
)

// DefaultDirectives open sentences that are questions without a question mark.
var DefaultDirectives = []string{
	"calculate", "compare", "compute", "define", "derive", "describe",
	"determine", "discuss", "evaluate", "explain", "find", "justify",
	"list", "prove", "show", "simplify", "sketch", "solve", "state",
	"verify", "write",
}

// Options tune boundary detection.
type Options struct {
	// MinQuestionChars drops candidates shorter than this many characters.
	MinQuestionChars int
	// Directives are lowercase verbs that mark a sentence as a question.
	Directives []string
	Parser     parser.Options
}

// DefaultOptions returns the built-in thresholds.
func DefaultOptions() Options {
	return Options{
		MinQuestionChars: 6,
		Directives:       DefaultDirectives,
		Parser:           parser.Options{PDFFallbackPdftotext: true},
	}
}

// Segmenter turns documents into candidate sequences.
type Segmenter struct {
	opts       Options
	directives map[string]bool
	logger     *slog.Logger
}

// New creates a Segmenter.
func New(opts Options, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	d := make(map[string]bool, len(opts.Directives))
	for _, v := range opts.Directives {
		d[strings.ToLower(v)] = true
	}
	return &Segmenter{opts: opts, directives: d, logger: logger}
}

// Segment decodes doc and returns its candidates in source order. A payload
// that cannot be decoded to text fails with exam.KindUnreadable; a readable
// document without questions yields an empty sequence.
func (s *Segmenter) Segment(ctx context.Context, doc exam.SourceDocument) (iter.Seq[exam.Candidate], error) {
	data, err := doc.Bytes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, exam.Wrap(exam.KindAcquisition, doc.Ref(), err)
	}

	text, err := s.Text(doc.Name, data)
	if err != nil {
		return nil, exam.Wrap(exam.KindUnreadable, doc.Ref(), err)
	}
	s.logger.Debug("document decoded", "doc", doc.Ref(), "bytes", len(data), "chars", len(text))

	return s.Split(doc.Fingerprint, text), nil
}

// Text decodes a payload to normalized plain text.
func (s *Segmenter) Text(name string, data []byte) (string, error) {
	p, err := s.opts.Parser.Detect(name, data)
	if err != nil {
		return "", err
	}
	tree, err := p.Parse(bytes.NewReader(data), name)
	if err != nil {
		return "", err
	}
	return Normalize(tree.Text()), nil
}

// Normalize applies NFKC and unifies line breaks. Form feeds become
// paragraph breaks.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n\n")
	return text
}

// Split scans normalized text and yields one candidate per detected question.
func (s *Segmenter) Split(docID string, text string) iter.Seq[exam.Candidate] {
	blocks := markerBlocks(text)
	if blocks == nil {
		blocks = s.sentenceBlocks(text)
	}
	return func(yield func(exam.Candidate) bool) {
		seen := make(map[string]bool, len(blocks))
		pos := 0
		for _, b := range blocks {
			b = collapse(b)
			if utf8.RuneCountInString(b) < s.opts.MinQuestionChars || seen[b] {
				continue
			}
			seen[b] = true
			if !yield(exam.NewCandidate(docID, pos, b)) {
				return
			}
			pos++
		}
	}
}

var (
	// lineMarker matches numbering at the start of a line: 1. 1) (1) Q1
	// "Question 1:" (a) A).
	lineMarker = regexp.MustCompile(`(?im)^[ \t]*(?:(?:question[ \t]*|q)(\d{1,3})[ \t]*[:.)]?|\(?(\d{1,3})[.)]|\(([a-z])\)|([a-z])\))(?:[ \t]+|$)`)

	// inlineMarker matches numbering that follows terminal punctuation
	// within a line.
	inlineMarker = regexp.MustCompile(`(?i)[?.!)][ \t]+((?:question[ \t]*|q)(\d{1,3})[ \t]*[:.)]?|(\d{1,3})[.)])[ \t]+`)
)

type marker struct {
	start, end int
	num        int // -1 for letter markers
	inline     bool
}

// markerBlocks returns the text between consecutive question markers, or nil
// when the text has no markers. Text before the first marker is preamble and
// is dropped. Inline markers are accepted only when they continue the running
// number sequence.
func markerBlocks(text string) []string {
	var found []marker
	for _, m := range lineMarker.FindAllStringSubmatchIndex(text, -1) {
		found = append(found, marker{start: m[0], end: m[1], num: groupNum(text, m, 1, 2)})
	}
	for _, m := range inlineMarker.FindAllStringSubmatchIndex(text, -1) {
		found = append(found, marker{start: m[2], end: m[1], num: groupNum(text, m, 2, 3), inline: true})
	}
	if len(found) == 0 {
		return nil
	}
	slices.SortStableFunc(found, func(a, b marker) int { return a.start - b.start })

	var accepted []marker
	last, lastEnd := 0, -1
	for _, m := range found {
		if m.start < lastEnd {
			continue
		}
		if m.inline && m.num != last+1 {
			continue
		}
		if m.num >= 0 {
			last = m.num
		}
		accepted = append(accepted, m)
		lastEnd = m.end
	}

	blocks := make([]string, 0, len(accepted))
	for i, m := range accepted {
		end := len(text)
		if i+1 < len(accepted) {
			end = accepted[i+1].start
		}
		blocks = append(blocks, text[m.end:end])
	}
	return blocks
}

// groupNum parses the first non-empty numeric group among idx, or returns -1.
func groupNum(text string, m []int, idx ...int) int {
	for _, g := range idx {
		if m[2*g] < 0 {
			continue
		}
		n, err := strconv.Atoi(text[m[2*g]:m[2*g+1]])
		if err == nil {
			return n
		}
	}
	return -1
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// sentenceBlocks is the fallback for unnumbered text: within each blank-line
// block, sentences ending in '?' or opening with a directive are questions.
func (s *Segmenter) sentenceBlocks(text string) []string {
	var out []string
	for _, block := range blankLines.Split(text, -1) {
		for _, sent := range sentences(collapse(block)) {
			if strings.HasSuffix(sent, "?") || s.directives[firstWord(sent)] {
				out = append(out, sent)
			}
		}
	}
	return out
}

// sentences splits on '.', '!' or '?' followed by whitespace or the end.
func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + 1
		if next < len(text) && text[next] != ' ' {
			continue
		}
		if s := strings.TrimSpace(text[start:next]); s != "" {
			out = append(out, s)
		}
		start = next
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func firstWord(s string) string {
	f := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(f[0])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
