// Package exam holds the domain model shared by every stage of question
// extraction: source documents, question candidates, failures and the
// aggregated result.
package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SourceDocument is an acquired or explicitly supplied exam paper.
// The payload is either held in memory or resolved lazily on first use.
type SourceDocument struct {
	Fingerprint string
	Subject     string
	Origin      string // URL or local path
	Name        string // file name used to select a parser

	data []byte
	load func(ctx context.Context) ([]byte, error)
}

// NewDocument wraps an in-memory payload.
func NewDocument(fingerprint, subject, origin, name string, data []byte) SourceDocument {
	return SourceDocument{
		Fingerprint: fingerprint,
		Subject:     subject,
		Origin:      origin,
		Name:        name,
		data:        data,
	}
}

// LazyDocument wraps a payload that is resolved by load when first read.
func LazyDocument(fingerprint, subject, origin, name string, load func(ctx context.Context) ([]byte, error)) SourceDocument {
	return SourceDocument{
		Fingerprint: fingerprint,
		Subject:     subject,
		Origin:      origin,
		Name:        name,
		load:        load,
	}
}

// Bytes returns the document payload.
func (d SourceDocument) Bytes(ctx context.Context) ([]byte, error) {
	if d.load == nil {
		return d.data, nil
	}
	return d.load(ctx)
}

// Ref is the reference reported in failures: the origin when known,
// otherwise the fingerprint.
func (d SourceDocument) Ref() string {
	if d.Origin != "" {
		return d.Origin
	}
	return d.Fingerprint
}

// Status is the topic-match state of a candidate. It only moves forward.
type Status int

const (
	StatusUnmatched Status = iota
	StatusMatched
	StatusEnhanced
)

func (s Status) String() string {
	switch s {
	case StatusUnmatched:
		return "unmatched"
	case StatusMatched:
		return "matched"
	case StatusEnhanced:
		return "matched_enhanced"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Candidate is one detected question unit within a document.
type Candidate struct {
	DocumentID string
	Position   int
	Text       string
	Status     Status

	// DuplicateOf is the position of an earlier sibling this candidate was
	// merged into by enhancement, or -1.
	DuplicateOf int
}

// NewCandidate returns an unmatched candidate with no duplicate flag.
func NewCandidate(docID string, pos int, text string) Candidate {
	return Candidate{DocumentID: docID, Position: pos, Text: text, DuplicateOf: -1}
}

// Advance moves the candidate to status to. Moving backwards is an error;
// advancing to the current status is a no-op.
func (c *Candidate) Advance(to Status) error {
	if to < c.Status {
		return fmt.Errorf("candidate %s#%d: status cannot revert from %s to %s", c.DocumentID, c.Position, c.Status, to)
	}
	c.Status = to
	return nil
}

// IsDuplicate reports whether enhancement merged this candidate into a sibling.
func (c Candidate) IsDuplicate() bool {
	return c.DuplicateOf >= 0
}

// Failure is one per-document or per-stage failure recorded in a result.
type Failure struct {
	DocumentRef string `json:"document_ref"`
	Reason      Kind   `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// Result is the aggregated output of one pipeline run.
type Result struct {
	Subject     string
	Topic       string
	ExtractedAt time.Time
	Questions   []string
	Failures    []Failure
}

// NewResult starts an empty result stamped with now.
func NewResult(subject, topic string, now time.Time) *Result {
	return &Result{
		Subject:     subject,
		Topic:       topic,
		ExtractedAt: now.UTC(),
		Questions:   []string{},
		Failures:    []Failure{},
	}
}

// QuestionCount is always derived from Questions.
func (r *Result) QuestionCount() int {
	return len(r.Questions)
}

// AddFailure records err against ref. The reason is the error's kind.
func (r *Result) AddFailure(ref string, err error) {
	f := Failure{DocumentRef: ref, Reason: KindOf(err)}
	if err != nil {
		f.Detail = err.Error()
	}
	r.Failures = append(r.Failures, f)
}

type resultJSON struct {
	Subject       string    `json:"subject"`
	Topic         string    `json:"topic"`
	QuestionCount int       `json:"question_count"`
	ExtractedAt   string    `json:"extracted_at"`
	Questions     []string  `json:"questions"`
	Failures      []Failure `json:"failures"`
}

// MarshalJSON writes the persisted record format. question_count is computed
// here and failures is never null. Operators such as < and & are kept
// literal.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Subject:       r.Subject,
		Topic:         r.Topic,
		QuestionCount: len(r.Questions),
		ExtractedAt:   r.ExtractedAt.UTC().Format(time.RFC3339),
		Questions:     r.Questions,
		Failures:      r.Failures,
	}
	if out.Questions == nil {
		out.Questions = []string{}
	}
	if out.Failures == nil {
		out.Failures = []Failure{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads the persisted record format.
func (r *Result) UnmarshalJSON(b []byte) error {
	var in resultJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.QuestionCount != len(in.Questions) {
		return fmt.Errorf("question_count %d does not match %d questions", in.QuestionCount, len(in.Questions))
	}
	ts, err := time.Parse(time.RFC3339, in.ExtractedAt)
	if err != nil {
		return fmt.Errorf("extracted_at: %w", err)
	}
	*r = Result{
		Subject:     in.Subject,
		Topic:       in.Topic,
		ExtractedAt: ts,
		Questions:   in.Questions,
		Failures:    in.Failures,
	}
	return nil
}
