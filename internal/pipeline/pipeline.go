// Package pipeline drives source documents through segmentation, topic
// filtering and optional enhancement, and aggregates the questions into one
// result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/dgallion1/papergest/internal/enhance"
	"github.com/dgallion1/papergest/internal/exam"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

// Segmenter splits a document into question candidates.
type Segmenter interface {
	Segment(ctx context.Context, doc exam.SourceDocument) (iter.Seq[exam.Candidate], error)
}

// Matcher keeps the candidates relevant to a topic.
type Matcher interface {
	Filter(seq iter.Seq[exam.Candidate], topic string) iter.Seq[exam.Candidate]
}

// Documents lists the source documents of a run.
type Documents interface {
	Documents(subject, topicHint string) iter.Seq[exam.SourceDocument]
}

// Request describes one extraction run.
type Request struct {
	Subject        string `json:"subject" validate:"required,max=200"`
	Topic          string `json:"topic" validate:"required,max=200"`
	UseEnhancement bool   `json:"use_enhancement"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims the request fields and validates them. Failures are
// InvalidRequest errors.
func (r Request) Normalize() (Request, error) {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Topic = strings.TrimSpace(r.Topic)
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return r, exam.Errorf(exam.KindInvalidRequest, "", "%s", strings.Join(fields, ", "))
		}
		return r, exam.Wrap(exam.KindInvalidRequest, "", err)
	}
	if strings.ContainsFunc(r.Subject, unicode.IsControl) {
		return r, exam.Errorf(exam.KindInvalidRequest, "", "subject contains control characters")
	}
	if strings.ContainsFunc(r.Topic, unicode.IsControl) {
		return r, exam.Errorf(exam.KindInvalidRequest, "", "topic contains control characters")
	}
	return r, nil
}

// Options tune a pipeline.
type Options struct {
	// Parallelism is the number of documents processed at once. Values
	// below 2 process documents one after another.
	Parallelism int
}

// DocOutcome is what processing one document produced.
type DocOutcome struct {
	Ref        string
	State      DocState
	History    []DocState
	Candidates int
	Matched    int
	Enhanced   int
	Duplicates int
	Questions  []string
	Failures   []error

	canceled bool
}

// Pipeline runs extraction requests.
type Pipeline struct {
	docs      Documents
	segmenter Segmenter
	matcher   Matcher
	enhancer  enhance.Enhancer
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a pipeline. docs may be nil when only RunDocument is used, and
// enhancer may be nil when no provider is configured.
func New(docs Documents, seg Segmenter, m Matcher, enh enhance.Enhancer, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		docs:      docs,
		segmenter: seg,
		matcher:   m,
		enhancer:  enh,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run processes every listed document for the request's subject.
func (p *Pipeline) Run(ctx context.Context, req Request) (*exam.Result, error) {
	return p.Execute(ctx, req, nil)
}

// Execute is Run with a callback invoked once per processed document, in
// listing order. On cancellation the documents finalized so far are
// returned together with the context error.
func (p *Pipeline) Execute(ctx context.Context, req Request, onDoc func(DocOutcome)) (*exam.Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if p.docs == nil {
		return nil, errors.New("pipeline has no document source")
	}
	docs := slices.Collect(p.docs.Documents(req.Subject, req.Topic))
	p.logger.Info("pipeline started", "subject", req.Subject, "topic", req.Topic, "documents", len(docs), "enhance", req.UseEnhancement)
	return p.process(ctx, req, docs, onDoc)
}

// RunDocument processes a single explicitly supplied document.
func (p *Pipeline) RunDocument(ctx context.Context, req Request, doc exam.SourceDocument) (*exam.Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	return p.process(ctx, req, []exam.SourceDocument{doc}, nil)
}

func (p *Pipeline) process(ctx context.Context, req Request, docs []exam.SourceDocument, onDoc func(DocOutcome)) (*exam.Result, error) {
	res := exam.NewResult(req.Subject, req.Topic, p.now())
	enh := p.enhancerFor(req)

	outcomes := make([]*DocOutcome, len(docs))
	if p.opts.Parallelism > 1 && len(docs) > 1 {
		g := new(errgroup.Group)
		g.SetLimit(p.opts.Parallelism)
		for i, doc := range docs {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				out := p.document(ctx, req, doc, enh)
				outcomes[i] = &out
				return nil
			})
		}
		g.Wait()
	} else {
		for i, doc := range docs {
			if ctx.Err() != nil {
				break
			}
			out := p.document(ctx, req, doc, enh)
			outcomes[i] = &out
		}
	}

	var finalized, failed int
	for _, out := range outcomes {
		if out == nil || out.canceled {
			continue
		}
		res.Questions = append(res.Questions, out.Questions...)
		for _, err := range out.Failures {
			res.AddFailure(out.Ref, err)
		}
		if out.State == StateFinalized {
			finalized++
		} else {
			failed++
		}
		if onDoc != nil {
			onDoc(*out)
		}
	}

	p.logger.Info("pipeline finished",
		"subject", req.Subject,
		"topic", req.Topic,
		"finalized", finalized,
		"failed", failed,
		"questions", res.QuestionCount(),
		"failures", len(res.Failures),
	)
	return res, ctx.Err()
}

func (p *Pipeline) enhancerFor(req Request) enhance.Enhancer {
	if !req.UseEnhancement {
		return enhance.NullEnhancer{}
	}
	if p.enhancer == nil {
		return enhance.Unavailable{Err: enhance.ErrNotConfigured}
	}
	return p.enhancer
}

// document drives one document through the state machine. An invalid
// transition is reported as a failure of that document.
func (p *Pipeline) document(ctx context.Context, req Request, doc exam.SourceDocument, enh enhance.Enhancer) DocOutcome {
	ref := doc.Ref()
	log := p.logger.With("doc", ref)
	tr := newDocTracker(ref)
	out := DocOutcome{Ref: ref}
	finish := func() DocOutcome {
		out.State = tr.state
		out.History = slices.Clone(tr.history)
		return out
	}
	fail := func(err error) DocOutcome {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			out.canceled = true
		}
		out.Failures = append(out.Failures, err)
		tr.to(StateFailed)
		return finish()
	}

	seq, err := p.segmenter.Segment(ctx, doc)
	if err != nil {
		if exam.KindOf(err) == exam.KindUnknown && ctx.Err() == nil {
			err = exam.Wrap(exam.KindUnreadable, ref, err)
		}
		log.Warn("document failed", "state", tr.state, "error", err)
		return fail(err)
	}
	if err := tr.to(StateSegmented); err != nil {
		return fail(err)
	}

	var segmented int
	counted := func(yield func(exam.Candidate) bool) {
		for c := range seq {
			segmented++
			if !yield(c) {
				return
			}
		}
	}
	matched := slices.Collect(p.matcher.Filter(counted, req.Topic))
	out.Candidates = segmented
	out.Matched = len(matched)
	if err := tr.to(StateFiltered); err != nil {
		return fail(err)
	}
	log.Debug("filtered", "candidates", segmented, "matched", len(matched))

	final := matched
	next := StateEnhanceSkipped
	if req.UseEnhancement {
		enhanced, err := enh.Enhance(ctx, matched, req.Topic)
		if len(enhanced) == len(matched) {
			final = enhanced
		} else if err == nil {
			err = fmt.Errorf("enhancer returned %d candidates for %d", len(enhanced), len(matched))
			final = matched
		}
		if err != nil {
			log.Warn("enhancement unavailable", "error", err)
			out.Failures = append(out.Failures, exam.Wrap(exam.KindEnhancement, ref, err))
		}
		for _, c := range final {
			if c.Status == exam.StatusEnhanced {
				out.Enhanced++
			}
		}
		if out.Enhanced > 0 {
			next = StateEnhanced
		}
	}
	if err := tr.to(next); err != nil {
		return fail(err)
	}

	for _, c := range final {
		if c.IsDuplicate() {
			out.Duplicates++
			continue
		}
		out.Questions = append(out.Questions, c.Text)
	}
	if err := tr.to(StateFinalized); err != nil {
		return fail(err)
	}
	log.Info("document finalized", "questions", len(out.Questions), "enhanced", out.Enhanced, "duplicates", out.Duplicates)
	return finish()
}
