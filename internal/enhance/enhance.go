// Package enhance optionally rewrites matched question candidates through a
// language model. Enhancement is advisory: on any failure the affected
// candidates keep their text and status.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgallion1/papergest/internal/chunker"
	"github.com/dgallion1/papergest/internal/exam"
)

// Enhancer rewrites candidates. The returned slice always has the same length
// and order as the input, even when err is non-nil.
type Enhancer interface {
	Enhance(ctx context.Context, cands []exam.Candidate, topic string) ([]exam.Candidate, error)
}

// Completer is a language-model backend.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	ModelName() string
}

// ErrNotConfigured is reported when enhancement is requested but no model
// provider is configured.
var ErrNotConfigured = errors.New("no enhancement provider configured")

// NullEnhancer returns its input unchanged.
type NullEnhancer struct{}

func (NullEnhancer) Enhance(_ context.Context, cands []exam.Candidate, _ string) ([]exam.Candidate, error) {
	return cands, nil
}

// Unavailable returns its input unchanged together with Err. It stands in
// for a provider that cannot be reached at all.
type Unavailable struct {
	Err error
}

func (u Unavailable) Enhance(_ context.Context, cands []exam.Candidate, _ string) ([]exam.Candidate, error) {
	if len(cands) == 0 {
		return cands, nil
	}
	err := u.Err
	if err == nil {
		err = ErrNotConfigured
	}
	return cands, err
}

// Options tune the model-backed enhancer.
type Options struct {
	// Timeout bounds each batch including retries.
	Timeout time.Duration
	Batch   chunker.Config
	// DuplicateThreshold is the Similarity at or above which a later
	// candidate is flagged as a duplicate of an earlier one.
	DuplicateThreshold float64
	MaxRetries         int
}

// DefaultOptions returns the built-in thresholds.
func DefaultOptions() Options {
	return Options{
		Timeout:            30 * time.Second,
		Batch:              chunker.DefaultConfig(),
		DuplicateThreshold: 0.92,
		MaxRetries:         MaxRetries,
	}
}

// LLMEnhancer cleans candidates in token-bounded batches.
type LLMEnhancer struct {
	completer Completer
	opts      Options
	cache     *Cache
	stats     *LLMStats
	logger    *slog.Logger
	backoff   func(attempt int) time.Duration
}

func NewLLMEnhancer(c Completer, opts Options, logger *slog.Logger) *LLMEnhancer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &LLMEnhancer{
		completer: c,
		opts:      opts,
		stats:     NewLLMStats(time.Hour),
		logger:    logger,
		backoff:   Backoff,
	}
}

// WithCache enables the on-disk reply cache.
func (e *LLMEnhancer) WithCache(c *Cache) *LLMEnhancer {
	e.cache = c
	return e
}

// WithStats shares a latency recorder.
func (e *LLMEnhancer) WithStats(s *LLMStats) *LLMEnhancer {
	e.stats = s
	return e
}

// Stats returns the latency recorder.
func (e *LLMEnhancer) Stats() *LLMStats { return e.stats }

// Enhance rewrites cands batch by batch. A failed batch leaves its candidates
// untouched; all batch errors are joined into the returned error.
func (e *LLMEnhancer) Enhance(ctx context.Context, cands []exam.Candidate, topic string) ([]exam.Candidate, error) {
	out := slices.Clone(cands)
	if len(out) == 0 {
		return out, nil
	}

	texts := make([]string, len(out))
	for i, c := range out {
		texts[i] = c.Text
	}

	var errs []error
	for _, b := range chunker.Batches(texts, e.opts.Batch) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rewrites, err := e.rewriteBatch(ctx, topic, texts[b.Start:b.End])
		if err != nil {
			e.logger.Warn("enhancement batch failed", "from", b.Start, "to", b.End-1, "error", err)
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", b.Start, b.End-1, err))
			continue
		}
		for i := b.Start; i < b.End; i++ {
			text, ok := rewrites[i-b.Start]
			if !ok || !ValidateRewrite(out[i].Text, text) {
				continue
			}
			out[i].Text = text
			_ = out[i].Advance(exam.StatusEnhanced)
		}
	}

	if n := MarkDuplicates(out, e.opts.DuplicateThreshold); n > 0 {
		e.logger.Debug("near-duplicate questions flagged", "count", n)
	}
	return out, errors.Join(errs...)
}

// rewriteBatch returns cleaned texts keyed by index within the batch.
func (e *LLMEnhancer) rewriteBatch(ctx context.Context, topic string, texts []string) (map[int]string, error) {
	prompt := BuildBatchPrompt(topic, texts)
	key := CacheKey(e.completer.ModelName(), SystemPrompt+"\n\n"+prompt)

	if e.cache != nil {
		if raw, ok, _ := e.cache.Get(ctx, key); ok {
			if rewrites, err := ParseRewrites(string(raw)); err == nil {
				return indexRewrites(rewrites, len(texts)), nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var raw string
	for attempt := 0; ; attempt++ {
		start := time.Now()
		var err error
		raw, err = e.completer.Complete(ctx, SystemPrompt, prompt)
		if err == nil {
			e.stats.Record(time.Since(start))
			break
		}
		e.stats.RecordFailure(time.Since(start))
		if !IsRetryable(err) || attempt >= e.opts.MaxRetries {
			return nil, err
		}
		wait := e.backoff(attempt)
		e.logger.Debug("retrying enhancement call", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
	}

	rewrites, err := ParseRewrites(raw)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Save(ctx, key, []byte(stripCodeBlock(raw))); err != nil {
			e.logger.Debug("enhancement cache write failed", "error", err)
		}
	}
	return indexRewrites(rewrites, len(texts)), nil
}

func indexRewrites(rewrites []Rewrite, n int) map[int]string {
	m := make(map[int]string, len(rewrites))
	for _, r := range rewrites {
		if r.ID < 1 || r.ID > n {
			continue
		}
		m[r.ID-1] = r.Text
	}
	return m
}
