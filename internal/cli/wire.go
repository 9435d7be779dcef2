package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/dgallion1/papergest/internal/acquire"
	"github.com/dgallion1/papergest/internal/config"
	"github.com/dgallion1/papergest/internal/enhance"
	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/parser"
	"github.com/dgallion1/papergest/internal/pathstore"
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/dgallion1/papergest/internal/segment"
	"github.com/dgallion1/papergest/internal/store"
	"github.com/dgallion1/papergest/internal/topic"
)

// app holds the components a command needs. The store is opened on demand
// and must be opened before app is shared between goroutines.
type app struct {
	cfg config.Config
	log *slog.Logger

	store    *store.Store
	client   *acquire.Client
	enhancer enhance.Enhancer
	stats    *enhance.LLMStats
	closers  []func()
}

func newApp(cfg config.Config, log *slog.Logger) *app {
	a := &app{cfg: cfg, log: log}
	a.client = acquire.NewClient(
		acquire.WithRateLimit(cfg.AcquireRPS),
		acquire.WithTimeouts(cfg.ListingTimeout, cfg.AcquireTimeout),
		acquire.WithMaxBytes(cfg.MaxBytes),
		acquire.WithUserAgent(cfg.UserAgent),
	)
	a.closers = append(a.closers, a.client.Close)
	a.enhancer, a.stats = a.newEnhancer()
	return a
}

// openStore opens the configured membership backend.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	backend, err := a.newBackend()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, backend, a.log)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open %s store: %w", a.cfg.StoreKind, err)
	}
	a.store = st
	return st, nil
}

func (a *app) newBackend() (store.Backend, error) {
	switch a.cfg.StoreKind {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "sqlite":
		if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := store.OpenSQLite(filepath.Join(a.cfg.DataDir, "store.db"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "pathstore":
		client := pathstore.NewClient(a.cfg.PathstoreURL, a.cfg.PathstoreAPIKey)
		return store.NewPathstoreBackend(client, store.DefaultPathstorePrefix), nil
	default:
		return store.NewFileBackend(filepath.Join(a.cfg.DataDir, "store.jsonl")), nil
	}
}

// newEnhancer returns nil when the selected provider has no credentials.
func (a *app) newEnhancer() (enhance.Enhancer, *enhance.LLMStats) {
	if !a.cfg.EnhanceConfigured() {
		return nil, nil
	}
	var c enhance.Completer
	switch a.cfg.EnhanceProvider {
	case "anthropic":
		claude := enhance.NewClaudeClient(a.cfg.AnthropicAPIKey, a.cfg.AnthropicModel)
		a.closers = append(a.closers, claude.Close)
		c = claude
	default:
		c = enhance.NewOpenAICompleter(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, a.cfg.OpenAIModel)
	}

	opts := enhance.DefaultOptions()
	opts.Timeout = a.cfg.EnhanceTimeout
	opts.Batch.BatchTokens = a.cfg.EnhanceBatchTokens
	opts.DuplicateThreshold = a.cfg.DuplicateThreshold

	stats := enhance.NewLLMStats(time.Hour)
	e := enhance.NewLLMEnhancer(c, opts, a.log).WithStats(stats)
	if a.cfg.EnhanceCacheDir != "" {
		e.WithCache(&enhance.Cache{Dir: a.cfg.EnhanceCacheDir})
	}
	a.log.Debug("enhancement configured", "provider", a.cfg.EnhanceProvider, "model", c.ModelName())
	return e, stats
}

func (a *app) segmenter() *segment.Segmenter {
	opts := segment.DefaultOptions()
	opts.MinQuestionChars = a.cfg.MinQuestionChars
	if len(a.cfg.Directives) > 0 {
		opts.Directives = a.cfg.Directives
	}
	opts.Parser = parser.Options{PDFFallbackPdftotext: a.cfg.PDFFallbackPdftotext}
	return segment.New(opts, a.log)
}

func (a *app) filter() *topic.Filter {
	synonyms := maps.Clone(topic.DefaultSynonyms)
	maps.Copy(synonyms, a.cfg.Synonyms)
	return &topic.Filter{
		Scorer: topic.KeywordScorer{
			TermWeight:    a.cfg.TermWeight,
			SynonymWeight: a.cfg.SynonymWeight,
			PhraseBonus:   a.cfg.PhraseBonus,
		},
		Threshold: a.cfg.TopicThreshold,
		Synonyms:  synonyms,
	}
}

// pipeline builds an extraction pipeline over docs, which may be nil for
// single-document runs.
func (a *app) pipeline(docs pipeline.Documents) *pipeline.Pipeline {
	return pipeline.New(docs, a.segmenter(), a.filter(), a.enhancer,
		pipeline.Options{Parallelism: a.cfg.Parallelism}, a.log)
}

func (a *app) acquirer(st *store.Store) *acquire.Acquirer {
	scraper := acquire.NewScraper(a.client, a.cfg.SearchURLs, a.cfg.MaxPerListing, a.log)
	return acquire.New(scraper, a.client, st, a.cfg.RawDir, a.log)
}

// acquireAndExtract refreshes the store for req and runs the pipeline over
// the subject's documents. Acquisition failures lead the result's failure
// list. onAcquired, when set, is called between the two phases.
func (a *app) acquireAndExtract(ctx context.Context, req pipeline.Request, onAcquired func(acquire.Report), onDoc func(pipeline.DocOutcome)) (*exam.Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	report, err := a.acquirer(st).Acquire(ctx, req.Subject, req.Topic)
	if err != nil {
		return nil, err
	}
	if err := st.Flush(ctx); err != nil {
		a.log.Warn("store flush failed", "error", err)
	}
	a.log.Info("acquisition finished", "listed", report.Listed, "new", report.New, "skipped", report.Skipped, "failed", len(report.Failures))
	if onAcquired != nil {
		onAcquired(report)
	}

	res, err := a.pipeline(st).Execute(ctx, req, onDoc)
	if res != nil && len(report.Failures) > 0 {
		acq := exam.NewResult(res.Subject, res.Topic, res.ExtractedAt)
		for _, f := range report.Failures {
			acq.AddFailure(failureRef(f), f)
		}
		res.Failures = append(acq.Failures, res.Failures...)
	}
	return res, err
}

func failureRef(err error) string {
	var e *exam.Error
	if errors.As(err, &e) {
		return e.Ref
	}
	return ""
}

// Close flushes the store and releases clients.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.log.Warn("store close failed", "error", err)
		}
	}
	for _, c := range a.closers {
		c()
	}
}
