package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("run queue is full")
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("orchestrator stopped")
)

// Executor performs a queued run and returns its result.
type Executor func(ctx context.Context, run *Run) (*exam.Result, error)

// OrchestratorConfig sizes the run queue.
type OrchestratorConfig struct {
	Workers      int
	QueueSize    int
	RunTTL       time.Duration
	CleanupEvery time.Duration
}

// Orchestrator runs queued pipeline requests on a fixed set of workers.
type Orchestrator struct {
	runs  *RunStore
	queue chan *Run
	exec  Executor
	log   *slog.Logger
	cfg   OrchestratorConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // guards stopped and sends on queue
	stopped bool
}

func NewOrchestrator(cfg OrchestratorConfig, exec Executor, log *slog.Logger) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = time.Hour
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		runs:  NewRunStore(cfg.RunTTL),
		queue: make(chan *Run, cfg.QueueSize),
		exec:  exec,
		log:   log,
		cfg:   cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.Workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case run, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, run)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.CleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.runs.Cleanup()
			}
		}
	}()
}

func (o *Orchestrator) process(ctx context.Context, run *Run) {
	log := o.log.With("run_id", run.ID, "subject", run.Request.Subject, "topic", run.Request.Topic)
	run.SetStatus(RunRunning, "running")
	start := time.Now()
	res, err := o.exec(ctx, run)
	run.Finish(res, err)
	if err != nil {
		log.Error("run failed", "error", err, "duration", time.Since(start))
		return
	}
	log.Info("run finished", "questions", res.QuestionCount(), "failures", len(res.Failures), "duration", time.Since(start))
}

// Stop cancels running work and waits for the workers. Later calls to
// Submit fail with ErrStopped; calling Stop twice is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit validates req and queues a run for it.
func (o *Orchestrator) Submit(req Request) (*Run, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil, ErrStopped
	}
	run := NewRun(req)
	o.runs.Put(run)
	select {
	case o.queue <- run:
		return run, nil
	default:
		run.SetStatus(RunFailed, "queue_full")
		return run, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.QueueSize)
	}
}

// GetRun returns a run by ID.
func (o *Orchestrator) GetRun(id string) *Run {
	return o.runs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
