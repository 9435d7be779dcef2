package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/google/uuid"
)

// RunStatus represents the state of a queued pipeline run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunAcquiring RunStatus = "acquiring"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Finished reports whether the run has stopped.
func (s RunStatus) Finished() bool {
	return s == RunCompleted || s == RunPartial || s == RunFailed
}

// Run tracks one queued pipeline request.
type Run struct {
	mu sync.Mutex

	ID      string
	Request Request

	Status    RunStatus
	Phase     string
	CreatedAt time.Time
	UpdatedAt time.Time

	documents []DocProgress
	result    *exam.Result
	errors    []string
}

// DocProgress is the per-document summary kept on a run.
type DocProgress struct {
	Ref        string   `json:"document_ref"`
	State      DocState `json:"state"`
	Candidates int      `json:"candidates"`
	Matched    int      `json:"matched"`
	Enhanced   int      `json:"enhanced"`
	Questions  int      `json:"questions"`
}

// NewRun creates a queued run with a fresh ID.
func NewRun(req Request) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    RunQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates run status atomically.
func (r *Run) SetStatus(status RunStatus, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.Phase = phase
	r.UpdatedAt = time.Now()
}

// AddError records an error.
func (r *Run) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.UpdatedAt = time.Now()
}

// AddDocument records a processed document.
func (r *Run) AddDocument(out DocOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, DocProgress{
		Ref:        out.Ref,
		State:      out.State,
		Candidates: out.Candidates,
		Matched:    out.Matched,
		Enhanced:   out.Enhanced,
		Questions:  len(out.Questions),
	})
	r.UpdatedAt = time.Now()
}

// Finish stores the result and settles the final status: failed without a
// result, partial when the result lists failures, completed otherwise.
func (r *Run) Finish(res *exam.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = res
	if err != nil {
		r.errors = append(r.errors, err.Error())
	}
	switch {
	case res == nil:
		r.Status = RunFailed
	case err != nil || len(res.Failures) > 0:
		r.Status = RunPartial
	default:
		r.Status = RunCompleted
	}
	r.Phase = "done"
	r.UpdatedAt = time.Now()
}

// Result returns the run's result once finished.
func (r *Run) Result() *exam.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID        string        `json:"run_id"`
	Request   Request       `json:"request"`
	Status    RunStatus     `json:"status"`
	Phase     string        `json:"phase"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Documents []DocProgress `json:"documents"`
	Errors    []string      `json:"errors"`
	Result    *exam.Result  `json:"result,omitempty"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make([]DocProgress, len(r.documents))
	copy(docs, r.documents)
	errs := make([]string, len(r.errors))
	copy(errs, r.errors)
	return RunSnapshot{
		ID:        r.ID,
		Request:   r.Request,
		Status:    r.Status,
		Phase:     r.Phase,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Documents: docs,
		Errors:    errs,
		Result:    r.result,
	}
}

// RunStore is a thread-safe in-memory run registry with TTL eviction of
// finished runs.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// Cleanup removes finished runs not updated within the TTL.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		run.mu.Lock()
		expired := run.Status.Finished() && now.Sub(run.UpdatedAt) > s.ttl
		run.mu.Unlock()
		if expired {
			delete(s.runs, id)
		}
	}
}
