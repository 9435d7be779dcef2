package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
)

func TestRun_StateTransitions(t *testing.T) {
	run := NewRun(Request{Subject: "math", Topic: "algebra"})
	if run.ID == "" {
		t.Fatal("expected run ID")
	}
	if run.Status != RunQueued {
		t.Fatalf("expected status %q, got %q", RunQueued, run.Status)
	}

	transitions := []struct {
		status RunStatus
		phase  string
	}{
		{RunAcquiring, "acquiring documents"},
		{RunRunning, "extracting"},
	}
	for _, tr := range transitions {
		before := run.UpdatedAt
		time.Sleep(time.Millisecond)
		run.SetStatus(tr.status, tr.phase)

		if run.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, run.Status)
		}
		if run.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, run.Phase)
		}
		if !run.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestRun_Finish(t *testing.T) {
	now := time.Now()
	clean := exam.NewResult("math", "algebra", now)
	withFailures := exam.NewResult("math", "algebra", now)
	withFailures.AddFailure("a.pdf", exam.Errorf(exam.KindUnreadable, "a.pdf", "corrupt"))

	tests := []struct {
		name string
		res  *exam.Result
		err  error
		want RunStatus
	}{
		{"completed", clean, nil, RunCompleted},
		{"partial failures", withFailures, nil, RunPartial},
		{"canceled with result", clean, context.Canceled, RunPartial},
		{"no result", nil, errors.New("source down"), RunFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun(Request{Subject: "math", Topic: "algebra"})
			run.Finish(tt.res, tt.err)
			snap := run.Snapshot()
			if snap.Status != tt.want {
				t.Errorf("status = %q, want %q", snap.Status, tt.want)
			}
			if !snap.Status.Finished() {
				t.Error("expected finished status")
			}
			if (tt.err != nil) != (len(snap.Errors) == 1) {
				t.Errorf("errors = %v", snap.Errors)
			}
		})
	}
}

func TestRun_SnapshotSlicesNotNil(t *testing.T) {
	run := NewRun(Request{Subject: "math", Topic: "algebra"})
	snap := run.Snapshot()
	if snap.Errors == nil || snap.Documents == nil {
		t.Error("expected non-nil slices in snapshot")
	}
}

func TestRun_AddDocument(t *testing.T) {
	run := NewRun(Request{Subject: "math", Topic: "algebra"})
	run.AddDocument(DocOutcome{Ref: "a.pdf", State: StateFinalized, Candidates: 4, Matched: 2, Questions: []string{"x", "y"}})
	run.AddDocument(DocOutcome{Ref: "b.pdf", State: StateFailed})

	snap := run.Snapshot()
	if len(snap.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(snap.Documents))
	}
	if snap.Documents[0].Questions != 2 || snap.Documents[1].State != StateFailed {
		t.Errorf("documents = %+v", snap.Documents)
	}
}

func TestRunStore_PutGet(t *testing.T) {
	store := NewRunStore(time.Hour)
	run := NewRun(Request{Subject: "math", Topic: "algebra"})
	store.Put(run)

	if got := store.Get(run.ID); got != run {
		t.Fatal("expected to get run back")
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing run")
	}
}

func TestRunStore_TTLCleanup(t *testing.T) {
	store := NewRunStore(50 * time.Millisecond)

	finished := NewRun(Request{Subject: "math", Topic: "algebra"})
	finished.Finish(exam.NewResult("math", "algebra", time.Now()), nil)
	store.Put(finished)

	running := NewRun(Request{Subject: "math", Topic: "algebra"})
	running.SetStatus(RunRunning, "running")
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := NewRun(Request{Subject: "math", Topic: "algebra"})
	fresh.Finish(exam.NewResult("math", "algebra", time.Now()), nil)
	store.Put(fresh)

	store.Cleanup()

	if store.Get(finished.ID) != nil {
		t.Error("expected expired run to be cleaned up")
	}
	if store.Get(running.ID) == nil {
		t.Error("expected unfinished run to survive cleanup")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh run to survive cleanup")
	}
}

func TestRunStore_CleanupEmpty(t *testing.T) {
	NewRunStore(time.Hour).Cleanup()
}

func TestOrchestrator_RunsSubmitted(t *testing.T) {
	var calls atomic.Int32
	exec := func(ctx context.Context, run *Run) (*exam.Result, error) {
		calls.Add(1)
		res := exam.NewResult(run.Request.Subject, run.Request.Topic, time.Now())
		res.Questions = append(res.Questions, "What is 2+2?")
		return res, nil
	}
	o := NewOrchestrator(OrchestratorConfig{Workers: 2, QueueSize: 4}, exec, nil)
	o.Start(context.Background())
	defer o.Stop()

	run, err := o.Submit(Request{Subject: " math ", Topic: "arithmetic"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Request.Subject != "math" {
		t.Errorf("subject not normalized: %q", run.Request.Subject)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !run.Snapshot().Status.Finished() {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := o.GetRun(run.ID).Snapshot()
	if snap.Status != RunCompleted {
		t.Errorf("status = %q", snap.Status)
	}
	if snap.Result == nil || snap.Result.QuestionCount() != 1 {
		t.Errorf("result = %+v", snap.Result)
	}
	if calls.Load() != 1 {
		t.Errorf("executor called %d times", calls.Load())
	}
}

func TestOrchestrator_SubmitInvalid(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{}, nil, nil)
	_, err := o.Submit(Request{Subject: "math"})
	if !exam.IsKind(err, exam.KindInvalidRequest) {
		t.Fatalf("err = %v, want InvalidRequest", err)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	// Not started: nothing drains the queue.
	o := NewOrchestrator(OrchestratorConfig{QueueSize: 1}, nil, nil)
	if _, err := o.Submit(Request{Subject: "math", Topic: "algebra"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	run, err := o.Submit(Request{Subject: "math", Topic: "algebra"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if run.Snapshot().Status != RunFailed {
		t.Errorf("status = %q, want failed", run.Snapshot().Status)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("queue depth = %d", o.QueueDepth())
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{QueueSize: 2}, nil, nil)
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	run, err := o.Submit(Request{Subject: "Maths", Topic: "algebra"})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if run != nil {
		t.Errorf("run = %+v, want nil", run)
	}
	if o.QueueDepth() != 0 {
		t.Errorf("queue depth = %d", o.QueueDepth())
	}
}
