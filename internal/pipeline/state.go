package pipeline

import (
	"fmt"
)

// DocState is the processing state of one document within a run.
type DocState string

const (
	StatePending        DocState = "pending"
	StateSegmented      DocState = "segmented"
	StateFiltered       DocState = "filtered"
	StateEnhanced       DocState = "enhanced"
	StateEnhanceSkipped DocState = "enhance_skipped"
	StateFinalized      DocState = "finalized"
	StateFailed         DocState = "failed"
)

var transitions = map[DocState][]DocState{
	StatePending:        {StateSegmented, StateFailed},
	StateSegmented:      {StateFiltered, StateFailed},
	StateFiltered:       {StateEnhanced, StateEnhanceSkipped, StateFailed},
	StateEnhanced:       {StateFinalized, StateFailed},
	StateEnhanceSkipped: {StateFinalized, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s DocState) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to DocState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// docTracker walks one document through the state machine.
type docTracker struct {
	ref     string
	state   DocState
	history []DocState
}

func newDocTracker(ref string) *docTracker {
	return &docTracker{
		ref:     ref,
		state:   StatePending,
		history: []DocState{StatePending},
	}
}

func (d *docTracker) to(next DocState) error {
	if !CanTransition(d.state, next) {
		return fmt.Errorf("document %s: invalid transition %s -> %s", d.ref, d.state, next)
	}
	d.state = next
	d.history = append(d.history, next)
	return nil
}
