package enhance

import (
	"slices"
	"sync"
	"time"
)

// StatsSnapshot summarises the enhancement calls inside the stats window.
// Latency fields cover successful calls only.
type StatsSnapshot struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

type callRecord struct {
	at      time.Time
	latency int64 // ms
	ok      bool
}

// LLMStats keeps a rolling window of model call outcomes. It is safe for
// concurrent use; a nil *LLMStats ignores records.
type LLMStats struct {
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls []callRecord // oldest first
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{window: window, now: time.Now}
}

func (s *LLMStats) Record(d time.Duration)        { s.record(d, true) }
func (s *LLMStats) RecordFailure(d time.Duration) { s.record(d, false) }

func (s *LLMStats) record(d time.Duration, ok bool) {
	if s == nil {
		return
	}
	at := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(at)
	s.calls = append(s.calls, callRecord{at: at, latency: max(d.Milliseconds(), 0), ok: ok})
}

// expire drops records older than the window. Records arrive in time
// order, so the survivors are a suffix.
func (s *LLMStats) expire(at time.Time) {
	cutoff := at.Add(-s.window)
	keep := slices.IndexFunc(s.calls, func(c callRecord) bool { return !c.at.Before(cutoff) })
	if keep < 0 {
		keep = len(s.calls)
	}
	if keep > 0 {
		s.calls = slices.Delete(s.calls, 0, keep)
	}
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	var snap StatsSnapshot
	if s == nil {
		return snap
	}
	s.mu.Lock()
	s.expire(s.now())
	latencies := make([]int64, 0, len(s.calls))
	for _, c := range s.calls {
		if c.ok {
			latencies = append(latencies, c.latency)
		} else {
			snap.Failures++
		}
	}
	s.mu.Unlock()

	if len(latencies) == 0 {
		return snap
	}
	slices.Sort(latencies)
	var total int64
	for _, v := range latencies {
		total += v
	}
	snap.Count = len(latencies)
	snap.MinMs = latencies[0]
	snap.MaxMs = latencies[len(latencies)-1]
	snap.AvgMs = float64(total) / float64(len(latencies))
	snap.P50Ms = quantile(latencies, 0.50)
	snap.P95Ms = quantile(latencies, 0.95)
	snap.P99Ms = quantile(latencies, 0.99)
	return snap
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []int64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return float64(sorted[0])
	case q >= 1:
		return float64(sorted[len(sorted)-1])
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i+1 >= len(sorted) {
		return float64(sorted[i])
	}
	frac := pos - float64(i)
	return float64(sorted[i]) + frac*float64(sorted[i+1]-sorted[i])
}
