package pipeline

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/monitoring"
)

// Unit outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// UnitEvent is a unit that did not complete.
type UnitEvent struct {
	Stage string
	Unit  string
	Err   string
}

// Summary records unit outcomes for one run. It satisfies the Reporter
// interfaces of every stage and is safe for concurrent use.
type Summary struct {
	mu        sync.Mutex
	runID     string
	metrics   *monitoring.Metrics
	completed map[string]int
	skipped   []UnitEvent
	failed    []UnitEvent
}

// NewSummary creates a Summary. metrics may be nil.
func NewSummary(runID string, metrics *monitoring.Metrics) *Summary {
	return &Summary{runID: runID, metrics: metrics, completed: make(map[string]int)}
}

// Skip records a unit left out after a recoverable error.
func (s *Summary) Skip(stage, unit string, err error) {
	s.record(&s.skipped, OutcomeSkipped, stage, unit, err)
}

// Fail records a unit that failed fatally.
func (s *Summary) Fail(stage, unit string, err error) {
	zap.L().Error("pipeline: unit failed",
		zap.String("stage", stage),
		zap.String("unit", unit),
		zap.Error(err),
	)
	s.record(&s.failed, OutcomeFailed, stage, unit, err)
}

func (s *Summary) record(list *[]UnitEvent, outcome, stage, unit string, err error) {
	ev := UnitEvent{Stage: stage, Unit: unit}
	if err != nil {
		ev.Err = err.Error()
	}
	s.mu.Lock()
	*list = append(*list, ev)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ObserveUnit(stage, outcome)
	}
}

// Complete adds n completed units for stage.
func (s *Summary) Complete(stage string, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.completed[stage] += n
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Units.WithLabelValues(stage, OutcomeCompleted).Add(float64(n))
	}
}

// Skipped returns the skipped units in record order.
func (s *Summary) Skipped() []UnitEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UnitEvent(nil), s.skipped...)
}

// Failed returns the failed units in record order.
func (s *Summary) Failed() []UnitEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UnitEvent(nil), s.failed...)
}

// HasFailures reports whether any unit failed.
func (s *Summary) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed) > 0
}

// Snapshot tallies the run for alerting.
func (s *Summary) Snapshot(d time.Duration) *monitoring.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &monitoring.Snapshot{
		RunID:    s.runID,
		Skipped:  len(s.skipped),
		Failed:   len(s.failed),
		Duration: d,
	}
	for _, n := range s.completed {
		snap.Completed += n
	}
	if len(s.failed) > 0 {
		snap.FailedBy = make(map[string]int)
		for _, ev := range s.failed {
			snap.FailedBy[ev.Stage]++
		}
	}
	return snap
}

// Log writes the summary to the global logger.
func (s *Summary) Log(d time.Duration) {
	snap := s.Snapshot(d)
	zap.L().Info("pipeline: run summary",
		zap.String("run_id", snap.RunID),
		zap.Int("completed", snap.Completed),
		zap.Int("skipped", snap.Skipped),
		zap.Int("failed", snap.Failed),
		zap.Duration("duration", d),
	)
}

// Print writes a human-readable summary to w.
func (s *Summary) Print(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages := make([]string, 0, len(s.completed))
	for st := range s.completed {
		stages = append(stages, st)
	}
	sort.Strings(stages)

	fmt.Fprintf(w, "run %s\n", s.runID)
	for _, st := range stages {
		fmt.Fprintf(w, "  %-8s completed %d\n", st, s.completed[st])
	}
	fmt.Fprintf(w, "  skipped %d\n", len(s.skipped))
	for _, ev := range s.skipped {
		fmt.Fprintf(w, "    %s %s: %s\n", ev.Stage, ev.Unit, ev.Err)
	}
	fmt.Fprintf(w, "  failed %d\n", len(s.failed))
	for _, ev := range s.failed {
		fmt.Fprintf(w, "    %s %s: %s\n", ev.Stage, ev.Unit, ev.Err)
	}
}
