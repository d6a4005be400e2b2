package models

import (
	"sync"
	"time"
)

// RunStats is the persisted statistics record. Counters are cumulative across
// runs; LastRun is updated on every write.
type RunStats struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastRun      time.Time `json:"last_run"`
}

// RunStatus is a point-in-time snapshot of the run state, safe to hand to
// handlers and event payloads
type RunStatus struct {
	Running       bool   `json:"running"`
	StopRequested bool   `json:"stopRequested"`
	Phase         string `json:"phase"`
	SuccessCount  int    `json:"successCount"`
	FailureCount  int    `json:"failureCount"`
	QueueLength   int    `json:"queueLength"`
	Cursor        int    `json:"cursor"`
}

// Run phases
const (
	PhaseIdle            = "idle"
	PhaseCollectingItems = "collecting_items"
	PhaseProcessingQueue = "processing_queue"
	PhaseDownstream      = "downstream"
	PhaseFinishing       = "finishing"
)

// RunState owns the queue, cursor, flags and counters for the active run.
// Only the pipeline mutates it; everything else reads snapshots. The internal
// lock keeps Status() safe against the single pipeline goroutine, not against
// concurrent runs - those are excluded by the single-flight guard.
type RunState struct {
	mu            sync.Mutex
	queue         []WorkItem
	cursor        int
	phase         string
	running       bool
	stopRequested bool
	successCount  int
	failureCount  int
}

// NewRunState returns an idle RunState
func NewRunState() *RunState {
	return &RunState{phase: PhaseIdle}
}

// Begin marks the run active. Returns false when a run is already in flight.
func (r *RunState) Begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.stopRequested = false
	r.phase = PhaseCollectingItems
	r.queue = nil
	r.cursor = 0
	r.successCount = 0
	r.failureCount = 0
	return true
}

// SetQueue installs the enumerated work items
func (r *RunState) SetQueue(items []WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = items
}

// Queue returns the installed work items
func (r *RunState) Queue() []WorkItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue
}

// SetPhase advances the state machine
func (r *RunState) SetPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = phase
}

// Advance moves the cursor to the next item
func (r *RunState) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor++
}

// RecordSuccess increments the success counter
func (r *RunState) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successCount++
}

// RecordFailure increments the failure counter
func (r *RunState) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureCount++
}

// RequestStop sets the cooperative stop flag; it is honored at item and phase
// boundaries only
func (r *RunState) RequestStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.stopRequested = true
	}
}

// StopRequested reports the cooperative stop flag
func (r *RunState) StopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRequested
}

// Counts returns the success and failure counters
func (r *RunState) Counts() (success, failure int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successCount, r.failureCount
}

// Reset clears the state back to idle. Called unconditionally when a run
// finishes, whether it succeeded, failed or was cancelled.
func (r *RunState) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
	r.cursor = 0
	r.phase = PhaseIdle
	r.running = false
	r.stopRequested = false
	r.successCount = 0
	r.failureCount = 0
}

// Snapshot returns a copy of the observable state
func (r *RunState) Snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunStatus{
		Running:       r.running,
		StopRequested: r.stopRequested,
		Phase:         r.phase,
		SuccessCount:  r.successCount,
		FailureCount:  r.failureCount,
		QueueLength:   len(r.queue),
		Cursor:        r.cursor,
	}
}
