package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunState_BeginRejectsSecondRun(t *testing.T) {
	state := NewRunState()

	assert.True(t, state.Begin())
	assert.False(t, state.Begin(), "second begin while running must be rejected")

	state.Reset()
	assert.True(t, state.Begin(), "begin after reset must succeed")
}

func TestRunState_ResetClearsEverything(t *testing.T) {
	state := NewRunState()
	state.Begin()
	state.SetQueue([]WorkItem{{Index: 0, Title: "a"}, {Index: 1, Title: "b"}})
	state.SetPhase(PhaseProcessingQueue)
	state.RecordSuccess()
	state.RecordFailure()
	state.Advance()
	state.RequestStop()

	state.Reset()

	snap := state.Snapshot()
	assert.False(t, snap.Running)
	assert.False(t, snap.StopRequested)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 0, snap.SuccessCount)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, 0, snap.QueueLength)
	assert.Equal(t, 0, snap.Cursor)
}

func TestRunState_StopIgnoredWhenIdle(t *testing.T) {
	state := NewRunState()
	state.RequestStop()
	assert.False(t, state.StopRequested(), "stop on an idle state is a no-op")
}

func TestRunState_Counters(t *testing.T) {
	state := NewRunState()
	state.Begin()
	state.RecordSuccess()
	state.RecordSuccess()
	state.RecordFailure()

	success, failure := state.Counts()
	assert.Equal(t, 2, success)
	assert.Equal(t, 1, failure)
}
