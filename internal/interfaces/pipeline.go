package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrRunActive is returned when a start command arrives while a run is in
// progress; no two runs may be active concurrently
var ErrRunActive = errors.New("a run is already active")

// RunOptions carries optional overrides supplied with a start command
type RunOptions struct {
	// SkipDownstream runs phase one only
	SkipDownstream bool `json:"skip_downstream,omitempty"`

	// MaxItems caps the number of items processed this run (0 = no cap)
	MaxItems int `json:"max_items,omitempty"`
}

// PipelineService owns run state and drives the two-phase collection workflow
type PipelineService interface {
	// Start accepts a start command and runs the pipeline in the background.
	// Returns ErrRunActive when a run is already in progress.
	Start(ctx context.Context, opts RunOptions) error

	// Stop requests cooperative cancellation; the in-flight item completes
	// before the stop takes effect
	Stop()

	// Status returns a point-in-time snapshot of the run state
	Status() models.RunStatus
}

// Submitter posts merged records to the backend and queries pending ones
type Submitter interface {
	// Submit delivers a record with bounded retry; exhaustion is reported
	// but non-fatal to the run
	Submit(ctx context.Context, record *models.JobRecord) error

	// FetchPending returns backend records whose downstream flag is unset
	FetchPending(ctx context.Context) ([]*models.JobRecord, error)
}
