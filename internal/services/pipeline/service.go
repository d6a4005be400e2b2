package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// runActiveKey is the durable run-in-progress flag. It survives a crash, so
// startup clears it before accepting commands.
const runActiveKey = "run_active"

// auxExtractor is the slice of the extractor the pipeline needs; kept narrow
// so tests can substitute it
type auxExtractor interface {
	Extract(ctx context.Context, targetURL string) (*models.AuxiliaryFields, string, error)
}

// Service drives the two-phase collection workflow: enumerate and process the
// listing queue, then run the downstream build phase. Single-flight; stop is
// cooperative and honored at item and phase boundaries only.
type Service struct {
	agent     interfaces.WorkerAgent
	extractor auxExtractor
	submitter interfaces.Submitter
	storage   interfaces.RecordStorage
	kv        interfaces.KeyValueStorage
	events    interfaces.EventService
	config    *common.PipelineConfig
	logger    arbor.ILogger

	state *models.RunState

	// baseStats holds the persisted counters at run start; this run's
	// increments accumulate on top of them
	baseStats models.RunStats

	runCtx    context.Context
	runCancel context.CancelFunc
}

var _ interfaces.PipelineService = (*Service)(nil)

// NewService creates the pipeline service
func NewService(
	agent interfaces.WorkerAgent,
	extractor auxExtractor,
	submitter interfaces.Submitter,
	storage interfaces.RecordStorage,
	kv interfaces.KeyValueStorage,
	events interfaces.EventService,
	config *common.PipelineConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		agent:     agent,
		extractor: extractor,
		submitter: submitter,
		storage:   storage,
		kv:        kv,
		events:    events,
		config:    config,
		logger:    logger,
		state:     models.NewRunState(),
	}
}

// Start accepts a start command and launches the run in the background.
// Returns ErrRunActive when a run is already in progress; the active run is
// unaffected.
func (s *Service) Start(ctx context.Context, opts interfaces.RunOptions) error {
	if !s.state.Begin() {
		s.logger.Warn().Msg("Start command ignored, a run is already active")
		return interfaces.ErrRunActive
	}

	if err := s.kv.Set(ctx, runActiveKey, "true", "run in progress"); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist run-active flag")
	}

	// The run outlives the start command's request context
	runCtx, runCancel := context.WithCancel(context.Background())
	s.runCtx = runCtx
	s.runCancel = runCancel

	s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventRunStarted,
		Payload: s.state.Snapshot(),
	})

	s.logger.Info().
		Bool("skip_downstream", opts.SkipDownstream).
		Int("max_items", opts.MaxItems).
		Msg("Run started")

	go s.run(runCtx, opts)
	return nil
}

// Stop requests cooperative cancellation. The in-flight item completes; the
// stop takes effect at the next item or phase boundary. A stop with no active
// run is a no-op.
func (s *Service) Stop() {
	if !s.state.Snapshot().Running {
		s.logger.Debug().Msg("Stop command ignored, no active run")
		return
	}
	s.state.RequestStop()
	s.logger.Info().Msg("Stop requested, honoring at next boundary")
	s.publishStatus(context.Background(), "warn", "Stop requested")
}

// Status returns a point-in-time snapshot of the run state
func (s *Service) Status() models.RunStatus {
	return s.state.Snapshot()
}

// ClearStaleRunFlag removes a run-active flag left behind by a crash. Called
// once at startup before any command is accepted.
func (s *Service) ClearStaleRunFlag(ctx context.Context) {
	if err := s.kv.Delete(ctx, runActiveKey); err != nil && err != interfaces.ErrKeyNotFound {
		s.logger.Warn().Err(err).Msg("Failed to clear stale run-active flag")
	}
}

// Close hard-cancels any background run during process shutdown
func (s *Service) Close() error {
	if s.runCancel != nil {
		s.runCancel()
	}
	return nil
}

// publishStatus emits a status event carrying the current run snapshot
func (s *Service) publishStatus(ctx context.Context, level, message string) {
	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventStatusUpdate,
		Payload: models.StatusEvent{
			Message:   message,
			Level:     level,
			Timestamp: time.Now(),
			Stats:     s.state.Snapshot(),
		},
	})
}
