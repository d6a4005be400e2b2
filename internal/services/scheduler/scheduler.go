package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Scheduler triggers unattended pipeline runs on a cron schedule. A trigger
// that lands while a run is active is skipped, never queued.
type Scheduler struct {
	cron     *cron.Cron
	pipeline interfaces.PipelineService
	config   *common.SchedulerConfig
	logger   arbor.ILogger
}

// NewScheduler creates a scheduler bound to the pipeline
func NewScheduler(pipeline interfaces.PipelineService, config *common.SchedulerConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		pipeline: pipeline,
		config:   config,
		logger:   logger,
	}
}

// Start registers the cron entry and starts the scheduler. Disabled
// configuration is a no-op.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.trigger); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Scheduler started")
	return nil
}

// trigger starts a scheduled run with default options
func (s *Scheduler) trigger() {
	err := s.pipeline.Start(context.Background(), interfaces.RunOptions{})
	if err == nil {
		s.logger.Info().Msg("Scheduled run started")
		return
	}
	if errors.Is(err, interfaces.ErrRunActive) {
		s.logger.Info().Msg("Scheduled run skipped, a run is already active")
		return
	}
	s.logger.Error().Err(err).Msg("Scheduled run failed to start")
}

// Stop halts the scheduler; a run already triggered keeps going
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}
