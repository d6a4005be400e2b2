package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// run drives one full pipeline pass. It always reaches finish: success,
// enumeration failure and cooperative stop all funnel through the same
// cleanup.
func (s *Service) run(ctx context.Context, opts interfaces.RunOptions) {
	defer s.finish()

	// Base stats load first: finish always persists, so the base must be
	// current even when the run aborts before processing anything
	s.loadBaseStats(ctx)

	caps := s.agent.Capabilities()
	for _, want := range []interfaces.Capability{
		interfaces.CapabilityEnumerate,
		interfaces.CapabilityInteraction,
		interfaces.CapabilityDetail,
	} {
		if !interfaces.HasCapability(caps, want) {
			err := fmt.Errorf("%w: %s", interfaces.ErrMissingCapability, want)
			s.logger.Error().Err(err).Msg("Agent cannot drive the listing page, abandoning run")
			s.publishStatus(ctx, "error", "Agent missing capability: "+string(want))
			return
		}
	}

	queue, err := s.collect(ctx, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("Item enumeration failed, abandoning run")
		s.publishStatus(ctx, "error", "Item enumeration failed: "+err.Error())
		return
	}

	s.state.SetQueue(queue)
	s.state.SetPhase(models.PhaseProcessingQueue)
	s.publishStatus(ctx, "info", fmt.Sprintf("Processing %d eligible items", len(queue)))

	for i, item := range queue {
		if s.state.StopRequested() {
			s.logger.Info().Int("remaining", len(queue)-i).Msg("Stop honored at item boundary")
			return
		}

		s.processItem(ctx, item, caps)
		s.state.Advance()
		s.persistStats(ctx)

		// The host page gets a full idle window after every item except
		// the last, measured from item completion
		if i < len(queue)-1 && !s.pause(ctx) {
			return
		}
	}

	if opts.SkipDownstream {
		s.logger.Info().Msg("Downstream phase skipped by request")
		return
	}
	if s.state.StopRequested() {
		s.logger.Info().Msg("Stop honored at phase boundary")
		return
	}

	s.downstream(ctx, caps)
}

// pause blocks for the configured inter-item delay. Returns false when the
// run context is cancelled mid-pause.
func (s *Service) pause(ctx context.Context) bool {
	if s.config.ItemDelay <= 0 {
		return true
	}

	timer := time.NewTimer(s.config.ItemDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// collect attaches the agent to the listing page and enumerates eligible
// work items
func (s *Service) collect(ctx context.Context, opts interfaces.RunOptions) ([]models.WorkItem, error) {
	if err := s.agent.Attach(ctx, s.config.ListingURL); err != nil {
		return nil, fmt.Errorf("failed to attach to listing page: %w", err)
	}

	items, err := s.agent.CollectItems(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.WorkItem, 0, len(items))
	for _, item := range items {
		if !s.statusEligible(item.Status) {
			s.logger.Debug().
				Str("title", item.Title).
				Str("status", item.Status).
				Msg("Skipping item with ineligible status")
			continue
		}
		eligible = append(eligible, item)
		if opts.MaxItems > 0 && len(eligible) >= opts.MaxItems {
			break
		}
	}

	s.logger.Info().
		Int("enumerated", len(items)).
		Int("eligible", len(eligible)).
		Msg("Item enumeration complete")

	return eligible, nil
}

// statusEligible reports whether an item's status passes the configured
// filter
func (s *Service) statusEligible(status string) bool {
	if s.config.IncludeAllStatuses {
		return true
	}
	for _, eligible := range s.config.EligibleStatuses {
		if strings.EqualFold(status, eligible) {
			return true
		}
	}
	return false
}

// processItem runs one item through the full per-item sequence: dedup check,
// interaction, detail request, target URL recovery, auxiliary extraction,
// secondary tabs, merge, persist and submit. Extraction and secondary tabs
// degrade; interaction, detail and submission failures fail the item.
func (s *Service) processItem(ctx context.Context, item models.WorkItem, caps []interfaces.Capability) {
	fingerprint := common.Fingerprint(item.Title, item.Company)

	processed, err := s.storage.IsProcessed(ctx, fingerprint)
	if err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Processed-set lookup failed, treating as new")
	}
	if processed {
		s.logger.Debug().
			Str("title", item.Title).
			Str("company", item.Company).
			Msg("Skipping already-processed item")
		s.publishStatus(ctx, "debug", "Skipped duplicate: "+item.Title)
		return
	}

	if err := s.agent.SimulateInteraction(ctx, item.Index); err != nil {
		s.failItem(ctx, item, "interaction injection failed", err)
		return
	}

	detail, err := s.agent.RequestDetail(ctx, item.Index)
	if err != nil {
		s.failItem(ctx, item, "detail request failed", err)
		return
	}

	targetURL := detail.TargetURL
	if targetURL == "" {
		targetURL, err = s.agent.RecoverTargetURL(ctx, item.Index)
		if err != nil {
			s.failItem(ctx, item, "no target URL recoverable", err)
			return
		}
	}

	// Auxiliary extraction is degradable: the record is still merged and
	// submitted with empty auxiliary fields
	aux, finalURL, err := s.extractor.Extract(ctx, targetURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", targetURL).Msg("Auxiliary extraction degraded")
		s.publishStatus(ctx, "warn", "Auxiliary extraction degraded for "+item.Title)
	}
	if finalURL == "" {
		finalURL = targetURL
	}

	secondary := make(map[string]string)
	if interfaces.HasCapability(caps, interfaces.CapabilitySecondary) {
		for _, kind := range s.config.SecondaryTabs {
			text, err := s.agent.RequestSecondary(ctx, kind)
			if err != nil {
				s.logger.Debug().Err(err).Str("tab", kind).Msg("Secondary tab degraded")
				continue
			}
			if text != "" {
				secondary[kind] = text
			}
		}
	}
	if len(secondary) == 0 {
		secondary = nil
	}

	record := &models.JobRecord{
		ID:               fingerprint,
		Title:            firstNonEmpty(detail.Title, item.Title),
		Company:          firstNonEmpty(detail.Company, item.Company),
		HiringManager:    detail.HiringManager,
		ShortDescription: detail.ShortDescription,
		TargetURL:        finalURL,
		FullDescription:  aux.FullDescription,
		ContactEmail:     aux.ContactEmail,
		Location:         aux.Location,
		Experience:       aux.Experience,
		Secondary:        secondary,
		Source:           s.config.Source,
		SubmittedAt:      time.Now(),
	}

	if err := s.storage.SaveRecord(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Local record save failed")
	}

	if err := s.submitter.Submit(ctx, record); err != nil {
		s.failItem(ctx, item, "submission failed", err)
		return
	}

	if err := s.storage.MarkProcessed(ctx, fingerprint); err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to record fingerprint in processed set")
	}

	s.state.RecordSuccess()
	s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventItemProcessed,
		Payload: record,
	})

	s.logger.Info().
		Str("record_id", record.ID).
		Str("title", record.Title).
		Str("company", record.Company).
		Msg("Item processed and submitted")
}

// failItem records a per-item failure; the run continues with the next item
func (s *Service) failItem(ctx context.Context, item models.WorkItem, reason string, err error) {
	s.state.RecordFailure()
	s.logger.Warn().
		Err(err).
		Int("index", item.Index).
		Str("title", item.Title).
		Msg("Item failed: " + reason)

	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventItemFailed,
		Payload: map[string]interface{}{
			"index":  item.Index,
			"title":  item.Title,
			"reason": reason,
		},
	})
	s.publishStatus(ctx, "warn", fmt.Sprintf("Item failed (%s): %s", reason, item.Title))
}

// downstream runs the build phase: fetch pending records from the backend
// and drive one build round-trip per record, reloading the builder page
// between records
func (s *Service) downstream(ctx context.Context, caps []interfaces.Capability) {
	if s.config.BuilderURL == "" {
		s.logger.Debug().Msg("No builder URL configured, skipping downstream phase")
		return
	}
	if !interfaces.HasCapability(caps, interfaces.CapabilityBuild) {
		s.logger.Debug().Msg("Agent does not advertise the build capability, skipping downstream phase")
		return
	}

	s.state.SetPhase(models.PhaseDownstream)
	s.publishStatus(ctx, "info", "Starting downstream build phase")

	pending, err := s.submitter.FetchPending(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch pending records, skipping downstream phase")
		s.publishStatus(ctx, "warn", "Downstream phase skipped: "+err.Error())
		return
	}
	if len(pending) == 0 {
		s.logger.Info().Msg("No pending records for downstream phase")
		return
	}

	if err := s.agent.NavigateHost(ctx, s.config.BuilderURL); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to open builder page, skipping downstream phase")
		return
	}

	for i, record := range pending {
		if s.state.StopRequested() {
			s.logger.Info().Int("remaining", len(pending)-i).Msg("Stop honored at downstream boundary")
			return
		}

		// The builder accumulates page state; a reload between records is
		// mandatory, not an optimization
		if i > 0 {
			if err := s.agent.ReloadHost(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Builder reload failed, abandoning downstream phase")
				return
			}
		}

		if err := s.agent.Build(ctx, record); err != nil {
			s.state.RecordFailure()
			s.persistStats(ctx)
			s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Downstream build failed")
			s.publishStatus(ctx, "warn", "Build failed for "+record.Title)
			continue
		}

		record.Built = true
		if err := s.storage.SaveRecord(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Failed to persist built flag locally")
		}
		if err := s.submitter.Submit(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Failed to report built flag to backend")
		}

		s.state.RecordSuccess()
		s.persistStats(ctx)
		s.publishStatus(ctx, "info", "Built "+record.Title)
	}
}

// loadBaseStats snapshots the persisted counters at run start so this run's
// increments accumulate on top of prior runs
func (s *Service) loadBaseStats(ctx context.Context) {
	s.baseStats = models.RunStats{}

	prior, err := s.storage.GetStats(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load persisted statistics, counting from zero")
		return
	}
	if prior != nil {
		s.baseStats = *prior
	}
}

// persistStats writes the cumulative counters. Called after every item and at
// run completion, so a crash loses at most the in-flight item.
func (s *Service) persistStats(ctx context.Context) {
	success, failure := s.state.Counts()
	stats := &models.RunStats{
		SuccessCount: s.baseStats.SuccessCount + success,
		FailureCount: s.baseStats.FailureCount + failure,
		LastRun:      time.Now(),
	}
	if err := s.storage.SaveStats(ctx, stats); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist run statistics")
	}
}

// finish is the Finishing phase: return the host page to baseline, persist
// run statistics, clear the durable run flag and reset state. Runs on its own
// context so a cancelled run still cleans up.
func (s *Service) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.state.SetPhase(models.PhaseFinishing)
	s.publishStatus(ctx, "info", "Run finishing")

	if s.config.BaselineURL != "" {
		if err := s.agent.NavigateHost(ctx, s.config.BaselineURL); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to return host page to baseline")
		}
	}

	s.persistStats(ctx)

	if err := s.kv.Delete(ctx, runActiveKey); err != nil && err != interfaces.ErrKeyNotFound {
		s.logger.Warn().Err(err).Msg("Failed to clear run-active flag")
	}

	snapshot := s.state.Snapshot()
	s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventRunCompleted,
		Payload: snapshot,
	})

	s.state.Reset()

	s.logger.Info().
		Int("success", snapshot.SuccessCount).
		Int("failure", snapshot.FailureCount).
		Msg("Run completed")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
