package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// ControlHandler exposes the run control surface: start, stop, status and
// stored records
type ControlHandler struct {
	pipeline interfaces.PipelineService
	storage  interfaces.RecordStorage
	logger   arbor.ILogger
}

// NewControlHandler creates the control handler
func NewControlHandler(pipeline interfaces.PipelineService, storage interfaces.RecordStorage, logger arbor.ILogger) *ControlHandler {
	return &ControlHandler{
		pipeline: pipeline,
		storage:  storage,
		logger:   logger,
	}
}

// StartHandler accepts a start command. POST /api/pipeline/start with an
// optional RunOptions body. A second start while a run is active returns 409
// and leaves the active run untouched.
func (h *ControlHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var opts interfaces.RunOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid run options: "+err.Error())
		return
	}

	if err := h.pipeline.Start(r.Context(), opts); err != nil {
		if errors.Is(err, interfaces.ErrRunActive) {
			writeError(w, http.StatusConflict, "a run is already active")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to start run")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// StopHandler requests cooperative cancellation. POST /api/pipeline/stop.
// Stopping with no active run is a harmless no-op.
func (h *ControlHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.pipeline.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// StatusHandler returns the run snapshot plus persisted statistics.
// GET /api/status.
func (h *ControlHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := h.storage.GetStats(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to load run statistics")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":   h.pipeline.Status(),
		"stats": stats,
	})
}

// RecordsHandler lists stored records, most recent first. GET /api/records.
func (h *ControlHandler) RecordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := h.storage.ListRecords(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list records")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}
