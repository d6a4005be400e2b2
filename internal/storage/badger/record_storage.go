package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const statsKey = "run_stats"

// RecordStorage implements the RecordStorage interface for Badger
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRecord upserts a merged record keyed by fingerprint id. An existing
// record with the same id is replaced wholesale.
func (s *RecordStorage) SaveRecord(ctx context.Context, record *models.JobRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Debug().
		Str("record_id", record.ID).
		Str("title", record.Title).
		Msg("Saved merged record")

	return nil
}

// GetRecord returns a record by fingerprint id
func (s *RecordStorage) GetRecord(ctx context.Context, id string) (*models.JobRecord, error) {
	var record models.JobRecord
	err := s.db.Store().Get(id, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

// ListRecords returns all stored records ordered by submission time DESC
func (s *RecordStorage) ListRecords(ctx context.Context) ([]*models.JobRecord, error) {
	var records []*models.JobRecord
	err := s.db.Store().Find(&records, badgerhold.Where("ID").Ne("").SortBy("SubmittedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// MarkProcessed adds a fingerprint to the processed set
func (s *RecordStorage) MarkProcessed(ctx context.Context, fingerprint string) error {
	entry := models.ProcessedFingerprint{
		ID:          fingerprint,
		ProcessedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(fingerprint, &entry); err != nil {
		return fmt.Errorf("failed to mark fingerprint processed: %w", err)
	}
	return nil
}

// IsProcessed reports whether a fingerprint is in the processed set
func (s *RecordStorage) IsProcessed(ctx context.Context, fingerprint string) (bool, error) {
	var entry models.ProcessedFingerprint
	err := s.db.Store().Get(fingerprint, &entry)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed set: %w", err)
	}
	return true, nil
}

// GetStats returns the persisted run statistics; zero-value stats when none
// have been written yet
func (s *RecordStorage) GetStats(ctx context.Context) (*models.RunStats, error) {
	var stats models.RunStats
	err := s.db.Store().Get(statsKey, &stats)
	if err == badgerhold.ErrNotFound {
		return &models.RunStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}
	return &stats, nil
}

// SaveStats persists run statistics
func (s *RecordStorage) SaveStats(ctx context.Context, stats *models.RunStats) error {
	if err := s.db.Store().Upsert(statsKey, stats); err != nil {
		return fmt.Errorf("failed to save run stats: %w", err)
	}
	return nil
}
