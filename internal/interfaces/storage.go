package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// Sentinel errors shared across storage implementations
var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrRecordNotFound = errors.New("record not found")
)

// KeyValuePair represents a stored key/value entry with metadata
type KeyValuePair struct {
	Key         string    `badgerhold:"key" json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage provides durable key/value state (run-active flag, user
// configuration) surviving process restarts
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// RecordStorage persists merged records, the processed-fingerprint set and
// run statistics
type RecordStorage interface {
	// SaveRecord upserts a merged record keyed by its fingerprint id,
	// replacing any existing entry with the same id
	SaveRecord(ctx context.Context, record *models.JobRecord) error

	// GetRecord returns a record by fingerprint id, or ErrRecordNotFound
	GetRecord(ctx context.Context, id string) (*models.JobRecord, error)

	// ListRecords returns all stored records, most recently submitted first
	ListRecords(ctx context.Context) ([]*models.JobRecord, error)

	// MarkProcessed adds a fingerprint to the processed set
	MarkProcessed(ctx context.Context, fingerprint string) error

	// IsProcessed reports whether a fingerprint was submitted in this or a
	// prior run
	IsProcessed(ctx context.Context, fingerprint string) (bool, error)

	// GetStats returns the persisted run statistics
	GetStats(ctx context.Context) (*models.RunStats, error)

	// SaveStats persists run statistics
	SaveStats(ctx context.Context, stats *models.RunStats) error
}
