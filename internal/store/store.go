// Package store provides storage backends for journey records.
//
// It includes an in-memory store for tests plus SQLite and PostgreSQL
// backed stores. All backends implement the same document-style contract:
// insert, lookup by either key form, partial update returning a modified
// count, filtered listing, and counting.
package store

import (
	"time"

	"github.com/emoseum/journey/internal/models"
)

// Store defines the persistence contract consumed by the journey manager.
// Lookups return (nil, nil) when no record matches; "not found" is not an
// error. Each update method is a single atomic document update.
type Store interface {
	// AddRecord persists a new record. The record's ID and RecordKey must
	// already be populated.
	AddRecord(rec models.JourneyRecord) error

	// GetRecordByID fetches a record by its primary key.
	GetRecordByID(id string) (*models.JourneyRecord, error)

	// GetRecordByKey fetches a record by its human-readable record key.
	GetRecordByKey(key string) (*models.JourneyRecord, error)

	// UpdateTitle sets the title and guided question together in one
	// update. Returns the number of records matched.
	UpdateTitle(id, title, guidedQuestion string) (int64, error)

	// UpdateReview sets the review message and extracted token count
	// together in one update. Returns the number of records matched.
	UpdateReview(id string, review models.ReviewMessage, tokens int) (int64, error)

	// ListOwnerRecords returns an owner's records sorted by creation time
	// descending, honoring the query's pagination and date range.
	ListOwnerRecords(ownerID string, q ListQuery) ([]models.JourneyRecord, error)

	// CountRecords returns the total number of records.
	CountRecords() (int64, error)

	// CountGeneratedRecords returns the number of records whose prompt and
	// review were both produced by a generation backend.
	CountGeneratedRecords() (int64, error)

	// Close releases the underlying resources.
	Close() error
}

// ListQuery carries pagination and inclusive date-range filters for listings.
type ListQuery struct {
	Limit    int
	Offset   int
	DateFrom *time.Time
	DateTo   *time.Time
}

// DefaultListLimit is applied when a listing query does not set a limit.
const DefaultListLimit = 50

// normalized returns the query with defaults applied.
func (q ListQuery) normalized() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
