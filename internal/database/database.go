// Package database implements the append-only record streams backing the
// marketplace: three tables (agents, actions, logs) over two interchangeable
// backends, an embedded SQLite file and a networked PostgreSQL schema.
package database

import (
	"time"

	"bazaar/internal/models"
)

// Row is a stored record. RowIndex is a dense, monotonic, 1-based per-table
// sequence assigned exactly once at insert time; it is the sole ordering key
// for pagination.
type Row[T any] struct {
	ID        string
	CreatedAt time.Time
	RowIndex  int64
	Data      T
}

// Typed rows for the three streams.
type (
	AgentRow  = Row[models.AgentProfile]
	ActionRow = Row[models.ActionRecord]
	LogRow    = Row[models.Log]
)

// RangeParams select a slice of a table. Zero values do not constrain.
// Results are always ordered by ascending row index.
type RangeParams struct {
	Limit       int
	Offset      int
	AfterIndex  int64
	BeforeIndex int64
}

// DefaultBatchSize is used when callers pass a non-positive batch size.
const DefaultBatchSize = 1000

// Table is the contract shared by all three streams on both backends. The
// batch size of CreateMany and GetAll is an implementation detail: the
// observable result is identical for any positive value.
type Table[T any] interface {
	// Create inserts a row, assigning the next row index atomically. The
	// id must not already exist (ErrDuplicateID).
	Create(row Row[T]) (Row[T], error)
	// CreateMany inserts rows in order; row indices are assigned in input
	// order with no gaps regardless of batch size.
	CreateMany(rows []Row[T], batchSize int) error
	// GetAll returns rows honoring the range parameters in ascending
	// row-index order, fetching internally in chunks of batchSize.
	GetAll(params RangeParams, batchSize int) ([]Row[T], error)
	// GetByID returns the single row with the given id or ErrNotFound.
	GetByID(id string) (Row[T], error)
	// Count returns the total number of rows.
	Count() (int64, error)
}

// AgentTable extends Table with registration semantics.
type AgentTable interface {
	Table[models.AgentProfile]
	// Upsert replaces the payload of an existing id in place, keeping the
	// original row index and creation time, or inserts a new row.
	Upsert(row AgentRow) (AgentRow, error)
}

// Store owns the three streams of one experiment namespace.
type Store interface {
	Agents() AgentTable
	Actions() Table[models.ActionRecord]
	Logs() Table[models.Log]
	Close() error
}
