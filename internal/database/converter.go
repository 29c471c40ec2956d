package database

import (
	"fmt"
	"time"

	"bazaar/internal/models"
)

// Convert copies every table from src into dst and verifies the copy. The
// destination tables must be empty: rows are inserted in ascending row-index
// order with their source indices written explicitly, so gaps in the source
// (a consumed identity value, say) survive the copy. Any divergence is
// reported as an IntegrityError.
func Convert(src, dst Store, batchSize int) error {
	if err := copyTable[models.AgentProfile](tableAgents, src.Agents(), dst.Agents(), batchSize); err != nil {
		return err
	}
	if err := copyTable(tableActions, src.Actions(), dst.Actions(), batchSize); err != nil {
		return err
	}
	return copyTable(tableLogs, src.Logs(), dst.Logs(), batchSize)
}

// copyTable streams rows from src into dst and then compares the two tables
// row by row.
func copyTable[T any](name string, src, dst Table[T], batchSize int) error {
	n, err := dst.Count()
	if err != nil {
		return err
	}
	if n != 0 {
		return &IntegrityError{Table: name, Detail: fmt.Sprintf("destination already holds %d rows", n)}
	}
	rows, err := src.GetAll(RangeParams{}, batchSize)
	if err != nil {
		return err
	}
	if err := dst.CreateMany(rows, batchSize); err != nil {
		return err
	}
	return verifyTable(name, src, dst, batchSize)
}

func verifyTable[T any](name string, src, dst Table[T], batchSize int) error {
	want, err := src.GetAll(RangeParams{}, batchSize)
	if err != nil {
		return err
	}
	got, err := dst.GetAll(RangeParams{}, batchSize)
	if err != nil {
		return err
	}
	if len(want) != len(got) {
		return &IntegrityError{
			Table:  name,
			Detail: fmt.Sprintf("row count mismatch: source %d, destination %d", len(want), len(got)),
		}
	}
	for i := range want {
		if want[i].ID != got[i].ID {
			return &IntegrityError{
				Table:  name,
				Detail: fmt.Sprintf("id mismatch at index %d: %q vs %q", want[i].RowIndex, want[i].ID, got[i].ID),
			}
		}
		if want[i].RowIndex != got[i].RowIndex {
			return &IntegrityError{
				Table:  name,
				Detail: fmt.Sprintf("row %q stored at index %d, expected %d", got[i].ID, got[i].RowIndex, want[i].RowIndex),
			}
		}
		// Backends store timestamps at different precisions, so compare at
		// the coarser microsecond resolution.
		if !want[i].CreatedAt.Truncate(time.Microsecond).Equal(got[i].CreatedAt.Truncate(time.Microsecond)) {
			return &IntegrityError{
				Table:  name,
				Detail: fmt.Sprintf("timestamp mismatch for row %q", want[i].ID),
			}
		}
	}
	return nil
}
