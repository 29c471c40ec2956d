package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// rowRecord is the gorm mapping shared by every table on both backends. The
// row index is the primary key; when left zero it is assigned by the database
// (AUTOINCREMENT on SQLite, IDENTITY on PostgreSQL) and read back after
// insert, while an explicit value is written as-is so the converter can
// reproduce a source table exactly.
type rowRecord struct {
	RowIndex  int64     `gorm:"column:row_index;primary_key"`
	ID        string    `gorm:"column:id"`
	CreatedAt time.Time `gorm:"column:created_at"`
	Data      string    `gorm:"column:data"`
}

// gormTable implements Table[T] over a single physical table. On SQLite all
// writes across the store share writeMu so that index assignment is serial;
// on PostgreSQL writeMu is nil and CreateMany takes an exclusive table lock
// inside its transaction instead.
type gormTable[T any] struct {
	db       *gorm.DB
	name     string
	postgres bool
	writeMu  *sync.Mutex
}

func newGormTable[T any](db *gorm.DB, name string, postgres bool, writeMu *sync.Mutex) *gormTable[T] {
	return &gormTable[T]{db: db, name: name, postgres: postgres, writeMu: writeMu}
}

func (t *gormTable[T]) encode(row Row[T]) (rowRecord, error) {
	data, err := json.Marshal(row.Data)
	if err != nil {
		return rowRecord{}, fmt.Errorf("encode %s row %s: %w", t.name, row.ID, err)
	}
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return rowRecord{RowIndex: row.RowIndex, ID: row.ID, CreatedAt: createdAt, Data: string(data)}, nil
}

func (t *gormTable[T]) decode(rec rowRecord) (Row[T], error) {
	var data T
	if err := json.Unmarshal([]byte(rec.Data), &data); err != nil {
		return Row[T]{}, fmt.Errorf("decode %s row %s: %w", t.name, rec.ID, err)
	}
	return Row[T]{ID: rec.ID, CreatedAt: rec.CreatedAt, RowIndex: rec.RowIndex, Data: data}, nil
}

// Create implements Table.
func (t *gormTable[T]) Create(row Row[T]) (Row[T], error) {
	rec, err := t.encode(row)
	if err != nil {
		return Row[T]{}, err
	}
	if t.writeMu != nil {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
	}
	if err := t.insert(t.db, &rec); err != nil {
		return Row[T]{}, err
	}
	row.RowIndex = rec.RowIndex
	row.CreatedAt = rec.CreatedAt
	return row, nil
}

// insert writes one record, translating driver errors. A PostgreSQL
// untranslatable-character rejection is retried once with sanitized data.
func (t *gormTable[T]) insert(db *gorm.DB, rec *rowRecord) error {
	err := db.Table(t.name).Create(rec).Error
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return fmt.Errorf("%s id %q: %w", t.name, rec.ID, ErrDuplicateID)
	}
	if t.postgres && isUntranslatableCharacter(err) {
		rec.Data = sanitizeText(rec.Data)
		if retryErr := db.Table(t.name).Create(rec).Error; retryErr == nil {
			return nil
		}
	}
	return fmt.Errorf("insert into %s: %w", t.name, err)
}

// CreateMany implements Table. Rows are inserted inside one transaction in
// chunks of batchSize; on PostgreSQL the table is locked exclusively first so
// the assigned indices are contiguous and follow input order.
func (t *gormTable[T]) CreateMany(rows []Row[T], batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	recs := make([]rowRecord, len(rows))
	for i, row := range rows {
		rec, err := t.encode(row)
		if err != nil {
			return err
		}
		recs[i] = rec
	}
	if t.writeMu != nil {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
	}
	tx := t.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin create_many on %s: %w", t.name, tx.Error)
	}
	if t.postgres {
		if err := tx.Exec(fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", t.name)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("lock %s: %w", t.name, err)
		}
	}
	for start := 0; start < len(recs); start += batchSize {
		end := start + batchSize
		if end > len(recs) {
			end = len(recs)
		}
		for i := start; i < end; i++ {
			if err := t.insert(tx, &recs[i]); err != nil {
				tx.Rollback()
				return err
			}
		}
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit create_many on %s: %w", t.name, err)
	}
	return nil
}

// GetAll implements Table. The full range is read in chunks of batchSize so
// that arbitrarily large tables never materialize in a single query.
func (t *gormTable[T]) GetAll(params RangeParams, batchSize int) ([]Row[T], error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var out []Row[T]
	remaining := params.Limit
	batchOffset := params.Offset
	for {
		chunk := batchSize
		if params.Limit > 0 && remaining < chunk {
			chunk = remaining
		}
		if chunk <= 0 {
			break
		}
		var recs []rowRecord
		q := t.db.Table(t.name).Order("row_index ASC").Limit(chunk).Offset(batchOffset)
		if params.AfterIndex > 0 {
			q = q.Where("row_index > ?", params.AfterIndex)
		}
		if params.BeforeIndex > 0 {
			q = q.Where("row_index < ?", params.BeforeIndex)
		}
		if err := q.Find(&recs).Error; err != nil {
			return nil, fmt.Errorf("select from %s: %w", t.name, err)
		}
		for _, rec := range recs {
			row, err := t.decode(rec)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		if len(recs) < chunk {
			break
		}
		batchOffset += len(recs)
		if params.Limit > 0 {
			remaining -= len(recs)
			if remaining <= 0 {
				break
			}
		}
	}
	return out, nil
}

// GetByID implements Table.
func (t *gormTable[T]) GetByID(id string) (Row[T], error) {
	var rec rowRecord
	err := t.db.Table(t.name).Where("id = ?", id).First(&rec).Error
	if gorm.IsRecordNotFoundError(err) {
		return Row[T]{}, fmt.Errorf("%s id %q: %w", t.name, id, ErrNotFound)
	}
	if err != nil {
		return Row[T]{}, fmt.Errorf("select from %s: %w", t.name, err)
	}
	return t.decode(rec)
}

// Count implements Table.
func (t *gormTable[T]) Count() (int64, error) {
	var n int64
	if err := t.db.Table(t.name).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

// upsert inserts the row or, when the id already exists, replaces its data
// in place. Row index and creation time of an existing row never change.
// On PostgreSQL two first-time registrations of one id can race between the
// select and the insert; the loser's duplicate-key failure is retried once,
// at which point the select finds the winner's row and takes the update path.
func (t *gormTable[T]) upsert(row Row[T]) (Row[T], error) {
	rec, err := t.encode(row)
	if err != nil {
		return Row[T]{}, err
	}
	if t.writeMu != nil {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
	}
	for attempt := 0; ; attempt++ {
		stored, err := t.upsertOnce(rec)
		if errors.Is(err, ErrDuplicateID) && attempt == 0 {
			continue
		}
		if err != nil {
			return Row[T]{}, err
		}
		row.RowIndex = stored.RowIndex
		row.CreatedAt = stored.CreatedAt
		return row, nil
	}
}

func (t *gormTable[T]) upsertOnce(rec rowRecord) (rowRecord, error) {
	tx := t.db.Begin()
	if tx.Error != nil {
		return rowRecord{}, fmt.Errorf("begin upsert on %s: %w", t.name, tx.Error)
	}
	var existing rowRecord
	err := tx.Table(t.name).Where("id = ?", rec.ID).First(&existing).Error
	switch {
	case err == nil:
		if err := tx.Table(t.name).Where("id = ?", rec.ID).Update("data", rec.Data).Error; err != nil {
			tx.Rollback()
			return rowRecord{}, fmt.Errorf("update %s id %q: %w", t.name, rec.ID, err)
		}
		rec.RowIndex = existing.RowIndex
		rec.CreatedAt = existing.CreatedAt
	case gorm.IsRecordNotFoundError(err):
		if err := t.insert(tx, &rec); err != nil {
			tx.Rollback()
			return rowRecord{}, err
		}
	default:
		tx.Rollback()
		return rowRecord{}, fmt.Errorf("select from %s: %w", t.name, err)
	}
	if err := tx.Commit().Error; err != nil {
		return rowRecord{}, fmt.Errorf("commit upsert on %s: %w", t.name, err)
	}
	return rec, nil
}

func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isUntranslatableCharacter(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "22021"
	}
	return false
}
