package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"

	"bazaar/internal/models"
)

// sqliteDDL creates one append-only table. AUTOINCREMENT guarantees the row
// index is monotonic even across deletes.
const sqliteDDL = `CREATE TABLE IF NOT EXISTS %s (
	row_index INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	data TEXT NOT NULL
)`

// OpenSQLite opens (creating if needed) the embedded store at path. Parent
// directories are created. The connection pool is limited to a single
// connection and all writes are serialized, so concurrent callers always see
// dense, ordered row indices.
func OpenSQLite(path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
		}
	}
	db, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	db.LogMode(false)
	db.DB().SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite store: %w", err)
	}
	for _, name := range []string{tableAgents, tableActions, tableLogs} {
		if err := db.Exec(fmt.Sprintf(sqliteDDL, name)).Error; err != nil {
			db.Close()
			return nil, fmt.Errorf("create table %s: %w", name, err)
		}
	}
	var writeMu sync.Mutex
	return &sqlStore{
		db:      db,
		agents:  &agentTable{newGormTable[models.AgentProfile](db, tableAgents, false, &writeMu)},
		actions: newGormTable[models.ActionRecord](db, tableActions, false, &writeMu),
		logs:    newGormTable[models.Log](db, tableLogs, false, &writeMu),
	}, nil
}
