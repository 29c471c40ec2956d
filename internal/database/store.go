package database

import (
	"github.com/jinzhu/gorm"

	"bazaar/internal/models"
)

// Logical table names. On PostgreSQL they are qualified with the experiment
// schema; on SQLite the database file itself is the namespace.
const (
	tableAgents  = "agents"
	tableActions = "actions"
	tableLogs    = "logs"
)

// agentTable adds Upsert on top of the shared table implementation.
type agentTable struct {
	*gormTable[models.AgentProfile]
}

// Upsert implements AgentTable.
func (t *agentTable) Upsert(row AgentRow) (AgentRow, error) {
	return t.upsert(row)
}

// sqlStore is the Store shared by both backends.
type sqlStore struct {
	db      *gorm.DB
	agents  *agentTable
	actions *gormTable[models.ActionRecord]
	logs    *gormTable[models.Log]
}

func (s *sqlStore) Agents() AgentTable                  { return s.agents }
func (s *sqlStore) Actions() Table[models.ActionRecord] { return s.actions }
func (s *sqlStore) Logs() Table[models.Log]             { return s.logs }
func (s *sqlStore) Close() error                        { return s.db.Close() }
