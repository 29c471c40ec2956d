package database

import (
	"fmt"
	"regexp"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"

	"bazaar/internal/models"
)

// SchemaMode controls how OpenPostgres treats the experiment schema.
type SchemaMode string

const (
	// SchemaExisting uses the schema as-is, creating it if missing.
	SchemaExisting SchemaMode = "existing"
	// SchemaOverride drops any existing schema and recreates it empty.
	SchemaOverride SchemaMode = "override"
	// SchemaCreateNew fails if the schema already exists.
	SchemaCreateNew SchemaMode = "create_new"
)

// Schema names are interpolated into DDL, so only a conservative identifier
// shape is accepted.
var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// pgDDL creates one append-only table inside the experiment schema. IDENTITY
// assigns the row index; the sequence is advanced atomically by the server.
const pgDDL = `CREATE TABLE IF NOT EXISTS %s.%s (
	row_index BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
)`

// OpenPostgres connects to the networked store identified by dsn and prepares
// the experiment schema according to mode.
func OpenPostgres(dsn, schema string, mode SchemaMode) (Store, error) {
	if !schemaNamePattern.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	db.LogMode(false)
	if err := prepareSchema(db, schema, mode); err != nil {
		db.Close()
		return nil, err
	}
	for _, name := range []string{tableAgents, tableActions, tableLogs} {
		if err := db.Exec(fmt.Sprintf(pgDDL, schema, name)).Error; err != nil {
			db.Close()
			return nil, fmt.Errorf("create table %s.%s: %w", schema, name, err)
		}
	}
	qualified := func(name string) string { return schema + "." + name }
	return &sqlStore{
		db:      db,
		agents:  &agentTable{newGormTable[models.AgentProfile](db, qualified(tableAgents), true, nil)},
		actions: newGormTable[models.ActionRecord](db, qualified(tableActions), true, nil),
		logs:    newGormTable[models.Log](db, qualified(tableLogs), true, nil),
	}, nil
}

func prepareSchema(db *gorm.DB, schema string, mode SchemaMode) error {
	switch mode {
	case SchemaExisting, "":
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("ensure schema %s: %w", schema, err)
		}
	case SchemaOverride:
		if err := db.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)).Error; err != nil {
			return fmt.Errorf("drop schema %s: %w", schema, err)
		}
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema)).Error; err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	case SchemaCreateNew:
		var count int
		err := db.Raw(
			"SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", schema,
		).Row().Scan(&count)
		if err != nil {
			return fmt.Errorf("check schema %s: %w", schema, err)
		}
		if count > 0 {
			return fmt.Errorf("schema %s already exists", schema)
		}
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema)).Error; err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	default:
		return fmt.Errorf("unknown schema mode %q", mode)
	}
	return nil
}
