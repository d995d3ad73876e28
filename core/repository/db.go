package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB wraps the SQL connection pool used by the SQL job repository.
type DB struct {
	*sql.DB
	Driver string
}

// NewDB opens a database for the given driver ("postgres" or "sqlite") and
// verifies the connection.
func NewDB(driver, dsn string) (*DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// One writer keeps conditional updates serialized.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Driver: driver}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS job_records (
	command_id           TEXT PRIMARY KEY,
	job_type             TEXT NOT NULL,
	model_id             TEXT NOT NULL,
	stage_artifact_uri   TEXT NOT NULL,
	follow_up_format     TEXT NOT NULL DEFAULT '',
	stage                TEXT NOT NULL,
	derived_artifact_uri TEXT,
	follow_up_command_id TEXT,
	follow_up_claim      TEXT,
	follow_up_claimed_at TIMESTAMP,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
)`

// Migrate creates the job_records table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate job_records: %w", err)
	}
	return nil
}
