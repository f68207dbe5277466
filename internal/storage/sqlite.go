// Package storage persists the client's credential, cached profile and
// session audit trail in a local SQLite database.
package storage

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is pure Go, so the binary builds without CGO.
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the credential and profile stores on SQLite.
// It creates the database and tables on first use and supports concurrent
// access through internal locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations.
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// applies pending migrations. Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Info().Str("path", path).Msg("storage: opening database")

	// busy_timeout covers the CLI logout command racing a running client.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each :memory: connection is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info().Int("schema_version", currentSchemaVersion).Msg("storage: database ready")
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Debug().Msg("storage: closing database")
	return s.db.Close()
}
