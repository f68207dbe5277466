package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add a migration.
const currentSchemaVersion = 2

// initSchema brings the database up to currentSchemaVersion.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	migrations := []func() error{s.migrateToV1, s.migrateToV2}
	for i, migrate := range migrations {
		target := i + 1
		if version >= target {
			continue
		}
		if err := migrate(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", target, err)
		}
	}

	return nil
}

func (s *SQLiteStore) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("check schema version: %w", err)
	}
	return version, nil
}

// migrateToV1 creates the key/value table holding the credential and the
// cached profile.
func (s *SQLiteStore) migrateToV1() error {
	log.Info().Msg("storage: applying migration to schema version 1")

	const kvTable = `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(kvTable); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}

	return s.recordMigration(1)
}

// migrateToV2 adds the session audit table.
func (s *SQLiteStore) migrateToV2() error {
	log.Info().Msg("storage: applying migration to schema version 2")

	const auditTable = `
		CREATE TABLE IF NOT EXISTS session_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			uid INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_audit_at ON session_audit(at);
	`

	if _, err := s.db.Exec(auditTable); err != nil {
		return fmt.Errorf("create session_audit table: %w", err)
	}

	return s.recordMigration(2)
}

func (s *SQLiteStore) recordMigration(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}
