package storage

// session_audit.go contains SQLiteStore methods for the session audit trail.
// Entries record login, logout, expiry and restoration outcomes.

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Session audit event names.
const (
	AuditLogin         = "login"
	AuditLogout        = "logout"
	AuditExpired       = "expired"
	AuditRestored      = "restored"
	AuditRestoreFailed = "restore_failed"
)

// DefaultAuditRows bounds the audit table.
const DefaultAuditRows = 200

// AuditEntry is one session audit record.
type AuditEntry struct {
	ID     int64
	Event  string
	UID    int64
	Detail string
	At     time.Time
}

// AppendAudit inserts an entry and prunes the oldest beyond maxRows in a
// single transaction. maxRows <= 0 disables pruning.
func (s *SQLiteStore) AppendAudit(entry *AuditEntry, maxRows int) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO session_audit (event, uid, detail, at)
		VALUES (?, ?, ?, ?)
	`
	res, err := tx.Exec(insertQuery,
		entry.Event,
		entry.UID,
		entry.Detail,
		entry.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session audit: %w", err)
	}

	if maxRows > 0 {
		const pruneQuery = `
			DELETE FROM session_audit
			WHERE id NOT IN (SELECT id FROM session_audit ORDER BY id DESC LIMIT ?)
		`
		if _, err := tx.Exec(pruneQuery, maxRows); err != nil {
			return fmt.Errorf("prune session audit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session audit: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	log.Debug().Str("event", entry.Event).Int64("uid", entry.UID).Msg("storage: saved session audit")
	return nil
}

// ListAudit returns audit entries newest first. limit <= 0 returns all.
func (s *SQLiteStore) ListAudit(limit int) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, event, uid, detail, at
		FROM session_audit
		ORDER BY id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session audit: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			entry AuditEntry
			atStr string
		)
		if err := rows.Scan(&entry.ID, &entry.Event, &entry.UID, &entry.Detail, &atStr); err != nil {
			return nil, fmt.Errorf("scan session audit: %w", err)
		}
		entry.At, err = time.Parse(time.RFC3339Nano, atStr)
		if err != nil {
			return nil, fmt.Errorf("parse audit time: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session audit: %w", err)
	}

	return entries, nil
}
