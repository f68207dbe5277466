package storage

// credentials.go contains SQLiteStore methods for the bearer token and the
// cached profile. Both live in the kv table.

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlink/client/internal/state"
)

// kv keys.
const (
	keyToken   = "token"
	keyProfile = "profile"
)

// GetToken returns the stored credential. ok is false when none is stored.
func (s *SQLiteStore) GetToken() (token string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok, err := s.getLocked(keyToken)
	if err != nil {
		return "", false, fmt.Errorf("get token: %w", err)
	}
	if value == "" {
		return "", false, nil
	}
	return value, ok, nil
}

// SetToken stores the credential. An empty token is rejected.
func (s *SQLiteStore) SetToken(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putLocked(s.db, keyToken, token); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	log.Debug().Msg("storage: saved token")
	return nil
}

// ClearToken removes the credential. Clearing an absent token is not an error.
func (s *SQLiteStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", keyToken); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	log.Debug().Msg("storage: cleared token")
	return nil
}

// LoadProfile returns the cached profile. ok is false when none is cached.
func (s *SQLiteStore) LoadProfile() (profile state.Profile, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok, err := s.getLocked(keyProfile)
	if err != nil {
		return state.Profile{}, false, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		return state.Profile{}, false, nil
	}
	if err := json.Unmarshal([]byte(value), &profile); err != nil {
		return state.Profile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return profile, true, nil
}

// HasProfile reports whether a profile is cached.
func (s *SQLiteStore) HasProfile() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok, err := s.getLocked(keyProfile)
	if err != nil {
		return false, fmt.Errorf("check profile: %w", err)
	}
	return ok, nil
}

// SaveProfile caches the profile, replacing any previous one.
func (s *SQLiteStore) SaveProfile(profile state.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putLocked(s.db, keyProfile, string(data)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ClearProfile removes the cached profile.
func (s *SQLiteStore) ClearProfile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", keyProfile); err != nil {
		return fmt.Errorf("clear profile: %w", err)
	}
	return nil
}

// SaveSession stores the credential and profile in one transaction.
func (s *SQLiteStore) SaveSession(token string, profile state.Profile) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.putLocked(tx, keyToken, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := s.putLocked(tx, keyProfile, string(data)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}

	log.Info().Int64("uid", profile.UID).Msg("storage: saved session")
	return nil
}

// ClearSession removes the credential and the cached profile together.
func (s *SQLiteStore) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM kv WHERE key IN (?, ?)", keyToken, keyProfile)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	log.Info().Msg("storage: cleared session")
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) putLocked(db execer, key, value string) error {
	const query = `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := db.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) getLocked(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
