// Package session owns the authenticated flag and the signed-in profile, and
// re-establishes a session from a stored credential at startup.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	apperrors "github.com/chatlink/client/internal/errors"
	"github.com/chatlink/client/internal/state"
	"github.com/chatlink/client/internal/storage"
)

// Credentials persists the bearer token and the cached profile.
type Credentials interface {
	GetToken() (string, bool, error)
	LoadProfile() (state.Profile, bool, error)
	SaveProfile(p state.Profile) error
	SaveSession(token string, p state.Profile) error
	ClearSession() error
}

// ProfileFetcher loads the profile owned by a credential.
type ProfileFetcher interface {
	UserInfo(ctx context.Context, token string) (state.Profile, error)
}

// Navigator changes the current route.
type Navigator interface {
	Push(path string)
}

// Auditor records session transitions. Optional.
type Auditor interface {
	AppendAudit(entry *storage.AuditEntry, maxRows int) error
}

// Config holds the Store's collaborators.
type Config struct {
	Credentials Credentials    // required
	Fetcher     ProfileFetcher // required
	Navigator   Navigator      // required
	Auditor     Auditor        // may be nil
	Logger      zerolog.Logger
}

// Store is the session store. The authenticated flag is true only while a
// credential is stored; every path that removes the credential clears the
// flag in the same call.
type Store struct {
	creds   Credentials
	fetcher ProfileFetcher
	nav     Navigator
	audit   Auditor
	logger  zerolog.Logger

	mu            sync.RWMutex
	authenticated bool
	profile       state.Profile
}

// New creates a Store and loads the cached profile. The store starts
// unauthenticated; Restore decides whether a stored credential is usable.
func New(cfg Config) *Store {
	s := &Store{
		creds:   cfg.Credentials,
		fetcher: cfg.Fetcher,
		nav:     cfg.Navigator,
		audit:   cfg.Auditor,
		logger:  cfg.Logger.With().Str("component", "session").Logger(),
	}
	if p, ok, err := s.creds.LoadProfile(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to load cached profile")
	} else if ok {
		s.profile = p
	}
	return s
}

// IsAuthenticated reports whether the session is signed in.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Profile returns the signed-in user's profile, possibly partial.
func (s *Store) Profile() state.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Token returns the stored credential.
func (s *Store) Token() (string, bool) {
	token, ok, err := s.creds.GetToken()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read credential")
		return "", false
	}
	return token, ok
}

// Login persists the credential and profile and marks the session
// authenticated. The profile is merged into the current one.
func (s *Store) Login(token string, profile state.Profile) error {
	if token == "" {
		return apperrors.MissingToken()
	}

	s.mu.Lock()
	merged := s.profile.Merge(profile)
	if err := s.creds.SaveSession(token, merged); err != nil {
		s.mu.Unlock()
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "failed to save session", err)
	}
	s.authenticated = true
	s.profile = merged
	s.mu.Unlock()

	s.record(storage.AuditLogin, merged.UID, "")
	s.logger.Info().Int64("uid", merged.UID).Str("name", merged.Name).Msg("session authenticated")
	return nil
}

// Expire clears the credential, profile and authenticated flag after the
// server rejected the credential.
func (s *Store) Expire() error {
	return s.clear(storage.AuditExpired, "")
}

// Logout clears the session at the user's request.
func (s *Store) Logout() error {
	return s.clear(storage.AuditLogout, "")
}

// RefreshProfile fetches the profile for the stored credential and merges it
// into the current one. The result is dropped if the credential was cleared
// or replaced while the fetch was in flight.
func (s *Store) RefreshProfile(ctx context.Context) error {
	token, ok := s.Token()
	if !ok {
		return apperrors.New(apperrors.CodeSessionNoCredential, "no stored credential")
	}

	fetched, err := s.fetcher.UserInfo(ctx, token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if current, ok := s.Token(); !ok || current != token {
		s.mu.Unlock()
		s.logger.Info().Msg("credential changed during profile fetch, dropping result")
		return apperrors.New(apperrors.CodeSessionSuperseded, "credential changed during profile fetch")
	}
	s.profile = s.profile.Merge(fetched)
	merged := s.profile
	s.mu.Unlock()

	if err := s.creds.SaveProfile(merged); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache profile")
	}
	return nil
}

// Restore re-establishes the session from a stored credential. It returns
// nil without doing anything when no credential is stored or the session is
// already authenticated.
//
// The session is marked authenticated before the profile fetch; a failed
// fetch purges the credential and navigates to the login route.
func (s *Store) Restore(ctx context.Context) error {
	token, ok := s.Token()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.authenticated {
		s.mu.Unlock()
		return nil
	}
	s.authenticated = true
	s.mu.Unlock()

	if err := s.RefreshProfile(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("session restoration failed")
		// An expiry, logout or login during the fetch already decided the
		// session; the stored credential is no longer ours to purge.
		if current, ok := s.Token(); !ok || current != token {
			return apperrors.RestoreFailed(err)
		}
		if clearErr := s.clear(storage.AuditRestoreFailed, apperrors.GetCode(err)); clearErr != nil {
			s.logger.Error().Err(clearErr).Msg("failed to purge credential")
		}
		s.nav.Push(state.RouteLogin)
		return apperrors.RestoreFailed(err)
	}

	profile := s.Profile()
	s.record(storage.AuditRestored, profile.UID, "")
	s.logger.Info().Int64("uid", profile.UID).Msg("session restored")
	return nil
}

func (s *Store) clear(event, detail string) error {
	s.mu.Lock()
	uid := s.profile.UID
	s.authenticated = false
	s.profile = state.Profile{}
	err := s.creds.ClearSession()
	s.mu.Unlock()

	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "failed to clear session", err)
	}
	s.record(event, uid, detail)
	s.logger.Info().Str("event", event).Msg("session cleared")
	return nil
}

func (s *Store) record(event string, uid int64, detail string) {
	if s.audit == nil {
		return
	}
	entry := &storage.AuditEntry{Event: event, UID: uid, Detail: detail}
	if err := s.audit.AppendAudit(entry, storage.DefaultAuditRows); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to record session audit")
	}
}
