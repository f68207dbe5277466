package state

import "sync"

// LoginStore tracks the login challenge and flow status.
type LoginStore struct {
	mu     sync.RWMutex
	qrCode string
	status LoginStatus
}

// NewLoginStore returns a store in LoginInit with no challenge.
func NewLoginStore() *LoginStore {
	return &LoginStore{}
}

// SetQrCode records the most recent login challenge URL.
func (s *LoginStore) SetQrCode(url string) {
	s.mu.Lock()
	s.qrCode = url
	s.mu.Unlock()
}

// QrCode returns the most recent challenge URL, or "" if none was requested.
func (s *LoginStore) QrCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qrCode
}

// SetStatus updates the login status.
func (s *LoginStore) SetStatus(status LoginStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the login status.
func (s *LoginStore) Status() LoginStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
