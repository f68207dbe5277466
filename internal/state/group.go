package state

import (
	"sort"
	"sync"
)

// GroupStore is the member roster of the current group and its online count.
type GroupStore struct {
	mu        sync.RWMutex
	members   map[int64]Member
	onlineNum int
}

// NewGroupStore returns an empty roster.
func NewGroupStore() *GroupStore {
	return &GroupStore{members: make(map[int64]Member)}
}

// SetOnlineNum records the server's online member count.
func (s *GroupStore) SetOnlineNum(n int) {
	s.mu.Lock()
	s.onlineNum = n
	s.mu.Unlock()
}

// OnlineNum returns the last reported online count.
func (s *GroupStore) OnlineNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onlineNum
}

// BatchUpdateStatus applies presence changes. Unknown members are added.
func (s *GroupStore) BatchUpdateStatus(changes []Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		m, ok := s.members[c.UID]
		if !ok {
			s.members[c.UID] = c
			continue
		}
		m.ActiveStatus = c.ActiveStatus
		if c.LastOptTime != 0 {
			m.LastOptTime = c.LastOptTime
		}
		if c.Name != "" {
			m.Name = c.Name
		}
		if c.Avatar != "" {
			m.Avatar = c.Avatar
		}
		s.members[c.UID] = m
	}
}

// AddMember inserts or replaces a roster entry.
func (s *GroupStore) AddMember(m Member) {
	s.mu.Lock()
	s.members[m.UID] = m
	s.mu.Unlock()
}

// FilterUser removes uid from the roster.
func (s *GroupStore) FilterUser(uid int64) {
	s.mu.Lock()
	delete(s.members, uid)
	s.mu.Unlock()
}

// Member looks up one roster entry.
func (s *GroupStore) Member(uid int64) (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[uid]
	return m, ok
}

// Members returns the roster ordered by uid.
func (s *GroupStore) Members() []Member {
	s.mu.RLock()
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}
