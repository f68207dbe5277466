package state

import "sync"

// GlobalStore holds cross-page state: unread counters and the current room.
type GlobalStore struct {
	mu                   sync.RWMutex
	newFriendUnreadCount int
	currentRoom          Room
}

// NewGlobalStore returns a store with the default room selected.
func NewGlobalStore() *GlobalStore {
	return &GlobalStore{currentRoom: Room{ID: 1, Type: RoomGroup}}
}

// AddNewFriendUnread increases the pending friend request counter.
func (s *GlobalStore) AddNewFriendUnread(n int) {
	s.mu.Lock()
	s.newFriendUnreadCount += n
	s.mu.Unlock()
}

// NewFriendUnread returns the pending friend request counter.
func (s *GlobalStore) NewFriendUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newFriendUnreadCount
}

// ClearNewFriendUnread resets the counter once the contact page is seen.
func (s *GlobalStore) ClearNewFriendUnread() {
	s.mu.Lock()
	s.newFriendUnreadCount = 0
	s.mu.Unlock()
}

// SetCurrentRoom selects the room the user is viewing.
func (s *GlobalStore) SetCurrentRoom(r Room) {
	s.mu.Lock()
	s.currentRoom = r
	s.mu.Unlock()
}

// CurrentRoom returns the room the user is viewing.
func (s *GlobalStore) CurrentRoom() Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRoom
}
