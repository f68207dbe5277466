package state

import (
	"encoding/json"
	"sync"
)

// DefaultHistoryLimit bounds the number of messages kept in memory.
const DefaultHistoryLimit = 500

// ChatStore is the message history, oldest first.
type ChatStore struct {
	mu        sync.RWMutex
	messages  []ChatMessage
	limit     int
	listeners []func(ChatMessage)
}

// NewChatStore creates a history holding at most limit messages.
// A non-positive limit selects DefaultHistoryLimit.
func NewChatStore(limit int) *ChatStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &ChatStore{limit: limit}
}

// Push appends a message, evicting the oldest when full.
func (s *ChatStore) Push(m ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	if over := len(s.messages) - s.limit; over > 0 {
		s.messages = append([]ChatMessage(nil), s.messages[over:]...)
	}
	listeners := append(([]func(ChatMessage))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(m)
	}
}

// OnPush registers fn to be called, outside the lock, after every Push.
func (s *ChatStore) OnPush(fn func(ChatMessage)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// FilterUser removes every message sent by uid.
func (s *ChatStore) FilterUser(uid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.FromUser.UID != uid {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

// UpdateMarkCount applies reaction counter changes to matching messages.
func (s *ChatStore) UpdateMarkCount(items []MarkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		i := s.indexLocked(item.MsgID)
		if i < 0 {
			continue
		}
		mark := &s.messages[i].Message.MessageMark
		switch item.MarkType {
		case MarkLike:
			mark.LikeCount = item.MarkCount
		case MarkDislike:
			mark.DislikeCount = item.MarkCount
		}
	}
}

// UpdateRecall marks one message as recalled and replaces its body.
// It reports whether the message was found.
func (s *ChatStore) UpdateRecall(r Recall) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(r.MsgID)
	if i < 0 {
		return false
	}
	body, _ := json.Marshal(struct {
		RecallUID int64 `json:"recallUid"`
	}{r.RecallUID})
	s.messages[i].Message.Type = MsgRecall
	s.messages[i].Message.Body = body
	return true
}

// Messages returns a copy of the history.
func (s *ChatStore) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatMessage(nil), s.messages...)
}

// Len returns the number of messages held.
func (s *ChatStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *ChatStore) indexLocked(msgID int64) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Message.ID == msgID {
			return i
		}
	}
	return -1
}
