package chat

import (
	"sync"

	"github.com/zhouzirui/z-tavern/moodchat/internal/metrics"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/chat"
)

// Store holds the ordered, append-only message history of one session.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewStore bootstraps an empty in-memory history.
func NewStore() *Store {
	return &Store{messages: make([]chat.Message, 0, 16)}
}

// Append inserts a message at the tail. It never fails and never reorders.
func (s *Store) Append(message chat.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()

	metrics.Messages.WithLabelValues(string(message.Sender)).Inc()
}

// Snapshot returns a copy of the history in arrival order.
func (s *Store) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len reports the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
