// Package fallback provides the local persisted message store consulted
// when both network and cache are exhausted. The sync layer treats it as
// read-only; the host application persists conversations into it.
package fallback

import (
	"sync"
	"time"
)

// Message is a single persisted conversation message in preview shape.
type Message struct {
	Type      string    `json:"type"` // "user" or "agent"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
}

// Store supplies best-effort prior messages keyed by conversation id.
type Store interface {
	// Messages returns persisted messages for a conversation and whether
	// any were found.
	Messages(conversationID string) ([]Message, bool)
}

// MemoryStore is an in-memory Store implementation, used as the default
// and seeded directly in tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]Message),
	}
}

// Seed replaces the persisted messages for a conversation.
func (s *MemoryStore) Seed(conversationID string, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append([]Message(nil), messages...)
}

// Messages returns persisted messages for a conversation.
func (s *MemoryStore) Messages(conversationID string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.conversations[conversationID]
	if !ok || len(messages) == 0 {
		return nil, false
	}
	return append([]Message(nil), messages...), true
}

// Empty is a Store with no data. GetPreview callers receive an explicit
// empty preview rather than an error when this is the configured store.
type Empty struct{}

// Messages always reports no data.
func (Empty) Messages(string) ([]Message, bool) {
	return nil, false
}
