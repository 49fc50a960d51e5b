package fallback

import (
	"encoding/json"
	"os"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
)

// snapshot is the on-disk layout of a persisted conversation snapshot.
type snapshot struct {
	Conversations map[string][]Message `json:"conversations"`
}

// FileStore reads a JSON snapshot of persisted conversations once at
// construction. It never re-reads or writes the file.
type FileStore struct {
	store *MemoryStore
}

// NewFileStore loads a conversation snapshot from path.
func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "fallback", "NewFileStore", "read snapshot")
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.WrapInvalid(err, "fallback", "NewFileStore", "decode snapshot")
	}

	store := NewMemoryStore()
	for id, messages := range snap.Conversations {
		store.Seed(id, messages)
	}

	return &FileStore{store: store}, nil
}

// Messages returns persisted messages for a conversation.
func (s *FileStore) Messages(conversationID string) ([]Message, bool) {
	return s.store.Messages(conversationID)
}
