package session

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps mappings in process memory. It is not durable and is
// meant for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]string)}
}

func (s *MemoryStore) Lookup(_ context.Context, senderID string) (string, bool, error) {
	if strings.TrimSpace(senderID) == "" {
		return "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	contextID, ok := s.sessions[senderID]
	return contextID, ok, nil
}

func (s *MemoryStore) Store(_ context.Context, senderID, contextID string) error {
	if err := validateKeys(senderID, contextID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[senderID] = contextID
	return nil
}

// Len returns the number of stored mappings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
