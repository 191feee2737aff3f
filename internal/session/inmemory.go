package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps transcripts and metadata in process memory. It is the
// default when no database is configured, and the backend used by tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	metadata map[string]Metadata
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[string][]Message),
		metadata: make(map[string]Metadata),
	}
}

func (s *InMemoryStore) SaveMessage(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[sessionID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Message, limit)
	copy(out, list[len(list)-limit:])
	return out, nil
}

func (s *InMemoryStore) SearchMessages(_ context.Context, sessionID, query string, limit int) ([]string, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, msg := range s.messages[sessionID] {
		if query == "" || strings.Contains(strings.ToLower(msg.Content), query) {
			out = append(out, msg.Content)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) HasSystemLog(_ context.Context, sessionID, content string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.messages[sessionID] {
		if msg.Role == RoleSystem && msg.Content == content {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) SaveMetadata(_ context.Context, sessionID string, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.PendingPlan != nil {
		meta.PendingPlan = meta.PendingPlan.Clone()
	}
	s.metadata[sessionID] = meta
	return nil
}

func (s *InMemoryStore) LoadMetadata(_ context.Context, sessionID string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta := s.metadata[sessionID]
	if meta.PendingPlan != nil {
		meta.PendingPlan = meta.PendingPlan.Clone()
	}
	return meta, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
