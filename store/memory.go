package store

import (
	"context"
	"sort"
	"sync"

	"messageboard/models"
)

// MemoryStore keeps messages in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]models.Message)}
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[msg.ID]; !ok {
		s.byID[msg.ID] = msg
	}
	return nil
}

func (s *MemoryStore) GetAllMessages(ctx context.Context) ([]models.Message, error) {
	return s.GetRecentMessages(ctx, 0)
}

func (s *MemoryStore) GetRecentMessages(_ context.Context, limit int) ([]models.Message, error) {
	s.mu.RLock()
	out := make([]models.Message, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }
