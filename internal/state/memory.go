package state

import (
	"context"
	"errors"
	"sync"

	"github.com/signalpilot/signalpilot/internal/action"
)

var ErrNotFound = errors.New("not found")

// WorkingMemory keeps the action results of each conversation in the
// order they were produced.
type WorkingMemory interface {
	Record(ctx context.Context, conversationID string, res action.Result) error
	Results(ctx context.Context, conversationID string) ([]action.Result, error)
	// Latest returns the newest result of actionType, or ErrNotFound.
	Latest(ctx context.Context, conversationID, actionType string) (action.Result, error)
	Clear(ctx context.Context, conversationID string) error
}

// MemoryStore is the in-process WorkingMemory.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]action.Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string][]action.Result)}
}

func (s *MemoryStore) Record(_ context.Context, conversationID string, res action.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[conversationID] = append(s.results[conversationID], res)
	return nil
}

func (s *MemoryStore) Results(_ context.Context, conversationID string) ([]action.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.results[conversationID]
	out := make([]action.Result, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) Latest(_ context.Context, conversationID, actionType string) (action.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.results[conversationID]
	for i := len(src) - 1; i >= 0; i-- {
		if src[i].ActionType == actionType {
			return src[i], nil
		}
	}
	return action.Result{}, ErrNotFound
}

func (s *MemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, conversationID)
	return nil
}
