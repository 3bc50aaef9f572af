package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps events per asset id for the lifetime of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]Event)
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.AssetID] = append(s.events[event.AssetID], event)
	return nil
}

func (s *InMemoryStore) ListByAsset(_ context.Context, assetID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[assetID]...), nil
}
