package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/quocanhngo/eventspot/internal/model"
)

// MemoryStore keeps partitions in process memory. It is the default
// backend of the agent and is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]model.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string]model.CacheEntry)}
}

func (s *MemoryStore) Put(_ context.Context, partition string, entries ...model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[partition]
	if !ok {
		p = make(map[string]model.CacheEntry)
		s.partitions[partition] = p
	}
	for _, e := range entries {
		p[e.RequestKey] = copyEntry(e)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, partition, key string) (*model.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.partitions[partition][key]
	if !ok {
		return nil, ErrMiss
	}
	c := copyEntry(e)
	return &c, nil
}

func (s *MemoryStore) Partitions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Len(_ context.Context, partition string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions[partition]), nil
}

func (s *MemoryStore) Drop(_ context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions, partition)
	return nil
}

// copyEntry detaches the stored bytes from the caller's buffers.
func copyEntry(e model.CacheEntry) model.CacheEntry {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	e.Body = body
	if e.Header != nil {
		e.Header = e.Header.Clone()
	}
	return e
}
