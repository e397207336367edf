package rateLimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count      int
	last       time.Time
	resetAfter time.Duration
}

// MemoryStore хранит счетчики в памяти процесса. Не разделяется между
// инстансами — для мульти-инстанс деплоя использовать redis реализацию.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return Attempt{}, nil
	}

	return Attempt{Count: e.count, LastAttempt: e.last}, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, resetAfter time.Duration) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		e = &memoryEntry{}
		s.entries[key] = e
	}

	e.count++
	e.last = now
	e.resetAfter = resetAfter

	return Attempt{Count: e.count, LastAttempt: e.last}, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.now().Sub(e.last) > e.resetAfter
}

// * Run периодически выкидывает протухшие счетчики, иначе карта растет бесконечно.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *MemoryStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, key)
		}
	}
}
