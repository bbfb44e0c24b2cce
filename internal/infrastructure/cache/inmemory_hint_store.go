package cache

import (
	"context"
	"sync"
	"time"

	"github.com/anticipa/backend/internal/application/idempotency"
)

// hintEntry is a stored payload hash with its expiration
type hintEntry struct {
	hash      string
	expiresAt time.Time
}

// InMemoryHintStore implements idempotency.HintStore using an in-memory map.
// Hints are not shared across instances, which only costs a database round
// trip on the conflict path.
type InMemoryHintStore struct {
	mu        sync.RWMutex
	entries   map[string]hintEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryHintStore creates a store and starts a goroutine that sweeps
// expired hints every cleanupInterval
func NewInMemoryHintStore(cleanupInterval time.Duration) *InMemoryHintStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	store := &InMemoryHintStore{
		entries:  make(map[string]hintEntry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop(cleanupInterval)

	return store
}

// Get returns the hash recorded for key, if present and not expired
func (s *InMemoryHintStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[key]
	if !exists || !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.hash, true, nil
}

// Put records hash for key unless a live hint already exists
func (s *InMemoryHintStore) Put(_ context.Context, key, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, exists := s.entries[key]; exists && now.Before(e.expiresAt) {
		return nil
	}
	s.entries[key] = hintEntry{hash: hash, expiresAt: now.Add(ttl)}
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryHintStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryHintStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired entries from the store
func (s *InMemoryHintStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries in the store (for testing/monitoring)
func (s *InMemoryHintStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure InMemoryHintStore implements idempotency.HintStore
var _ idempotency.HintStore = (*InMemoryHintStore)(nil)
