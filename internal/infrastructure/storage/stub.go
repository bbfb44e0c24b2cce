package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
)

// MemoryDocumentStore is an in-process DocumentStore for development and tests.
// Objects only exist once Put has been called.
type MemoryDocumentStore struct {
	mu      sync.RWMutex
	objects map[string]receivable.StoredObject
}

// NewMemoryDocumentStore creates an empty MemoryDocumentStore
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{objects: make(map[string]receivable.StoredObject)}
}

// Ensure MemoryDocumentStore implements receivable.DocumentStore
var _ receivable.DocumentStore = (*MemoryDocumentStore)(nil)

// Put stores data under key and returns its hex SHA-256
func (s *MemoryDocumentStore) Put(_ context.Context, storageKey string, data []byte) (string, error) {
	if storageKey == "" {
		return "", errors.New("storage key is required")
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[storageKey] = receivable.StoredObject{
		Key:       storageKey,
		SizeBytes: int64(len(data)),
		SHA256:    digest,
	}
	return digest, nil
}

// Stat returns the stored object's metadata
func (s *MemoryDocumentStore) Stat(_ context.Context, storageKey string) (*receivable.StoredObject, error) {
	if storageKey == "" {
		return nil, errors.New("storage key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[storageKey]
	if !ok {
		return nil, shared.NewNotFoundError("document_not_found", "document %s not found in storage", storageKey)
	}
	return &obj, nil
}
