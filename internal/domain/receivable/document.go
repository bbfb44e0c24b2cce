package receivable

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SignedDocument links a signed artifact in object storage to a receivable.
// Signing itself happens outside the core.
type SignedDocument struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ReceivableID   uuid.UUID
	IdempotencyKey string
	PayloadHash    string
	DocumentType   string
	StorageKey     string
	SHA256         string
	SizeBytes      int64
	SignedAt       time.Time
	CreatedAt      time.Time
}

// StoredObject describes an object found in the document store
type StoredObject struct {
	Key       string
	SizeBytes int64
	// SHA256 is the lowercase hex digest, empty if the store does not know it
	SHA256 string
}

// DocumentStore looks up signed artifacts in object storage
type DocumentStore interface {
	// Stat returns the object's metadata, or a not-found error if it does not exist
	Stat(ctx context.Context, storageKey string) (*StoredObject, error)
}
