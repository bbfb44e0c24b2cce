package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for ledger transactions
type Repository interface {
	// FindTransaction loads a header with its entries ordered by position.
	// Returns a not-found error if no header exists for the txn id.
	FindTransaction(ctx context.Context, tenantID uuid.UUID, txnID string) (*Transaction, error)

	// SaveTransaction writes the header and all entries. Callers run it inside
	// a storage transaction so the group is never partially visible.
	SaveTransaction(ctx context.Context, txn *Transaction) error

	// FindEntriesBySource lists entries linked to a source, for audit lookups
	FindEntriesBySource(ctx context.Context, tenantID uuid.UUID, source Source) ([]Entry, error)
}
