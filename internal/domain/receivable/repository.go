package receivable

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for receivables.
// Methods suffixed ForUpdate take an exclusive row lock held until commit.
type Repository interface {
	// FindByID loads a receivable
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Receivable, error)
	// FindByIDForUpdate loads and locks a receivable
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Receivable, error)
	// FindByIdempotencyKeyForUpdate loads and locks the receivable created under key
	FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*Receivable, error)
	// Create inserts a receivable
	Create(ctx context.Context, r *Receivable) error
	// UpdateStatus persists a status change
	UpdateStatus(ctx context.Context, r *Receivable) error
}

// AllocationRepository defines persistence for allocations
type AllocationRepository interface {
	// CreateBatch inserts allocations created with their receivable
	CreateBatch(ctx context.Context, allocations []*Allocation) error
	// ListByReceivable lists allocations ordered by sequence
	ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*Allocation, error)
	// ListByReceivableForUpdate lists and locks allocations ordered by sequence
	ListByReceivableForUpdate(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*Allocation, error)
	// FindByIDForUpdate loads and locks an allocation
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Allocation, error)
	// UpdateStatus persists a status change
	UpdateStatus(ctx context.Context, a *Allocation) error
}

// AnticipationRepository defines persistence for anticipation requests and their history
type AnticipationRepository interface {
	// Create inserts a request
	Create(ctx context.Context, req *AnticipationRequest) error
	// FindByID loads a request without locking it
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*AnticipationRequest, error)
	// FindByIDForUpdate loads and locks a request
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*AnticipationRequest, error)
	// FindByIdempotencyKeyForUpdate loads and locks the request created under key
	FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*AnticipationRequest, error)
	// ListOpenForUpdate locks open requests for a receivable, optionally scoped to
	// an allocation, ordered oldest-requested first
	ListOpenForUpdate(ctx context.Context, tenantID, receivableID uuid.UUID, allocationID *uuid.UUID) ([]*AnticipationRequest, error)
	// UpdateStatus persists a status change
	UpdateStatus(ctx context.Context, req *AnticipationRequest) error
	// AppendHistory writes a status history row
	AppendHistory(ctx context.Context, h *StatusHistory) error
	// FindHistoryByIdempotencyKeyForUpdate loads and locks the history row written under key
	FindHistoryByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*StatusHistory, error)
	// ListHistory lists a request's history oldest first
	ListHistory(ctx context.Context, tenantID, requestID uuid.UUID) ([]*StatusHistory, error)
}

// SettlementRepository defines persistence for payment settlements
type SettlementRepository interface {
	// FindByIdempotencyKeyForUpdate loads and locks the settlement written under key
	FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*PaymentSettlement, error)
	// InsertIfAbsent inserts unless (tenant, idempotency_key) exists; reports whether it wrote
	InsertIfAbsent(ctx context.Context, s *PaymentSettlement) (bool, error)
	// ListByAllocation lists settlements paid against an allocation
	ListByAllocation(ctx context.Context, tenantID, allocationID uuid.UUID) ([]*PaymentSettlement, error)
	// ListByReceivable lists settlements paid against a receivable
	ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*PaymentSettlement, error)
	// CreateEntries inserts settlement entries
	CreateEntries(ctx context.Context, entries []*SettlementEntry) error
	// ListEntriesBySettlement lists a settlement's entries
	ListEntriesBySettlement(ctx context.Context, tenantID, settlementID uuid.UUID) ([]*SettlementEntry, error)
	// ListEntriesByRequests lists entries settled against any of the requests
	ListEntriesByRequests(ctx context.Context, tenantID uuid.UUID, requestIDs []uuid.UUID) ([]*SettlementEntry, error)
}

// DocumentRepository defines persistence for signed document attachments
type DocumentRepository interface {
	// FindByIdempotencyKeyForUpdate loads and locks the attachment written under key
	FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*SignedDocument, error)
	// Create inserts an attachment
	Create(ctx context.Context, doc *SignedDocument) error
	// ListByReceivable lists a receivable's attachments
	ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*SignedDocument, error)
}
