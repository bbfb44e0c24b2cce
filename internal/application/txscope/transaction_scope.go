// Package txscope defines the unit of work every mutation runs in.
package txscope

import (
	"context"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
)

// TransactionScope provides transactional access to the settlement repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Repositories provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type Repositories interface {
	Receivables() receivable.Repository
	Allocations() receivable.AllocationRepository
	Anticipations() receivable.AnticipationRepository
	Settlements() receivable.SettlementRepository
	Documents() receivable.DocumentRepository
	Events() receivable.EventRepository
	Ledger() ledger.Repository
	Outbox() shared.OutboxRepository
	Audit() audit.Repository
}

type tenantKey struct{}

// WithTenant records the tenant a unit of work acts for. Storage backends that
// enforce tenant isolation per session read it when a transaction opens.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFrom returns the tenant recorded by WithTenant
func TenantFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
