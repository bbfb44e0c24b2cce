package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/application/txscope"
	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/event"
)

// GormTransactionScope implements txscope.TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db            *gorm.DB
	sessionTenant bool
}

// ScopeOption configures a GormTransactionScope
type ScopeOption func(*GormTransactionScope)

// WithSessionTenant publishes the context tenant as app.tenant_id for the
// duration of each transaction, for row-level security policies to read.
// PostgreSQL only.
func WithSessionTenant() ScopeOption {
	return func(s *GormTransactionScope) {
		s.sessionTenant = true
	}
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, opts ...ScopeOption) *GormTransactionScope {
	s := &GormTransactionScope{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos txscope.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.sessionTenant {
			if tenantID, ok := txscope.TenantFrom(ctx); ok {
				if err := SetSessionTenant(tx, tenantID); err != nil {
					return err
				}
			}
		}
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// SetSessionTenant sets app.tenant_id local to the current transaction
func SetSessionTenant(tx *gorm.DB, tenantID uuid.UUID) error {
	if err := tx.Exec("SELECT set_config('app.tenant_id', ?, true)", tenantID.String()).Error; err != nil {
		return fmt.Errorf("failed to set session tenant: %w", err)
	}
	return nil
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) Receivables() receivable.Repository {
	return NewGormReceivableRepository(r.tx)
}

func (r *gormTransactionalRepositories) Allocations() receivable.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

func (r *gormTransactionalRepositories) Anticipations() receivable.AnticipationRepository {
	return NewGormAnticipationRepository(r.tx)
}

func (r *gormTransactionalRepositories) Settlements() receivable.SettlementRepository {
	return NewGormSettlementRepository(r.tx)
}

func (r *gormTransactionalRepositories) Documents() receivable.DocumentRepository {
	return NewGormDocumentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Events() receivable.EventRepository {
	return NewGormReceivableEventRepository(r.tx)
}

func (r *gormTransactionalRepositories) Ledger() ledger.Repository {
	return NewGormLedgerRepository(r.tx)
}

func (r *gormTransactionalRepositories) Outbox() shared.OutboxRepository {
	return event.NewGormOutboxRepository(r.tx)
}

func (r *gormTransactionalRepositories) Audit() audit.Repository {
	return NewGormAuditRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ txscope.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements Repositories
var _ txscope.Repositories = (*gormTransactionalRepositories)(nil)
