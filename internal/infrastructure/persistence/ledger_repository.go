package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormLedgerRepository implements ledger.Repository using GORM.
// Headers and entries are immutable once written.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx returns a new repository with the given transaction
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: tx}
}

// FindTransaction loads a header with its entries ordered by position
func (r *GormLedgerRepository) FindTransaction(ctx context.Context, tenantID uuid.UUID, txnID string) (*ledger.Transaction, error) {
	db := r.db.WithContext(ctx)

	var header models.LedgerTransactionModel
	if err := db.Where("tenant_id = ? AND txn_id = ?", tenantID, txnID).First(&header).Error; err != nil {
		return nil, notFound(err, "ledger_txn_not_found", "ledger transaction %s not found", txnID)
	}

	var entries []models.LedgerEntryModel
	if err := db.
		Where("tenant_id = ? AND txn_id = ?", tenantID, txnID).
		Order("entry_position ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return header.ToDomain(entries)
}

// SaveTransaction writes the header and its entries
func (r *GormLedgerRepository) SaveTransaction(ctx context.Context, txn *ledger.Transaction) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(models.LedgerTransactionModelFromDomain(txn)).Error; err != nil {
		return err
	}
	if len(txn.Entries) == 0 {
		return nil
	}
	rows := make([]models.LedgerEntryModel, len(txn.Entries))
	for i := range txn.Entries {
		rows[i] = models.LedgerEntryModelFromDomain(txn.Entries[i])
	}
	return db.Create(&rows).Error
}

// FindEntriesBySource lists entries linked to a source
func (r *GormLedgerRepository) FindEntriesBySource(ctx context.Context, tenantID uuid.UUID, source ledger.Source) ([]ledger.Entry, error) {
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND source_type = ? AND source_id = ?", tenantID, source.Kind, source.ID).
		Order("posted_at ASC, txn_id ASC, entry_position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, len(rows))
	for i := range rows {
		entry, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out[i] = entry
	}
	return out, nil
}

var _ ledger.Repository = (*GormLedgerRepository)(nil)
