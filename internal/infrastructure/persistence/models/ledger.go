package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/shared"
)

// LedgerTransactionModel is the persistence model for a ledger transaction header
type LedgerTransactionModel struct {
	TenantID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TxnID            string            `gorm:"type:varchar(64);primaryKey"`
	SourceType       ledger.SourceKind `gorm:"type:varchar(64);not null;index:idx_ledger_txn_source,priority:1"`
	SourceID         uuid.UUID         `gorm:"type:uuid;not null;index:idx_ledger_txn_source,priority:2"`
	PaymentReference *string           `gorm:"type:varchar(255)"`
	EntryCount       int               `gorm:"not null"`
	PayloadHash      string            `gorm:"type:varchar(64);not null"`
	PostedAt         time.Time         `gorm:"not null"`
	CreatedAt        time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerTransactionModel) TableName() string {
	return "ledger_transactions"
}

// ToDomain converts the header and its entries to a domain Transaction. An
// entry whose stored metadata cannot be decoded fails the whole conversion.
func (m *LedgerTransactionModel) ToDomain(entries []LedgerEntryModel) (*ledger.Transaction, error) {
	txn := &ledger.Transaction{
		TxnID:            m.TxnID,
		TenantID:         m.TenantID,
		Source:           ledger.Source{Kind: m.SourceType, ID: m.SourceID},
		PaymentReference: derefString(m.PaymentReference),
		EntryCount:       m.EntryCount,
		PayloadHash:      m.PayloadHash,
		PostedAt:         m.PostedAt.UTC(),
		CreatedAt:        m.CreatedAt,
		Entries:          make([]ledger.Entry, len(entries)),
	}
	for i := range entries {
		entry, err := entries[i].ToDomain()
		if err != nil {
			return nil, err
		}
		txn.Entries[i] = entry
	}
	return txn, nil
}

// LedgerTransactionModelFromDomain creates a header model from a domain Transaction
func LedgerTransactionModelFromDomain(t *ledger.Transaction) *LedgerTransactionModel {
	return &LedgerTransactionModel{
		TenantID:         t.TenantID,
		TxnID:            t.TxnID,
		SourceType:       t.Source.Kind,
		SourceID:         t.Source.ID,
		PaymentReference: nullableString(t.PaymentReference),
		EntryCount:       t.EntryCount,
		PayloadHash:      t.PayloadHash,
		PostedAt:         t.PostedAt,
		CreatedAt:        t.CreatedAt,
	}
}

// LedgerEntryModel is the persistence model for one ledger line
type LedgerEntryModel struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_entries_position,priority:1"`
	TxnID            string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_ledger_entries_position,priority:2"`
	EntryPosition    int                `gorm:"not null;uniqueIndex:idx_ledger_entries_position,priority:3"`
	TxnEntryCount    int                `gorm:"not null"`
	AccountCode      ledger.AccountCode `gorm:"type:varchar(64);not null;index"`
	EntrySide        ledger.EntrySide   `gorm:"type:varchar(6);not null"`
	Amount           decimal.Decimal    `gorm:"type:numeric(20,2);not null"`
	CounterpartyID   *uuid.UUID         `gorm:"type:uuid"`
	SourceType       ledger.SourceKind  `gorm:"type:varchar(64);not null;index:idx_ledger_entries_source,priority:1"`
	SourceID         uuid.UUID          `gorm:"type:uuid;not null;index:idx_ledger_entries_source,priority:2"`
	PaymentReference *string            `gorm:"type:varchar(255)"`
	MetadataJSON     string             `gorm:"column:metadata;type:jsonb;not null"`
	PostedAt         time.Time          `gorm:"not null"`
	CreatedAt        time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain Entry. Unreadable
// metadata is reported as ledger_integrity_violation.
func (m *LedgerEntryModel) ToDomain() (ledger.Entry, error) {
	metadata, err := decodeJSON(m.MetadataJSON)
	if err != nil {
		return ledger.Entry{}, shared.NewInvariantViolation("ledger_integrity_violation",
			"ledger entry %s of txn %s has unreadable metadata: %v", m.ID, m.TxnID, err).WithCause(err)
	}
	return ledger.Entry{
		ID:               m.ID,
		TenantID:         m.TenantID,
		TxnID:            m.TxnID,
		AccountCode:      m.AccountCode,
		Side:             m.EntrySide,
		Amount:           money(m.Amount),
		CounterpartyID:   m.CounterpartyID,
		EntryPosition:    m.EntryPosition,
		TxnEntryCount:    m.TxnEntryCount,
		Source:           ledger.Source{Kind: m.SourceType, ID: m.SourceID},
		PaymentReference: derefString(m.PaymentReference),
		Metadata:         metadata,
		PostedAt:         m.PostedAt.UTC(),
		CreatedAt:        m.CreatedAt,
	}, nil
}

// LedgerEntryModelFromDomain creates a persistence model from a domain Entry
func LedgerEntryModelFromDomain(e ledger.Entry) LedgerEntryModel {
	return LedgerEntryModel{
		ID:               e.ID,
		TenantID:         e.TenantID,
		TxnID:            e.TxnID,
		EntryPosition:    e.EntryPosition,
		TxnEntryCount:    e.TxnEntryCount,
		AccountCode:      e.AccountCode,
		EntrySide:        e.Side,
		Amount:           e.Amount,
		CounterpartyID:   e.CounterpartyID,
		SourceType:       e.Source.Kind,
		SourceID:         e.Source.ID,
		PaymentReference: nullableString(e.PaymentReference),
		MetadataJSON:     encodeJSON(e.Metadata),
		PostedAt:         e.PostedAt,
		CreatedAt:        e.CreatedAt,
	}
}
