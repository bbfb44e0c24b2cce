package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/receivable"
)

// PaymentSettlementModel is the persistence model for a payment settlement.
// Rows are append-only.
type PaymentSettlementModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settlements_tenant_key,priority:1"`
	ReceivableID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	AllocationID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	IdempotencyKey    string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_settlements_tenant_key,priority:2"`
	PayloadHash       string          `gorm:"type:varchar(64)"`
	PaidAmount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	PaidAt            time.Time       `gorm:"not null"`
	PaymentReference  string          `gorm:"type:varchar(255);not null"`
	TaxShareRate      decimal.Decimal `gorm:"type:numeric(12,8);not null"`
	TaxShareAmount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	FundAmount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BeneficiaryAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	FundBalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	FundBalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	LedgerTxnID       string          `gorm:"type:varchar(26)"`
	MetadataJSON      string          `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentSettlementModel) TableName() string {
	return "receivable_payment_settlements"
}

// ToDomain converts the persistence model to a domain PaymentSettlement
func (m *PaymentSettlementModel) ToDomain() *receivable.PaymentSettlement {
	return &receivable.PaymentSettlement{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ReceivableID:      m.ReceivableID,
		AllocationID:      m.AllocationID,
		IdempotencyKey:    m.IdempotencyKey,
		PayloadHash:       m.PayloadHash,
		PaidAmount:        money(m.PaidAmount),
		PaidAt:            m.PaidAt.UTC(),
		PaymentReference:  m.PaymentReference,
		TaxShareRate:      rate(m.TaxShareRate),
		TaxShareAmount:    money(m.TaxShareAmount),
		FundAmount:        money(m.FundAmount),
		BeneficiaryAmount: money(m.BeneficiaryAmount),
		FundBalanceBefore: money(m.FundBalanceBefore),
		FundBalanceAfter:  money(m.FundBalanceAfter),
		LedgerTxnID:       m.LedgerTxnID,
		Metadata:          lenientJSON(m.TableName(), "metadata", m.MetadataJSON),
		CreatedAt:         m.CreatedAt,
	}
}

// PaymentSettlementModelFromDomain creates a persistence model from a domain PaymentSettlement
func PaymentSettlementModelFromDomain(s *receivable.PaymentSettlement) *PaymentSettlementModel {
	return &PaymentSettlementModel{
		ID:                s.ID,
		TenantID:          s.TenantID,
		ReceivableID:      s.ReceivableID,
		AllocationID:      s.AllocationID,
		IdempotencyKey:    s.IdempotencyKey,
		PayloadHash:       s.PayloadHash,
		PaidAmount:        s.PaidAmount,
		PaidAt:            s.PaidAt,
		PaymentReference:  s.PaymentReference,
		TaxShareRate:      s.TaxShareRate,
		TaxShareAmount:    s.TaxShareAmount,
		FundAmount:        s.FundAmount,
		BeneficiaryAmount: s.BeneficiaryAmount,
		FundBalanceBefore: s.FundBalanceBefore,
		FundBalanceAfter:  s.FundBalanceAfter,
		LedgerTxnID:       s.LedgerTxnID,
		MetadataJSON:      encodeJSON(s.Metadata),
		CreatedAt:         s.CreatedAt,
	}
}

// SettlementEntryModel is the persistence model for an anticipation settlement entry
type SettlementEntryModel struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID              uuid.UUID       `gorm:"type:uuid;not null;index"`
	SettlementID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settlement_entries_pair,priority:1"`
	AnticipationRequestID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settlement_entries_pair,priority:2;index"`
	SettledAmount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt             time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SettlementEntryModel) TableName() string {
	return "anticipation_settlement_entries"
}

// ToDomain converts the persistence model to a domain SettlementEntry
func (m *SettlementEntryModel) ToDomain() *receivable.SettlementEntry {
	return &receivable.SettlementEntry{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		SettlementID:          m.SettlementID,
		AnticipationRequestID: m.AnticipationRequestID,
		SettledAmount:         money(m.SettledAmount),
		CreatedAt:             m.CreatedAt,
	}
}

// SettlementEntryModelFromDomain creates a persistence model from a domain SettlementEntry
func SettlementEntryModelFromDomain(e *receivable.SettlementEntry) *SettlementEntryModel {
	return &SettlementEntryModel{
		ID:                    e.ID,
		TenantID:              e.TenantID,
		SettlementID:          e.SettlementID,
		AnticipationRequestID: e.AnticipationRequestID,
		SettledAmount:         e.SettledAmount,
		CreatedAt:             e.CreatedAt,
	}
}
