package receivable

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentSettlement is the append-only record of one payment event.
// PaidAmount always equals TaxShareAmount + FundAmount + BeneficiaryAmount.
type PaymentSettlement struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ReceivableID      uuid.UUID
	AllocationID      uuid.UUID
	IdempotencyKey    string
	PayloadHash       string
	PaidAmount        decimal.Decimal
	PaidAt            time.Time
	PaymentReference  string
	TaxShareRate      decimal.Decimal
	TaxShareAmount    decimal.Decimal
	FundAmount        decimal.Decimal
	BeneficiaryAmount decimal.Decimal
	FundBalanceBefore decimal.Decimal
	FundBalanceAfter  decimal.Decimal
	LedgerTxnID       string
	Metadata          map[string]any
	CreatedAt         time.Time
}

// SettlementEntry allocates part of a settlement's fund share to one anticipation request
type SettlementEntry struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	SettlementID          uuid.UUID
	AnticipationRequestID uuid.UUID
	SettledAmount         decimal.Decimal
	CreatedAt             time.Time
}
