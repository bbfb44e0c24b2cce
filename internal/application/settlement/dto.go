package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// SettlePaymentRequest represents a payment received against a receivable
type SettlePaymentRequest struct {
	ReceivableID     uuid.UUID       `json:"receivable_id" validate:"required"`
	AllocationID     *uuid.UUID      `json:"allocation_id"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	PaidAt           time.Time       `json:"paid_at" validate:"required"`
	PaymentReference string          `json:"payment_reference" validate:"max=255"`
	Metadata         map[string]any  `json:"metadata"`
}

// SettlementResult is returned for both fresh and replayed settlements
type SettlementResult struct {
	Settlement        *receivable.PaymentSettlement
	Entries           []*receivable.SettlementEntry
	LedgerTransaction *ledger.Transaction
	Replayed          bool
}

// SettlementResponse is the caller-facing rendering of a settlement
type SettlementResponse struct {
	ID                uuid.UUID                 `json:"id"`
	ReceivableID      uuid.UUID                 `json:"receivable_id"`
	AllocationID      uuid.UUID                 `json:"allocation_id"`
	PaidAmount        string                    `json:"paid_amount"`
	PaidAt            time.Time                 `json:"paid_at"`
	PaymentReference  string                    `json:"payment_reference"`
	TaxShareRate      string                    `json:"tax_share_rate"`
	TaxShareAmount    string                    `json:"tax_share_amount"`
	FundAmount        string                    `json:"fund_amount"`
	BeneficiaryAmount string                    `json:"beneficiary_amount"`
	FundBalanceBefore string                    `json:"fund_balance_before"`
	FundBalanceAfter  string                    `json:"fund_balance_after"`
	LedgerTxnID       string                    `json:"ledger_txn_id"`
	Entries           []SettlementEntryResponse `json:"settlement_entries"`
	Replayed          bool                      `json:"replayed"`
}

// SettlementEntryResponse is one obligation settled by a payment
type SettlementEntryResponse struct {
	ID                    uuid.UUID `json:"id"`
	AnticipationRequestID uuid.UUID `json:"anticipation_request_id"`
	SettledAmount         string    `json:"settled_amount"`
}

// ToSettlementResponse converts a result to its response form
func ToSettlementResponse(r *SettlementResult) SettlementResponse {
	s := r.Settlement
	resp := SettlementResponse{
		ID:                s.ID,
		ReceivableID:      s.ReceivableID,
		AllocationID:      s.AllocationID,
		PaidAmount:        valueobject.MoneyString(s.PaidAmount),
		PaidAt:            s.PaidAt,
		PaymentReference:  s.PaymentReference,
		TaxShareRate:      valueobject.RateString(s.TaxShareRate),
		TaxShareAmount:    valueobject.MoneyString(s.TaxShareAmount),
		FundAmount:        valueobject.MoneyString(s.FundAmount),
		BeneficiaryAmount: valueobject.MoneyString(s.BeneficiaryAmount),
		FundBalanceBefore: valueobject.MoneyString(s.FundBalanceBefore),
		FundBalanceAfter:  valueobject.MoneyString(s.FundBalanceAfter),
		LedgerTxnID:       s.LedgerTxnID,
		Entries:           make([]SettlementEntryResponse, 0, len(r.Entries)),
		Replayed:          r.Replayed,
	}
	for _, e := range r.Entries {
		resp.Entries = append(resp.Entries, SettlementEntryResponse{
			ID:                    e.ID,
			AnticipationRequestID: e.AnticipationRequestID,
			SettledAmount:         valueobject.MoneyString(e.SettledAmount),
		})
	}
	return resp
}
