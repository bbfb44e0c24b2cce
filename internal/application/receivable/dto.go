package receivable

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// SplitPolicyInput is an explicit shared-tax-reserve split for one allocation
type SplitPolicyInput struct {
	Rate     decimal.Decimal `json:"rate"`
	Source   string          `json:"source" validate:"max=100"`
	PolicyID string          `json:"policy_id" validate:"max=100"`
}

// AllocationInput describes one share of a new receivable
type AllocationInput struct {
	Name             string            `json:"name" validate:"required,max=100"`
	GrossAmount      decimal.Decimal   `json:"gross_amount"`
	TaxReserveAmount decimal.Decimal   `json:"tax_reserve_amount"`
	SplitPolicy      *SplitPolicyInput `json:"split_policy"`
}

// CreateReceivableRequest registers a receivable with its allocations
type CreateReceivableRequest struct {
	DebtorID      uuid.UUID         `json:"debtor_id" validate:"required"`
	CreditorID    uuid.UUID         `json:"creditor_id" validate:"required"`
	BeneficiaryID uuid.UUID         `json:"beneficiary_id" validate:"required"`
	GrossAmount   decimal.Decimal   `json:"gross_amount"`
	DueDate       *time.Time        `json:"due_date"`
	Allocations   []AllocationInput `json:"allocations" validate:"omitempty,dive"`
}

// ReceivableResult is returned for both fresh and replayed creations
type ReceivableResult struct {
	Receivable  *receivable.Receivable
	Allocations []*receivable.Allocation
	Replayed    bool
}

// AttachDocumentRequest links a signed artifact already uploaded to object storage
type AttachDocumentRequest struct {
	ReceivableID uuid.UUID `json:"receivable_id" validate:"required"`
	DocumentType string    `json:"document_type" validate:"required,max=64"`
	StorageKey   string    `json:"storage_key" validate:"required,max=1024"`
	SHA256       string    `json:"sha256" validate:"required,len=64,hexadecimal"`
	SignedAt     time.Time `json:"signed_at" validate:"required"`
}

// DocumentResult is returned for both fresh and replayed attachments
type DocumentResult struct {
	Document *receivable.SignedDocument
	Replayed bool
}

// RequestAnticipationRequest asks for early payment of a receivable or one allocation
type RequestAnticipationRequest struct {
	ReceivableID    uuid.UUID       `json:"receivable_id" validate:"required"`
	AllocationID    *uuid.UUID      `json:"allocation_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	DiscountRate    decimal.Decimal `json:"discount_rate"`
}

// TransitionAnticipationRequest moves an anticipation request through its lifecycle
type TransitionAnticipationRequest struct {
	AnticipationRequestID uuid.UUID                     `json:"anticipation_request_id" validate:"required"`
	ToStatus              receivable.AnticipationStatus `json:"to_status" validate:"required"`
	Reason                string                        `json:"reason" validate:"max=500"`
}

// AnticipationResult is returned by both anticipation operations
type AnticipationResult struct {
	Request  *receivable.AnticipationRequest
	History  *receivable.StatusHistory
	Replayed bool
}

// ReceivableResponse is the caller-facing rendering of a receivable
type ReceivableResponse struct {
	ID            uuid.UUID            `json:"id"`
	DebtorID      uuid.UUID            `json:"debtor_id"`
	CreditorID    uuid.UUID            `json:"creditor_id"`
	BeneficiaryID uuid.UUID            `json:"beneficiary_id"`
	GrossAmount   string               `json:"gross_amount"`
	DueDate       *time.Time           `json:"due_date,omitempty"`
	Status        string               `json:"status"`
	Allocations   []AllocationResponse `json:"allocations"`
	Replayed      bool                 `json:"replayed"`
}

// AllocationResponse is one allocation of a receivable
type AllocationResponse struct {
	ID               uuid.UUID `json:"id"`
	Sequence         int       `json:"sequence"`
	Name             string    `json:"name"`
	GrossAmount      string    `json:"gross_amount"`
	TaxReserveAmount string    `json:"tax_reserve_amount"`
	Status           string    `json:"status"`
}

// ToReceivableResponse converts a result to its response form
func ToReceivableResponse(r *ReceivableResult) ReceivableResponse {
	rec := r.Receivable
	resp := ReceivableResponse{
		ID:            rec.ID,
		DebtorID:      rec.DebtorID,
		CreditorID:    rec.CreditorID,
		BeneficiaryID: rec.BeneficiaryID,
		GrossAmount:   valueobject.MoneyString(rec.GrossAmount),
		DueDate:       rec.DueDate,
		Status:        rec.Status.String(),
		Allocations:   make([]AllocationResponse, 0, len(r.Allocations)),
		Replayed:      r.Replayed,
	}
	for _, a := range r.Allocations {
		resp.Allocations = append(resp.Allocations, AllocationResponse{
			ID:               a.ID,
			Sequence:         a.Sequence,
			Name:             a.Name,
			GrossAmount:      valueobject.MoneyString(a.GrossAmount),
			TaxReserveAmount: valueobject.MoneyString(a.TaxReserveAmount),
			Status:           string(a.Status),
		})
	}
	return resp
}

// ChainVerificationResponse reports the integrity of a receivable's event chain
type ChainVerificationResponse struct {
	ReceivableID uuid.UUID `json:"receivable_id"`
	Events       int       `json:"events"`
	Valid        bool      `json:"valid"`
	BrokenAt     int64     `json:"broken_at,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// ToChainVerificationResponse converts a chain report to its response form
func ToChainVerificationResponse(r receivable.ChainReport) ChainVerificationResponse {
	return ChainVerificationResponse{
		ReceivableID: r.ReceivableID,
		Events:       r.EventCount,
		Valid:        r.Valid,
		BrokenAt:     r.BrokenAt,
		Reason:       r.Reason,
	}
}
