package receivable

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// AnticipationStatus represents the status of an anticipation request
type AnticipationStatus string

const (
	AnticipationStatusRequested AnticipationStatus = "REQUESTED"
	AnticipationStatusApproved  AnticipationStatus = "APPROVED"
	AnticipationStatusFunded    AnticipationStatus = "FUNDED"
	AnticipationStatusSettled   AnticipationStatus = "SETTLED"
	AnticipationStatusCancelled AnticipationStatus = "CANCELLED"
	AnticipationStatusRejected  AnticipationStatus = "REJECTED"
)

// IsValid checks if the status is valid
func (s AnticipationStatus) IsValid() bool {
	switch s {
	case AnticipationStatusRequested, AnticipationStatusApproved, AnticipationStatusFunded,
		AnticipationStatusSettled, AnticipationStatusCancelled, AnticipationStatusRejected:
		return true
	}
	return false
}

// IsOpen returns true while the request is an outstanding funding obligation
func (s AnticipationStatus) IsOpen() bool {
	return s == AnticipationStatusRequested || s == AnticipationStatusApproved || s == AnticipationStatusFunded
}

// OpenAnticipationStatuses lists the statuses counted as open obligations
var OpenAnticipationStatuses = []AnticipationStatus{
	AnticipationStatusRequested,
	AnticipationStatusApproved,
	AnticipationStatusFunded,
}

// allowedTransitions holds the caller-driven transitions. SETTLED is only
// reached through payment settlement.
var allowedTransitions = map[AnticipationStatus][]AnticipationStatus{
	AnticipationStatusRequested: {AnticipationStatusApproved, AnticipationStatusRejected, AnticipationStatusCancelled},
	AnticipationStatusApproved:  {AnticipationStatusFunded, AnticipationStatusCancelled},
}

// CanTransitionTo reports whether a caller may move from s to target
func (s AnticipationStatus) CanTransitionTo(target AnticipationStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// AnticipationRequest is a request to be paid early at a discount.
// Until SETTLED it represents an obligation owed back to the funding pool.
type AnticipationRequest struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ReceivableID    uuid.UUID
	AllocationID    *uuid.UUID
	IdempotencyKey  string
	PayloadHash     string
	RequestedAmount decimal.Decimal
	DiscountRate    decimal.Decimal
	DiscountAmount  decimal.Decimal
	NetAmount       decimal.Decimal
	Status          AnticipationStatus
	RequestedAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewAnticipationRequest prices a request: discount = requested × rate, net = requested − discount
func NewAnticipationRequest(tenantID, receivableID uuid.UUID, allocationID *uuid.UUID, requested, rate decimal.Decimal, requestedAt time.Time) (*AnticipationRequest, error) {
	requested = valueobject.RoundMoney(requested)
	if !requested.IsPositive() {
		return nil, shared.NewDomainError("invalid_requested_amount", "requested amount must be greater than zero")
	}
	rate = valueobject.RoundRate(rate)
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, shared.NewDomainError("invalid_discount_rate", "discount rate must be in [0, 1)")
	}
	discount := valueobject.RoundMoney(requested.Mul(rate))
	now := time.Now().UTC()
	return &AnticipationRequest{
		ID:              uuid.New(),
		TenantID:        tenantID,
		ReceivableID:    receivableID,
		AllocationID:    allocationID,
		RequestedAmount: requested,
		DiscountRate:    rate,
		DiscountAmount:  discount,
		NetAmount:       requested.Sub(discount),
		Status:          AnticipationStatusRequested,
		RequestedAt:     requestedAt.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Transition applies a caller-driven status change and returns the history row
func (a *AnticipationRequest) Transition(to AnticipationStatus, reason string, actor shared.Actor) (*StatusHistory, error) {
	if !to.IsValid() {
		return nil, shared.NewValidationError("invalid_status", "invalid anticipation status %q", to)
	}
	if !a.Status.CanTransitionTo(to) {
		return nil, shared.NewValidationError("invalid_status_transition",
			"anticipation request %s cannot move from %s to %s", a.ID, a.Status, to)
	}
	return a.setStatus(to, reason, actor), nil
}

// MarkSettled closes the obligation once its exposure is fully covered
func (a *AnticipationRequest) MarkSettled(actor shared.Actor) *StatusHistory {
	if a.Status == AnticipationStatusSettled {
		return nil
	}
	return a.setStatus(AnticipationStatusSettled, "exposure fully covered by settlement", actor)
}

func (a *AnticipationRequest) setStatus(to AnticipationStatus, reason string, actor shared.Actor) *StatusHistory {
	from := a.Status
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return &StatusHistory{
		ID:                    uuid.New(),
		TenantID:              a.TenantID,
		AnticipationRequestID: a.ID,
		FromStatus:            from,
		ToStatus:              to,
		Reason:                reason,
		ActorID:               actor.ID,
		CreatedAt:             a.UpdatedAt,
	}
}

// StatusHistory is an append-only record of one anticipation status change
type StatusHistory struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	AnticipationRequestID uuid.UUID
	FromStatus            AnticipationStatus
	ToStatus              AnticipationStatus
	Reason                string
	ActorID               string
	// IdempotencyKey and PayloadHash are set for caller-driven transitions
	IdempotencyKey string
	PayloadHash    string
	CreatedAt      time.Time
}
