package receivable

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// Status represents the lifecycle status of a receivable
type Status string

const (
	StatusPerformed             Status = "PERFORMED"              // Service performed, claim exists
	StatusAnticipationRequested Status = "ANTICIPATION_REQUESTED" // Early payment requested
	StatusFunded                Status = "FUNDED"                 // Funding pool disbursed
	StatusSettled               Status = "SETTLED"                // Fully paid by the debtor
	StatusCancelled             Status = "CANCELLED"              // Voided
)

var statusRank = map[Status]int{
	StatusPerformed:             0,
	StatusAnticipationRequested: 1,
	StatusFunded:                2,
	StatusSettled:               3,
}

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the receivable can no longer change
func (s Status) IsTerminal() bool {
	return s == StatusCancelled
}

// Receivable is a claim against a debtor, split into allocations
type Receivable struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	IdempotencyKey string
	PayloadHash    string
	DebtorID       uuid.UUID
	CreditorID     uuid.UUID
	BeneficiaryID  uuid.UUID
	GrossAmount    decimal.Decimal
	DueDate        *time.Time
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Advance moves the receivable forward. Targets ranked at or below the
// current status are ignored so status never regresses.
// It reports whether the status changed.
func (r *Receivable) Advance(to Status) (bool, error) {
	if !to.IsValid() {
		return false, shared.NewValidationError("invalid_status", "invalid receivable status %q", to)
	}
	if r.Status.IsTerminal() {
		return false, shared.NewValidationError("receivable_cancelled", "receivable %s is cancelled", r.ID)
	}
	if to == StatusCancelled {
		r.Status = to
		r.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	if statusRank[to] <= statusRank[r.Status] {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

// AllocationStatus represents the status of an allocation
type AllocationStatus string

const (
	AllocationStatusOpen      AllocationStatus = "OPEN"
	AllocationStatusSettled   AllocationStatus = "SETTLED"
	AllocationStatusCancelled AllocationStatus = "CANCELLED"
)

// IsValid checks if the status is valid
func (s AllocationStatus) IsValid() bool {
	return s == AllocationStatusOpen || s == AllocationStatusSettled || s == AllocationStatusCancelled
}

// SplitPolicyMetadataKey is the allocation metadata key holding an explicit split policy
const SplitPolicyMetadataKey = "shared_tax_reserve_split"

// Allocation is a named, sequence-numbered share of a receivable's gross amount
type Allocation struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ReceivableID     uuid.UUID
	Sequence         int
	Name             string
	GrossAmount      decimal.Decimal
	TaxReserveAmount decimal.Decimal
	Status           AllocationStatus
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MarkSettledIfPaid transitions the allocation to SETTLED once cumulative
// payments reach its gross amount. It reports whether the status changed.
func (a *Allocation) MarkSettledIfPaid(cumulativePaid decimal.Decimal) bool {
	if a.Status != AllocationStatusOpen {
		return false
	}
	if valueobject.RoundMoney(cumulativePaid).LessThan(a.GrossAmount) {
		return false
	}
	a.Status = AllocationStatusSettled
	a.UpdatedAt = time.Now().UTC()
	return true
}

// SplitPolicy is an explicit shared-tax-reserve split attached to an allocation
type SplitPolicy struct {
	Rate     decimal.Decimal
	Source   string
	PolicyID string
}

// SplitPolicyFromMetadata reads an applied split policy from allocation
// metadata. It returns nil when none is present, not applied, or malformed.
func SplitPolicyFromMetadata(meta map[string]any) *SplitPolicy {
	raw, ok := meta[SplitPolicyMetadataKey].(map[string]any)
	if !ok {
		return nil
	}
	if applied, _ := raw["applied"].(bool); !applied {
		return nil
	}
	rate, ok := decimalFrom(raw["rate"])
	if !ok || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil
	}
	policy := &SplitPolicy{Rate: valueobject.RoundRate(rate)}
	policy.Source, _ = raw["source"].(string)
	policy.PolicyID, _ = raw["policy_id"].(string)
	return policy
}

// Metadata renders the policy in the shape SplitPolicyFromMetadata reads
func (p SplitPolicy) Metadata() map[string]any {
	return map[string]any{
		"rate":      valueobject.RateString(p.Rate),
		"source":    p.Source,
		"policy_id": p.PolicyID,
		"applied":   true,
	}
}

func decimalFrom(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(x), true
	case decimal.Decimal:
		return x, true
	case interface{ String() string }:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	}
	return decimal.Zero, false
}
