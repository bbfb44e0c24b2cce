package receivable

import (
	"bytes"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// Obligation is an open anticipation request with its outstanding exposure
type Obligation struct {
	Request     *AnticipationRequest
	Outstanding decimal.Decimal
}

// SortObligations orders obligations oldest-requested first. Ties fall back
// to creation time and then id so the order is total.
func SortObligations(obligations []Obligation) {
	sort.SliceStable(obligations, func(i, j int) bool {
		a, b := obligations[i].Request, obligations[j].Request
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.Before(b.RequestedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// TaxShareRate picks the explicit policy rate when present, otherwise
// tax_reserve_amount / gross_amount, or zero if either is non-positive.
func TaxShareRate(alloc *Allocation, policy *SplitPolicy) decimal.Decimal {
	if policy != nil {
		return valueobject.RoundRate(policy.Rate)
	}
	if alloc == nil || !alloc.GrossAmount.IsPositive() || !alloc.TaxReserveAmount.IsPositive() {
		return decimal.Zero
	}
	return valueobject.RoundRate(alloc.TaxReserveAmount.DivRound(alloc.GrossAmount, valueobject.RateScale+4))
}

// Distribution is the split of one payment across tax, fund and beneficiary
type Distribution struct {
	PaidAmount        decimal.Decimal
	TaxShareRate      decimal.Decimal
	TaxShareAmount    decimal.Decimal
	FundAmount        decimal.Decimal
	BeneficiaryAmount decimal.Decimal
	FundBalanceBefore decimal.Decimal
	FundBalanceAfter  decimal.Decimal
}

// ComputeDistribution splits paid using rate and the outstanding balance of
// the open obligations. The result is checked before it is returned.
func ComputeDistribution(paid, rate decimal.Decimal, obligations []Obligation) (Distribution, error) {
	paid = valueobject.RoundMoney(paid)
	rate = valueobject.RoundRate(rate)

	tax := valueobject.RoundMoney(paid.Mul(rate))
	pool := paid.Sub(tax)

	before := decimal.Zero
	for _, o := range obligations {
		if o.Outstanding.IsPositive() {
			before = before.Add(valueobject.RoundMoney(o.Outstanding))
		}
	}

	fund := valueobject.MinMoney(pool, before)
	d := Distribution{
		PaidAmount:        paid,
		TaxShareRate:      rate,
		TaxShareAmount:    tax,
		FundAmount:        fund,
		BeneficiaryAmount: pool.Sub(fund),
		FundBalanceBefore: before,
		FundBalanceAfter:  before.Sub(fund),
	}
	return d, d.Verify()
}

// Verify checks tax + fund + beneficiary == paid exactly, and that no share is negative
func (d Distribution) Verify() error {
	sum := d.TaxShareAmount.Add(d.FundAmount).Add(d.BeneficiaryAmount)
	if !sum.Equal(d.PaidAmount) {
		return shared.NewInvariantViolation("settlement_split_invariant",
			"tax %s + fund %s + beneficiary %s != paid %s",
			d.TaxShareAmount, d.FundAmount, d.BeneficiaryAmount, d.PaidAmount)
	}
	if d.TaxShareAmount.IsNegative() || d.FundAmount.IsNegative() || d.BeneficiaryAmount.IsNegative() {
		return shared.NewInvariantViolation("settlement_split_invariant", "settlement shares must not be negative")
	}
	return nil
}

// WaterfallShare is the part of a fund amount assigned to one obligation
type WaterfallShare struct {
	Obligation   Obligation
	Settled      decimal.Decimal
	FullyCovered bool
}

// Waterfall consumes amount across obligations in the given order, oldest
// first, until amount or obligations run out. Obligations that receive
// nothing are omitted.
func Waterfall(amount decimal.Decimal, obligations []Obligation) []WaterfallShare {
	remaining := valueobject.RoundMoney(amount)
	var shares []WaterfallShare
	for _, o := range obligations {
		if !remaining.IsPositive() {
			break
		}
		outstanding := valueobject.RoundMoney(o.Outstanding)
		settled := valueobject.MinMoney(remaining, outstanding)
		if !settled.IsPositive() {
			continue
		}
		remaining = remaining.Sub(settled)
		shares = append(shares, WaterfallShare{
			Obligation:   o,
			Settled:      settled,
			FullyCovered: settled.Equal(outstanding),
		})
	}
	return shares
}
