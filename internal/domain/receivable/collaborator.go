package receivable

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExposureCalculator returns an anticipation request's contractual exposure
// (principal plus accrued discount and fees) as of valuationAt. Accrual and
// day-count rules live outside the core.
type ExposureCalculator interface {
	Exposure(ctx context.Context, req *AnticipationRequest, valuationAt time.Time) (decimal.Decimal, error)
}

// ExposureFunc adapts a function to ExposureCalculator
type ExposureFunc func(ctx context.Context, req *AnticipationRequest, valuationAt time.Time) (decimal.Decimal, error)

// Exposure calls f
func (f ExposureFunc) Exposure(ctx context.Context, req *AnticipationRequest, valuationAt time.Time) (decimal.Decimal, error) {
	return f(ctx, req, valuationAt)
}

// FaceValueExposure treats the requested (face) amount as the full exposure,
// i.e. the net disbursed plus the discount agreed up front.
type FaceValueExposure struct{}

// Exposure returns the requested amount
func (FaceValueExposure) Exposure(_ context.Context, req *AnticipationRequest, _ time.Time) (decimal.Decimal, error) {
	return req.RequestedAmount, nil
}

// SplitPolicyResolver returns the explicit shared-tax-reserve policy active for
// an allocation, or nil to fall back to the allocation's reserve ratio.
type SplitPolicyResolver interface {
	Resolve(ctx context.Context, alloc *Allocation) (*SplitPolicy, error)
}

// MetadataSplitPolicyResolver reads the policy stored on the allocation itself
type MetadataSplitPolicyResolver struct{}

// Resolve reads SplitPolicyMetadataKey from the allocation metadata
func (MetadataSplitPolicyResolver) Resolve(_ context.Context, alloc *Allocation) (*SplitPolicy, error) {
	return SplitPolicyFromMetadata(alloc.Metadata), nil
}
