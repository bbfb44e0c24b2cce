// Package settlement applies payments received on receivables: it splits each
// payment into tax, fund and beneficiary shares, settles open anticipation
// obligations oldest first and posts the balanced ledger transaction.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/application/idempotency"
	"github.com/anticipa/backend/internal/application/txscope"
	"github.com/anticipa/backend/internal/application/validation"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/canonical"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
	"github.com/anticipa/backend/internal/infrastructure/telemetry"
)

const (
	// OperationSettle names the settlement mutation in logs and failure records
	OperationSettle = "settle_payment"

	// AggregateType is the outbox aggregate type for settlement notifications
	AggregateType = "RECEIVABLE_PAYMENT_SETTLEMENT"

	EventBeneficiaryExcessPayout = "BENEFICIARY_EXCESS_PAYOUT_REQUESTED"
	EventFundSettlementReport    = "FUND_SETTLEMENT_REPORT_REQUESTED"

	beneficiaryPayoutSuffix = "beneficiary_excess_payout"
	fundReportSuffix        = "fund_settlement_report"
)

// Metrics receives settlement observations
type Metrics interface {
	RecordSettlement(ctx context.Context, paid, fund, beneficiary decimal.Decimal)
	RecordLedgerPosting(ctx context.Context, sourceType string, entries int)
}

// Service settles payments
type Service struct {
	protocol *idempotency.Protocol
	exposure receivable.ExposureCalculator
	policies receivable.SplitPolicyResolver
	poster   *ledger.Poster
	chain    *receivable.EventChain
	outbox   *shared.OutboxEnqueuer
	newTxnID func() string
	now      func() time.Time
	metrics  Metrics
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithExposureCalculator sets the collaborator that values open obligations
func WithExposureCalculator(c receivable.ExposureCalculator) Option {
	return func(s *Service) {
		s.exposure = c
	}
}

// WithSplitPolicyResolver sets the collaborator that finds explicit split policies
func WithSplitPolicyResolver(r receivable.SplitPolicyResolver) Option {
	return func(s *Service) {
		s.policies = r
	}
}

// WithTxnIDGenerator overrides ledger transaction id generation
func WithTxnIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newTxnID = fn
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a settlement service. Exposure defaults to the face
// value of each request and split policies are read from allocation metadata.
func NewService(protocol *idempotency.Protocol, opts ...Option) *Service {
	s := &Service{
		protocol: protocol,
		exposure: receivable.FaceValueExposure{},
		policies: receivable.MetadataSplitPolicyResolver{},
		poster:   ledger.NewPoster(),
		chain:    receivable.NewEventChain(),
		outbox:   shared.NewOutboxEnqueuer(),
		newTxnID: ledger.NewTxnID,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SettlementPayload returns the normalized form of a request that is
// fingerprinted for idempotency. A blank payment reference hashes as absent
// so a retry that omits it matches the original call.
func SettlementPayload(req SettlePaymentRequest) map[string]any {
	var allocationID any
	if req.AllocationID != nil {
		allocationID = req.AllocationID.String()
	}
	var reference any
	if ref := strings.TrimSpace(req.PaymentReference); ref != "" {
		reference = ref
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"receivable_id":     req.ReceivableID.String(),
		"allocation_id":     allocationID,
		"paid_amount":       valueobject.MoneyString(req.PaidAmount),
		"paid_at":           canonical.FormatTime(req.PaidAt),
		"payment_reference": reference,
		"metadata":          metadata,
	}
}

func effectiveReference(cmd shared.CommandContext, req SettlePaymentRequest) string {
	if ref := strings.TrimSpace(req.PaymentReference); ref != "" {
		return ref
	}
	return cmd.Key()
}

// Settle applies one payment exactly once per idempotency key. A repeat with
// the same payload returns the stored settlement flagged as replayed.
func (s *Service) Settle(ctx context.Context, cmd shared.CommandContext, req SettlePaymentRequest) (*SettlementResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "Settle")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceivableID, req.ReceivableID.String(),
		telemetry.SpanAttrAmount, valueobject.MoneyString(req.PaidAmount),
	)

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationSettle, cmd, err)
	}
	req.PaidAmount = valueobject.RoundMoney(req.PaidAmount)
	if !req.PaidAmount.IsPositive() {
		err := shared.NewValidationError("invalid_paid_amount", "paid amount must be greater than zero")
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationSettle, cmd, err)
	}
	req.PaidAt = req.PaidAt.UTC()
	reference := effectiveReference(cmd, req)

	res, err := idempotency.Run(ctx, s.protocol, idempotency.Operation[*SettlementResult]{
		Name:    OperationSettle,
		Command: cmd,
		Payload: SettlementPayload(req),
		Find: func(ctx context.Context, repos txscope.Repositories) (*SettlementResult, string, bool, error) {
			return s.findExisting(ctx, repos, cmd)
		},
		SameIntent: func(existing *SettlementResult) bool {
			st := existing.Settlement
			if req.AllocationID != nil && st.AllocationID != *req.AllocationID {
				return false
			}
			return st.ReceivableID == req.ReceivableID &&
				st.PaidAmount.Equal(req.PaidAmount) &&
				st.PaidAt.Equal(req.PaidAt) &&
				st.PaymentReference == reference
		},
		Execute: func(ctx context.Context, repos txscope.Repositories, payloadHash string) (*SettlementResult, error) {
			return s.execute(ctx, repos, cmd, req, reference, payloadHash)
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := res.Value
	result.Replayed = res.Replayed()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSettlementID, result.Settlement.ID.String(),
		telemetry.SpanAttrReplayed, result.Replayed,
	)
	if !result.Replayed {
		st := result.Settlement
		s.logger.Info("Payment settled",
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.String("settlement_id", st.ID.String()),
			zap.String("receivable_id", st.ReceivableID.String()),
			zap.String("paid_amount", valueobject.MoneyString(st.PaidAmount)),
			zap.String("tax_share_amount", valueobject.MoneyString(st.TaxShareAmount)),
			zap.String("fund_amount", valueobject.MoneyString(st.FundAmount)),
			zap.String("beneficiary_amount", valueobject.MoneyString(st.BeneficiaryAmount)),
			zap.Int("settlement_entries", len(result.Entries)),
		)
		if s.metrics != nil {
			s.metrics.RecordSettlement(ctx, st.PaidAmount, st.FundAmount, st.BeneficiaryAmount)
			if result.LedgerTransaction != nil {
				s.metrics.RecordLedgerPosting(ctx, string(ledger.SourcePaymentSettlement), result.LedgerTransaction.EntryCount)
			}
		}
	}
	return result, nil
}

func (s *Service) findExisting(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext) (*SettlementResult, string, bool, error) {
	existing, err := repos.Settlements().FindByIdempotencyKeyForUpdate(ctx, cmd.TenantID, cmd.Key())
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("load settlement by idempotency key: %w", err)
	}

	entries, err := repos.Settlements().ListEntriesBySettlement(ctx, cmd.TenantID, existing.ID)
	if err != nil {
		return nil, "", false, fmt.Errorf("load settlement entries: %w", err)
	}
	result := &SettlementResult{Settlement: existing, Entries: entries}
	if existing.LedgerTxnID != "" {
		txn, err := repos.Ledger().FindTransaction(ctx, cmd.TenantID, existing.LedgerTxnID)
		if err != nil && !shared.IsNotFound(err) {
			return nil, "", false, fmt.Errorf("load settlement ledger transaction: %w", err)
		}
		result.LedgerTransaction = txn
	}
	return result, existing.PayloadHash, true, nil
}

func (s *Service) execute(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext, req SettlePaymentRequest, reference, payloadHash string) (*SettlementResult, error) {
	tenantID := cmd.TenantID

	rec, err := repos.Receivables().FindByIDForUpdate(ctx, tenantID, req.ReceivableID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, shared.NewValidationError("receivable_cancelled", "receivable %s is cancelled", rec.ID)
	}

	alloc, err := s.resolveAllocation(ctx, repos, rec, req.AllocationID)
	if err != nil {
		return nil, err
	}

	policy, err := s.policies.Resolve(ctx, alloc)
	if err != nil {
		return nil, fmt.Errorf("resolve split policy: %w", err)
	}
	rate := receivable.TaxShareRate(alloc, policy)

	obligations, err := s.openObligations(ctx, repos, tenantID, rec.ID, alloc.ID, req.PaidAt)
	if err != nil {
		return nil, err
	}

	dist, err := receivable.ComputeDistribution(req.PaidAmount, rate, obligations)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if policy != nil {
		metadata = withPolicy(metadata, *policy)
	}
	settlement := &receivable.PaymentSettlement{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ReceivableID:      rec.ID,
		AllocationID:      alloc.ID,
		IdempotencyKey:    cmd.Key(),
		PayloadHash:       payloadHash,
		PaidAmount:        dist.PaidAmount,
		PaidAt:            req.PaidAt,
		PaymentReference:  reference,
		TaxShareRate:      dist.TaxShareRate,
		TaxShareAmount:    dist.TaxShareAmount,
		FundAmount:        dist.FundAmount,
		BeneficiaryAmount: dist.BeneficiaryAmount,
		FundBalanceBefore: dist.FundBalanceBefore,
		FundBalanceAfter:  dist.FundBalanceAfter,
		LedgerTxnID:       s.newTxnID(),
		Metadata:          metadata,
		CreatedAt:         now,
	}
	inserted, err := repos.Settlements().InsertIfAbsent(ctx, settlement)
	if err != nil {
		return nil, fmt.Errorf("insert settlement: %w", err)
	}
	if !inserted {
		return nil, idempotency.ErrKeyTaken
	}

	entries, err := s.settleObligations(ctx, repos, cmd, settlement, obligations, now)
	if err != nil {
		return nil, err
	}

	posting, err := s.poster.Post(ctx, repos.Ledger(), ledger.PostingRequest{
		TenantID:         tenantID,
		TxnID:            settlement.LedgerTxnID,
		Source:           ledger.Source{Kind: ledger.SourcePaymentSettlement, ID: settlement.ID},
		PaymentReference: reference,
		PostedAt:         req.PaidAt,
		Entries:          SettlementEntries(rec, dist),
	})
	if err != nil {
		return nil, err
	}

	if err := s.advanceStatuses(ctx, repos, rec, alloc); err != nil {
		return nil, err
	}

	if _, err := s.chain.Append(ctx, repos.Events(), receivable.AppendRequest{
		TenantID:     tenantID,
		ReceivableID: rec.ID,
		EventType:    receivable.EventReceivablePaymentSettled,
		OccurredAt:   now,
		RequestID:    cmd.RequestID,
		Payload:      settledEventPayload(settlement, entries),
	}); err != nil {
		return nil, err
	}

	if err := s.enqueueNotifications(ctx, repos, settlement); err != nil {
		return nil, err
	}

	return &SettlementResult{
		Settlement:        settlement,
		Entries:           entries,
		LedgerTransaction: posting.Transaction,
	}, nil
}

// resolveAllocation locks the target allocation. Without an explicit id the
// receivable must have exactly one allocation.
func (s *Service) resolveAllocation(ctx context.Context, repos txscope.Repositories, rec *receivable.Receivable, allocationID *uuid.UUID) (*receivable.Allocation, error) {
	var alloc *receivable.Allocation
	if allocationID != nil {
		found, err := repos.Allocations().FindByIDForUpdate(ctx, rec.TenantID, *allocationID)
		if err != nil {
			return nil, err
		}
		if found.ReceivableID != rec.ID {
			return nil, shared.NewNotFoundError("allocation_not_found",
				"allocation %s does not belong to receivable %s", found.ID, rec.ID)
		}
		alloc = found
	} else {
		allocations, err := repos.Allocations().ListByReceivableForUpdate(ctx, rec.TenantID, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("load allocations: %w", err)
		}
		switch len(allocations) {
		case 0:
			return nil, shared.NewNotFoundError("allocation_not_found", "receivable %s has no allocations", rec.ID)
		case 1:
			alloc = allocations[0]
		default:
			return nil, shared.NewValidationError("receivable_allocation_required",
				"receivable %s has %d allocations; allocation_id is required", rec.ID, len(allocations))
		}
	}
	if alloc.Status == receivable.AllocationStatusCancelled {
		return nil, shared.NewValidationError("allocation_cancelled", "allocation %s is cancelled", alloc.ID)
	}
	return alloc, nil
}

// openObligations locks the open requests and values each at paidAt, net of
// what earlier settlements already covered. The result is ordered oldest first.
func (s *Service) openObligations(ctx context.Context, repos txscope.Repositories, tenantID, receivableID, allocationID uuid.UUID, paidAt time.Time) ([]receivable.Obligation, error) {
	requests, err := repos.Anticipations().ListOpenForUpdate(ctx, tenantID, receivableID, &allocationID)
	if err != nil {
		return nil, fmt.Errorf("load open anticipation requests: %w", err)
	}
	if len(requests) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
	}
	prior, err := repos.Settlements().ListEntriesByRequests(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load prior settlement entries: %w", err)
	}
	covered := make(map[uuid.UUID]decimal.Decimal, len(requests))
	for _, e := range prior {
		covered[e.AnticipationRequestID] = covered[e.AnticipationRequestID].Add(e.SettledAmount)
	}

	obligations := make([]receivable.Obligation, 0, len(requests))
	for _, r := range requests {
		exposure, err := s.exposure.Exposure(ctx, r, paidAt)
		if err != nil {
			return nil, fmt.Errorf("compute exposure for anticipation request %s: %w", r.ID, err)
		}
		outstanding := valueobject.RoundMoney(exposure).Sub(covered[r.ID])
		if outstanding.IsNegative() {
			outstanding = decimal.Zero
		}
		obligations = append(obligations, receivable.Obligation{Request: r, Outstanding: outstanding})
	}
	receivable.SortObligations(obligations)
	return obligations, nil
}

// settleObligations writes one entry per obligation that received part of the
// fund share and closes the ones now fully covered.
func (s *Service) settleObligations(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext, st *receivable.PaymentSettlement, obligations []receivable.Obligation, now time.Time) ([]*receivable.SettlementEntry, error) {
	shares := receivable.Waterfall(st.FundAmount, obligations)
	if len(shares) == 0 {
		return []*receivable.SettlementEntry{}, nil
	}

	entries := make([]*receivable.SettlementEntry, 0, len(shares))
	for _, share := range shares {
		entries = append(entries, &receivable.SettlementEntry{
			ID:                    uuid.New(),
			TenantID:              st.TenantID,
			SettlementID:          st.ID,
			AnticipationRequestID: share.Obligation.Request.ID,
			SettledAmount:         share.Settled,
			CreatedAt:             now,
		})
	}
	if err := repos.Settlements().CreateEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("create settlement entries: %w", err)
	}

	for _, share := range shares {
		if !share.FullyCovered {
			continue
		}
		req := share.Obligation.Request
		history := req.MarkSettled(cmd.Actor)
		if history == nil {
			continue
		}
		if err := repos.Anticipations().UpdateStatus(ctx, req); err != nil {
			return nil, fmt.Errorf("settle anticipation request %s: %w", req.ID, err)
		}
		if err := repos.Anticipations().AppendHistory(ctx, history); err != nil {
			return nil, fmt.Errorf("record anticipation history %s: %w", req.ID, err)
		}
	}
	return entries, nil
}

// SettlementEntries assembles the balanced ledger lines for a distribution:
// the clearing debit and receivable credit for the gross paid amount, then a
// debit to each obligation account with a non-zero share, each balanced by a
// clearing credit.
func SettlementEntries(rec *receivable.Receivable, d receivable.Distribution) []ledger.EntryDraft {
	entries := []ledger.EntryDraft{
		{AccountCode: ledger.AccountSettlementClearing, Side: ledger.Debit, Amount: d.PaidAmount},
		{AccountCode: ledger.AccountReceivableGross, Side: ledger.Credit, Amount: d.PaidAmount, CounterpartyID: party(rec.DebtorID)},
	}

	shares := []struct {
		account      ledger.AccountCode
		amount       decimal.Decimal
		counterparty *uuid.UUID
	}{
		{ledger.AccountTaxReserveObligation, d.TaxShareAmount, nil},
		{ledger.AccountFundObligation, d.FundAmount, nil},
		{ledger.AccountBeneficiaryObligation, d.BeneficiaryAmount, party(rec.BeneficiaryID)},
	}
	for _, sh := range shares {
		if !sh.amount.IsPositive() {
			continue
		}
		entries = append(entries,
			ledger.EntryDraft{AccountCode: sh.account, Side: ledger.Debit, Amount: sh.amount, CounterpartyID: sh.counterparty},
			ledger.EntryDraft{AccountCode: ledger.AccountSettlementClearing, Side: ledger.Credit, Amount: sh.amount},
		)
	}
	return entries
}

// advanceStatuses marks the allocation and receivable SETTLED once their
// cumulative paid totals reach the gross amount.
func (s *Service) advanceStatuses(ctx context.Context, repos txscope.Repositories, rec *receivable.Receivable, alloc *receivable.Allocation) error {
	allocPaid, err := paidTotal(repos.Settlements().ListByAllocation(ctx, rec.TenantID, alloc.ID))
	if err != nil {
		return fmt.Errorf("sum allocation payments: %w", err)
	}
	if alloc.MarkSettledIfPaid(allocPaid) {
		if err := repos.Allocations().UpdateStatus(ctx, alloc); err != nil {
			return fmt.Errorf("settle allocation %s: %w", alloc.ID, err)
		}
	}

	recPaid, err := paidTotal(repos.Settlements().ListByReceivable(ctx, rec.TenantID, rec.ID))
	if err != nil {
		return fmt.Errorf("sum receivable payments: %w", err)
	}
	if valueobject.RoundMoney(recPaid).LessThan(rec.GrossAmount) {
		return nil
	}
	changed, err := rec.Advance(receivable.StatusSettled)
	if err != nil {
		return err
	}
	if changed {
		if err := repos.Receivables().UpdateStatus(ctx, rec); err != nil {
			return fmt.Errorf("settle receivable %s: %w", rec.ID, err)
		}
	}
	return nil
}

func party(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func paidTotal(settlements []*receivable.PaymentSettlement, err error) (decimal.Decimal, error) {
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, st := range settlements {
		total = total.Add(st.PaidAmount)
	}
	return total, nil
}

func settledEventPayload(st *receivable.PaymentSettlement, entries []*receivable.SettlementEntry) map[string]any {
	refs := make([]any, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, map[string]any{
			"settlement_entry_id":     e.ID.String(),
			"anticipation_request_id": e.AnticipationRequestID.String(),
			"settled_amount":          valueobject.MoneyString(e.SettledAmount),
		})
	}
	return map[string]any{
		"settlement_id":       st.ID.String(),
		"allocation_id":       st.AllocationID.String(),
		"paid_amount":         valueobject.MoneyString(st.PaidAmount),
		"paid_at":             canonical.FormatTime(st.PaidAt),
		"payment_reference":   st.PaymentReference,
		"tax_share_rate":      valueobject.RateString(st.TaxShareRate),
		"tax_share_amount":    valueobject.MoneyString(st.TaxShareAmount),
		"fund_amount":         valueobject.MoneyString(st.FundAmount),
		"beneficiary_amount":  valueobject.MoneyString(st.BeneficiaryAmount),
		"fund_balance_before": valueobject.MoneyString(st.FundBalanceBefore),
		"fund_balance_after":  valueobject.MoneyString(st.FundBalanceAfter),
		"ledger_txn_id":       st.LedgerTxnID,
		"settlement_entries":  refs,
	}
}

// enqueueNotifications records the downstream payout and fund report
// requests. Keys derive from the settlement id so the step is replay safe.
func (s *Service) enqueueNotifications(ctx context.Context, repos txscope.Repositories, st *receivable.PaymentSettlement) error {
	base := map[string]any{
		"settlement_id":     st.ID.String(),
		"receivable_id":     st.ReceivableID.String(),
		"allocation_id":     st.AllocationID.String(),
		"payment_reference": st.PaymentReference,
		"paid_at":           canonical.FormatTime(st.PaidAt),
	}

	if st.BeneficiaryAmount.IsPositive() {
		payload := clonePayload(base)
		payload["beneficiary_amount"] = valueobject.MoneyString(st.BeneficiaryAmount)
		if _, err := s.outbox.Enqueue(ctx, repos.Outbox(), shared.EnqueueRequest{
			TenantID:        st.TenantID,
			AggregateType:   AggregateType,
			AggregateID:     st.ID,
			EventType:       EventBeneficiaryExcessPayout,
			IdempotencyKey:  st.ID.String() + ":" + beneficiaryPayoutSuffix,
			Payload:         payload,
			ConflictCode:    "beneficiary_payout_conflict",
			ConflictMessage: "beneficiary payout already requested with a different payload",
		}); err != nil {
			return err
		}
	}

	if st.FundAmount.IsPositive() {
		payload := clonePayload(base)
		payload["fund_amount"] = valueobject.MoneyString(st.FundAmount)
		payload["fund_balance_before"] = valueobject.MoneyString(st.FundBalanceBefore)
		payload["fund_balance_after"] = valueobject.MoneyString(st.FundBalanceAfter)
		if _, err := s.outbox.Enqueue(ctx, repos.Outbox(), shared.EnqueueRequest{
			TenantID:        st.TenantID,
			AggregateType:   AggregateType,
			AggregateID:     st.ID,
			EventType:       EventFundSettlementReport,
			IdempotencyKey:  st.ID.String() + ":" + fundReportSuffix,
			Payload:         payload,
			ConflictCode:    "fund_report_conflict",
			ConflictMessage: "fund settlement report already requested with a different payload",
		}); err != nil {
			return err
		}
	}
	return nil
}

func clonePayload(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func withPolicy(meta map[string]any, policy receivable.SplitPolicy) map[string]any {
	out := clonePayload(meta)
	out["applied_split_policy"] = policy.Metadata()
	return out
}
