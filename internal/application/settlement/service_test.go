package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/application/idempotency"
	receivableapp "github.com/anticipa/backend/internal/application/receivable"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/persistence"
	"github.com/anticipa/backend/internal/infrastructure/persistence/persistencetest"
)

type recordingMetrics struct {
	mu          sync.Mutex
	settlements int
	postings    map[string]int
}

func (m *recordingMetrics) RecordSettlement(_ context.Context, _, _, _ decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements++
}

func (m *recordingMetrics) RecordLedgerPosting(_ context.Context, sourceType string, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings[sourceType] += entries
}

type fixture struct {
	db          *gorm.DB
	svc         *Service
	receivables *receivableapp.Service
	metrics     *recordingMetrics
	tenant      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	db := persistencetest.OpenSQLite(t)
	scope := persistence.NewGormTransactionScope(db)
	protocol := idempotency.NewProtocol(scope,
		idempotency.WithDuplicateDetector(persistence.IsUniqueViolation),
		idempotency.WithFailureLog(persistence.NewGormAuditRepository(db)),
	)
	metrics := &recordingMetrics{postings: map[string]int{}}
	return &fixture{
		db:          db,
		svc:         NewService(protocol, WithMetrics(metrics)),
		receivables: receivableapp.NewService(protocol, scope),
		metrics:     metrics,
		tenant:      uuid.New(),
	}
}

func (f *fixture) command(key string) shared.CommandContext {
	return shared.CommandContext{
		TenantID:       f.tenant,
		IdempotencyKey: key,
		RequestID:      "req-" + key,
		Actor:          shared.Actor{ID: "svc-payments", Type: shared.ActorTypeService},
	}
}

func (f *fixture) count(t *testing.T, table string) int64 {
	return persistencetest.Count(t, f.db, table)
}

func (f *fixture) createReceivable(t *testing.T, gross string, allocations ...receivableapp.AllocationInput) *receivableapp.ReceivableResult {
	res, err := f.receivables.CreateReceivable(context.Background(), f.command("rcv-"+uuid.NewString()), receivableapp.CreateReceivableRequest{
		DebtorID:      uuid.New(),
		CreditorID:    uuid.New(),
		BeneficiaryID: uuid.New(),
		GrossAmount:   decimal.RequireFromString(gross),
		Allocations:   allocations,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) requestAnticipation(t *testing.T, receivableID uuid.UUID, amount string) *receivable.AnticipationRequest {
	res, err := f.receivables.RequestAnticipation(context.Background(), f.command("ant-"+uuid.NewString()), receivableapp.RequestAnticipationRequest{
		ReceivableID:    receivableID,
		RequestedAmount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return res.Request
}

func (f *fixture) anticipationStatus(t *testing.T, id uuid.UUID) receivable.AnticipationStatus {
	ar, err := persistence.NewGormAnticipationRepository(f.db).FindByID(context.Background(), f.tenant, id)
	require.NoError(t, err)
	return ar.Status
}

func (f *fixture) outboxKeys(t *testing.T) []string {
	var keys []string
	require.NoError(t, f.db.Table("outbox_events").Order("idempotency_key").Pluck("idempotency_key", &keys).Error)
	return keys
}

func payment(receivableID uuid.UUID, amount string) SettlePaymentRequest {
	return SettlePaymentRequest{
		ReceivableID: receivableID,
		PaidAmount:   decimal.RequireFromString(amount),
		PaidAt:       time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func TestSettle_FullPaymentWithoutObligations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createReceivable(t, "100", receivableapp.AllocationInput{
		Name:             "principal",
		GrossAmount:      decimal.NewFromInt(100),
		TaxReserveAmount: decimal.NewFromInt(30),
	})

	res, err := f.svc.Settle(ctx, f.command("pay-1"), payment(rec.Receivable.ID, "100.00"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	st := res.Settlement
	assert.Equal(t, "0.30000000", st.TaxShareRate.StringFixed(8))
	assert.Equal(t, "30.00", money(st.TaxShareAmount))
	assert.Equal(t, "0.00", money(st.FundAmount))
	assert.Equal(t, "70.00", money(st.BeneficiaryAmount))
	assert.True(t, st.TaxShareAmount.Add(st.FundAmount).Add(st.BeneficiaryAmount).Equal(st.PaidAmount))
	assert.Equal(t, "pay-1", st.PaymentReference)
	assert.Empty(t, res.Entries)

	txn, err := persistence.NewGormLedgerRepository(f.db).FindTransaction(ctx, f.tenant, st.LedgerTxnID)
	require.NoError(t, err)
	require.Len(t, txn.Entries, 6)
	debits, credits := txn.Totals()
	assert.Equal(t, "200.00", money(debits))
	assert.Equal(t, "200.00", money(credits))
	assert.Equal(t, ledger.Source{Kind: ledger.SourcePaymentSettlement, ID: st.ID}, txn.Source)

	expected := []struct {
		account ledger.AccountCode
		side    ledger.EntrySide
		amount  string
	}{
		{ledger.AccountSettlementClearing, ledger.Debit, "100.00"},
		{ledger.AccountReceivableGross, ledger.Credit, "100.00"},
		{ledger.AccountTaxReserveObligation, ledger.Debit, "30.00"},
		{ledger.AccountSettlementClearing, ledger.Credit, "30.00"},
		{ledger.AccountBeneficiaryObligation, ledger.Debit, "70.00"},
		{ledger.AccountSettlementClearing, ledger.Credit, "70.00"},
	}
	for i, e := range expected {
		got := txn.Entries[i]
		assert.Equal(t, e.account, got.AccountCode, "entry %d", i+1)
		assert.Equal(t, e.side, got.Side, "entry %d", i+1)
		assert.Equal(t, e.amount, money(got.Amount), "entry %d", i+1)
		assert.Equal(t, i+1, got.EntryPosition)
		assert.Equal(t, 6, got.TxnEntryCount)
	}

	reloaded, err := persistence.NewGormReceivableRepository(f.db).FindByID(ctx, f.tenant, rec.Receivable.ID)
	require.NoError(t, err)
	assert.Equal(t, receivable.StatusSettled, reloaded.Status)
	allocations, err := persistence.NewGormAllocationRepository(f.db).ListByReceivable(ctx, f.tenant, rec.Receivable.ID)
	require.NoError(t, err)
	assert.Equal(t, receivable.AllocationStatusSettled, allocations[0].Status)

	assert.Equal(t, []string{st.ID.String() + ":beneficiary_excess_payout"}, f.outboxKeys(t))
	assert.Equal(t, int64(2), f.count(t, "receivable_events"))
	assert.Equal(t, 1, f.metrics.settlements)
	assert.Equal(t, 6, f.metrics.postings[string(ledger.SourcePaymentSettlement)])
}

func TestSettle_SplitPolicyOverridesReserveRatio(t *testing.T) {
	f := newFixture(t)
	rec := f.createReceivable(t, "100", receivableapp.AllocationInput{
		Name:             "principal",
		GrossAmount:      decimal.NewFromInt(100),
		TaxReserveAmount: decimal.NewFromInt(10),
		SplitPolicy:      &receivableapp.SplitPolicyInput{Rate: decimal.RequireFromString("0.25"), Source: "contract", PolicyID: "pol-7"},
	})

	res, err := f.svc.Settle(context.Background(), f.command("pay-1"), payment(rec.Receivable.ID, "40"))
	require.NoError(t, err)

	assert.Equal(t, "10.00", money(res.Settlement.TaxShareAmount))
	assert.Equal(t, "30.00", money(res.Settlement.BeneficiaryAmount))
	applied, ok := res.Settlement.Metadata["applied_split_policy"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pol-7", applied["policy_id"])
}

func TestSettle_WaterfallOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createReceivable(t, "200")
	first := f.requestAnticipation(t, rec.Receivable.ID, "30")
	second := f.requestAnticipation(t, rec.Receivable.ID, "20")
	third := f.requestAnticipation(t, rec.Receivable.ID, "50")

	res, err := f.svc.Settle(ctx, f.command("pay-1"), payment(rec.Receivable.ID, "45"))
	require.NoError(t, err)

	st := res.Settlement
	assert.Equal(t, "0.00", money(st.TaxShareAmount))
	assert.Equal(t, "45.00", money(st.FundAmount))
	assert.Equal(t, "0.00", money(st.BeneficiaryAmount))
	assert.Equal(t, "100.00", money(st.FundBalanceBefore))
	assert.Equal(t, "55.00", money(st.FundBalanceAfter))

	require.Len(t, res.Entries, 2)
	assert.Equal(t, first.ID, res.Entries[0].AnticipationRequestID)
	assert.Equal(t, "30.00", money(res.Entries[0].SettledAmount))
	assert.Equal(t, second.ID, res.Entries[1].AnticipationRequestID)
	assert.Equal(t, "15.00", money(res.Entries[1].SettledAmount))

	assert.Equal(t, receivable.AnticipationStatusSettled, f.anticipationStatus(t, first.ID))
	assert.Equal(t, receivable.AnticipationStatusRequested, f.anticipationStatus(t, second.ID))
	assert.Equal(t, receivable.AnticipationStatusRequested, f.anticipationStatus(t, third.ID))

	require.NotNil(t, res.LedgerTransaction)
	assert.Len(t, res.LedgerTransaction.Entries, 4)
	assert.Equal(t, []string{st.ID.String() + ":fund_settlement_report"}, f.outboxKeys(t))

	t.Run("next payment continues where the last stopped", func(t *testing.T) {
		next, err := f.svc.Settle(ctx, f.command("pay-2"), payment(rec.Receivable.ID, "40"))
		require.NoError(t, err)

		assert.Equal(t, "55.00", money(next.Settlement.FundBalanceBefore))
		assert.Equal(t, "15.00", money(next.Settlement.FundBalanceAfter))
		require.Len(t, next.Entries, 2)
		assert.Equal(t, second.ID, next.Entries[0].AnticipationRequestID)
		assert.Equal(t, "5.00", money(next.Entries[0].SettledAmount))
		assert.Equal(t, third.ID, next.Entries[1].AnticipationRequestID)
		assert.Equal(t, "35.00", money(next.Entries[1].SettledAmount))

		assert.Equal(t, receivable.AnticipationStatusSettled, f.anticipationStatus(t, second.ID))
		assert.Equal(t, receivable.AnticipationStatusRequested, f.anticipationStatus(t, third.ID))
	})
}

func TestSettle_ReplayAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createReceivable(t, "100")
	f.requestAnticipation(t, rec.Receivable.ID, "60")

	first, err := f.svc.Settle(ctx, f.command("pay-1"), payment(rec.Receivable.ID, "80"))
	require.NoError(t, err)
	require.False(t, first.Replayed)

	counts := func() []int64 {
		return []int64{
			f.count(t, "receivable_payment_settlements"),
			f.count(t, "anticipation_settlement_entries"),
			f.count(t, "ledger_entries"),
			f.count(t, "receivable_events"),
			f.count(t, "outbox_events"),
		}
	}
	before := counts()
	assert.Equal(t, int64(2), before[4])

	t.Run("identical retry replays", func(t *testing.T) {
		again, err := f.svc.Settle(ctx, f.command("pay-1"), payment(rec.Receivable.ID, "80.00"))
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, first.Settlement.ID, again.Settlement.ID)
		assert.Len(t, again.Entries, len(first.Entries))
		require.NotNil(t, again.LedgerTransaction)
		assert.Equal(t, first.Settlement.LedgerTxnID, again.LedgerTransaction.TxnID)
		assert.Equal(t, before, counts())
		assert.Equal(t, 1, f.metrics.settlements)
	})

	t.Run("different amount conflicts", func(t *testing.T) {
		_, err := f.svc.Settle(ctx, f.command("pay-1"), payment(rec.Receivable.ID, "81"))
		require.Error(t, err)
		assert.True(t, shared.IsIdempotencyConflict(err))
		assert.Equal(t, before, counts())
		assert.Equal(t, int64(1), f.count(t, "audit_logs"))
	})

	t.Run("response rendering", func(t *testing.T) {
		resp := ToSettlementResponse(first)
		assert.Equal(t, "80.00", resp.PaidAmount)
		assert.Equal(t, "60.00", resp.FundAmount)
		assert.Equal(t, "20.00", resp.BeneficiaryAmount)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "60.00", resp.Entries[0].SettledAmount)
	})
}

func TestSettle_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid commands", func(t *testing.T) {
		f := newFixture(t)
		rec := f.createReceivable(t, "100")
		tests := []struct {
			name string
			req  SettlePaymentRequest
			code string
		}{
			{"missing receivable", SettlePaymentRequest{PaidAmount: decimal.NewFromInt(1), PaidAt: time.Now()}, "receivable_id_required"},
			{"missing paid at", SettlePaymentRequest{ReceivableID: rec.Receivable.ID, PaidAmount: decimal.NewFromInt(1)}, "paid_at_required"},
			{"zero amount", payment(rec.Receivable.ID, "0.004"), "invalid_paid_amount"},
			{"unknown receivable", payment(uuid.New(), "10"), "receivable_not_found"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Settle(ctx, f.command("pay-"+tt.name), tt.req)
				require.Error(t, err)
				assert.Equal(t, tt.code, shared.ErrorCode(err))
			})
		}
		assert.Equal(t, int64(0), f.count(t, "receivable_payment_settlements"))
	})

	t.Run("several allocations require an explicit allocation", func(t *testing.T) {
		f := newFixture(t)
		rec := f.createReceivable(t, "100",
			receivableapp.AllocationInput{Name: "a", GrossAmount: decimal.NewFromInt(50)},
			receivableapp.AllocationInput{Name: "b", GrossAmount: decimal.NewFromInt(50)},
		)

		_, err := f.svc.Settle(ctx, f.command("pay-1"), payment(rec.Receivable.ID, "10"))
		require.Error(t, err)
		assert.Equal(t, "receivable_allocation_required", shared.ErrorCode(err))

		req := payment(rec.Receivable.ID, "50")
		req.AllocationID = &rec.Allocations[1].ID
		res, err := f.svc.Settle(ctx, f.command("pay-2"), req)
		require.NoError(t, err)
		assert.Equal(t, rec.Allocations[1].ID, res.Settlement.AllocationID)

		allocations, err := persistence.NewGormAllocationRepository(f.db).ListByReceivable(ctx, f.tenant, rec.Receivable.ID)
		require.NoError(t, err)
		assert.Equal(t, receivable.AllocationStatusOpen, allocations[0].Status)
		assert.Equal(t, receivable.AllocationStatusSettled, allocations[1].Status)
	})

	t.Run("allocation of another receivable", func(t *testing.T) {
		f := newFixture(t)
		rec := f.createReceivable(t, "100")
		other := f.createReceivable(t, "100")

		req := payment(rec.Receivable.ID, "10")
		req.AllocationID = &other.Allocations[0].ID
		_, err := f.svc.Settle(ctx, f.command("pay-1"), req)
		require.Error(t, err)
		assert.Equal(t, "allocation_not_found", shared.ErrorCode(err))
	})
}

func TestSettlementEntries_SkipsZeroShares(t *testing.T) {
	rec := &receivable.Receivable{DebtorID: uuid.New()}
	drafts := SettlementEntries(rec, receivable.Distribution{
		PaidAmount:        decimal.NewFromInt(25),
		FundAmount:        decimal.NewFromInt(25),
		TaxShareAmount:    decimal.Zero,
		BeneficiaryAmount: decimal.Zero,
	})

	require.Len(t, drafts, 4)
	assert.Equal(t, ledger.AccountFundObligation, drafts[2].AccountCode)
	assert.Nil(t, drafts[3].CounterpartyID)
	assert.Equal(t, rec.DebtorID, *drafts[1].CounterpartyID)
}

func TestSettlementPayload_BlankReferenceHashesAsAbsent(t *testing.T) {
	req := payment(uuid.New(), "10")
	withBlank := req
	withBlank.PaymentReference = "   "

	assert.Equal(t, SettlementPayload(req), SettlementPayload(withBlank))
	assert.Nil(t, SettlementPayload(req)["payment_reference"])
}
