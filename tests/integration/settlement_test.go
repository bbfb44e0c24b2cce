package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/application/idempotency"
	ledgerapp "github.com/anticipa/backend/internal/application/ledger"
	receivableapp "github.com/anticipa/backend/internal/application/receivable"
	"github.com/anticipa/backend/internal/application/settlement"
	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/persistence"
)

// stack wires the services over the application role, as ledgerctl does
type stack struct {
	db          *TestDB
	settlements *settlement.Service
	ledger      *ledgerapp.Service
	receivables *receivableapp.Service
	tenant      uuid.UUID
}

func newStack(t *testing.T) *stack {
	tdb := NewTestDB(t)
	scope := tdb.App.TransactionScope()
	protocol := idempotency.NewProtocol(scope,
		idempotency.WithFailureLog(persistence.NewSessionTenantAuditRepository(tdb.App.DB)),
		idempotency.WithDuplicateDetector(persistence.IsUniqueViolation),
		idempotency.WithLogger(zap.NewNop()),
	)
	return &stack{
		db:          tdb,
		settlements: settlement.NewService(protocol),
		ledger:      ledgerapp.NewService(scope),
		receivables: receivableapp.NewService(protocol, scope),
		tenant:      uuid.New(),
	}
}

func (s *stack) command(key string) shared.CommandContext {
	return shared.CommandContext{
		TenantID:       s.tenant,
		IdempotencyKey: key,
		RequestID:      "req-" + key,
		Actor:          shared.Actor{ID: "svc-payments", Type: shared.ActorTypeService},
	}
}

func (s *stack) receivableWithRequest(t *testing.T, gross, requested string) uuid.UUID {
	ctx := context.Background()
	rec, err := s.receivables.CreateReceivable(ctx, s.command("rcv-"+uuid.NewString()), receivableapp.CreateReceivableRequest{
		DebtorID:      uuid.New(),
		CreditorID:    uuid.New(),
		BeneficiaryID: uuid.New(),
		GrossAmount:   decimal.RequireFromString(gross),
	})
	require.NoError(t, err)

	_, err = s.receivables.RequestAnticipation(ctx, s.command("ant-"+uuid.NewString()), receivableapp.RequestAnticipationRequest{
		ReceivableID:    rec.Receivable.ID,
		RequestedAmount: decimal.RequireFromString(requested),
	})
	require.NoError(t, err)
	return rec.Receivable.ID
}

func (s *stack) sum(t *testing.T, query string) string {
	var out string
	require.NoError(t, s.db.Owner.DB.Raw(query).Row().Scan(&out))
	return out
}

func payment(receivableID uuid.UUID, amount string) settlement.SettlePaymentRequest {
	return settlement.SettlePaymentRequest{
		ReceivableID: receivableID,
		PaidAmount:   decimal.RequireFromString(amount),
		PaidAt:       time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC),
	}
}

func TestSettle_ConcurrentRetriesOfOneKeySettleOnce(t *testing.T) {
	s := newStack(t)
	recID := s.receivableWithRequest(t, "100.00", "60.00")

	const workers = 8
	results := make([]*settlement.SettlementResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = s.settlements.Settle(context.Background(), s.command("pay-1"), payment(recID, "80.00"))
		}(i)
	}
	close(start)
	wg.Wait()

	fresh := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		if !results[i].Replayed {
			fresh++
		}
		assert.Equal(t, results[0].Settlement.ID, results[i].Settlement.ID)
		assert.Equal(t, "20.00", results[i].Settlement.BeneficiaryAmount.StringFixed(2))
	}
	assert.Equal(t, 1, fresh)

	assert.Equal(t, int64(1), s.db.Count("receivable_payment_settlements"))
	assert.Equal(t, int64(1), s.db.Count("anticipation_settlement_entries"))
	assert.Equal(t, int64(1), s.db.Count("ledger_transactions"))
	assert.Equal(t, int64(6), s.db.Count("ledger_entries"))
	assert.Equal(t, int64(2), s.db.Count("outbox_events"))
	assert.Zero(t, s.db.Count("audit_logs"))
}

func TestSettle_ConcurrentPaymentsSerializeOnReceivable(t *testing.T) {
	s := newStack(t)
	recID := s.receivableWithRequest(t, "100.00", "60.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.settlements.Settle(context.Background(), s.command(fmt.Sprintf("pay-%d", i)), payment(recID, "40.00"))
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// the obligation is settled exactly once across both payments
	assert.Equal(t, "60.00", s.sum(t, "SELECT SUM(fund_amount)::text FROM receivable_payment_settlements"))
	assert.Equal(t, "20.00", s.sum(t, "SELECT SUM(beneficiary_amount)::text FROM receivable_payment_settlements"))
	assert.Equal(t, "60.00", s.sum(t, "SELECT SUM(settled_amount)::text FROM anticipation_settlement_entries"))
	assert.Equal(t, "0.00", s.sum(t, "SELECT MIN(fund_balance_after)::text FROM receivable_payment_settlements"))
}

func TestSettle_ConflictIsLoggedUnderRowSecurity(t *testing.T) {
	s := newStack(t)
	recID := s.receivableWithRequest(t, "100.00", "60.00")
	ctx := context.Background()

	_, err := s.settlements.Settle(ctx, s.command("pay-1"), payment(recID, "80.00"))
	require.NoError(t, err)

	_, err = s.settlements.Settle(ctx, s.command("pay-1"), payment(recID, "81.00"))
	require.Error(t, err)
	assert.True(t, shared.IsIdempotencyConflict(err))

	var action, key string
	require.NoError(t, s.db.Owner.DB.Raw("SELECT action, idempotency_key FROM audit_logs").Row().Scan(&action, &key))
	assert.Equal(t, string(audit.ActionMutationFailed), action)
	assert.Equal(t, "pay-1", key)
	assert.Equal(t, int64(1), s.db.Count("receivable_payment_settlements"))
}

func TestCompensate_ThroughApplicationRole(t *testing.T) {
	s := newStack(t)
	recID := s.receivableWithRequest(t, "100.00", "60.00")
	ctx := context.Background()

	settled, err := s.settlements.Settle(ctx, s.command("pay-1"), payment(recID, "80.00"))
	require.NoError(t, err)

	req := ledgerapp.CompensateRequest{
		OriginalTxnID:         settled.Settlement.LedgerTxnID,
		CompensationTxnID:     settled.Settlement.LedgerTxnID + "-rev",
		CompensationReference: "ops-42",
		Reason:                "payment reversed by bank",
		SourceType:            string(ledger.SourceCompensation),
		SourceID:              uuid.NewString(),
		PostedAt:              time.Now().UTC(),
	}
	result, err := s.ledger.Compensate(ctx, s.tenant, shared.SystemActor, req)
	require.NoError(t, err)
	assert.False(t, result.Replayed)

	again, err := s.ledger.Compensate(ctx, s.tenant, shared.SystemActor, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)

	assert.Equal(t, int64(2), s.db.Count("ledger_transactions"))
	assert.Equal(t, int64(12), s.db.Count("ledger_entries"))
	assert.Equal(t, int64(2), s.db.Count("audit_logs"))
	assert.Equal(t,
		s.sum(t, "SELECT SUM(amount)::text FROM ledger_entries WHERE entry_side = 'DEBIT'"),
		s.sum(t, "SELECT SUM(amount)::text FROM ledger_entries WHERE entry_side = 'CREDIT'"))
}

func TestAppendOnlyTablesRejectMutation(t *testing.T) {
	s := newStack(t)
	recID := s.receivableWithRequest(t, "100.00", "60.00")
	_, err := s.settlements.Settle(context.Background(), s.command("pay-1"), payment(recID, "80.00"))
	require.NoError(t, err)

	stmts := []string{
		"UPDATE ledger_entries SET amount = amount + 1",
		"DELETE FROM ledger_transactions",
		"UPDATE receivable_payment_settlements SET fund_amount = 0, beneficiary_amount = paid_amount",
		"DELETE FROM anticipation_settlement_entries",
		"UPDATE receivable_events SET payload = '{}'::jsonb",
		"DELETE FROM anticipation_status_history",
	}
	for _, stmt := range stmts {
		t.Run(stmt, func(t *testing.T) {
			err := s.db.Owner.DB.Exec(stmt).Error
			require.Error(t, err)
			assert.Contains(t, err.Error(), "append-only")
		})
	}
	assert.Equal(t, int64(6), s.db.Count("ledger_entries"))
}

func TestLedgerBalanceIsCheckedAtCommit(t *testing.T) {
	s := newStack(t)
	tenant := uuid.New()
	now := time.Now().UTC()

	insert := func(tx *gorm.DB, txnID string, declared int, amounts map[ledger.EntrySide]string) error {
		sourceID := uuid.New()
		if err := tx.Exec(`INSERT INTO ledger_transactions
			(tenant_id, txn_id, source_type, source_id, entry_count, payload_hash, posted_at, created_at)
			VALUES (?, ?, 'MANUAL_ADJUSTMENT', ?, ?, 'h', ?, ?)`,
			tenant, txnID, sourceID, declared, now, now).Error; err != nil {
			return err
		}
		position := 0
		for _, side := range []ledger.EntrySide{ledger.Debit, ledger.Credit} {
			position++
			if err := tx.Exec(`INSERT INTO ledger_entries
				(id, tenant_id, txn_id, entry_position, txn_entry_count, account_code, entry_side, amount,
				 source_type, source_id, posted_at, created_at)
				VALUES (?, ?, ?, ?, ?, 'SETTLEMENT_CLEARING', ?, ?, 'MANUAL_ADJUSTMENT', ?, ?, ?)`,
				uuid.New(), tenant, txnID, position, declared, string(side), amounts[side], sourceID, now, now).Error; err != nil {
				return err
			}
		}
		return nil
	}

	t.Run("unbalanced", func(t *testing.T) {
		err := s.db.Owner.DB.Transaction(func(tx *gorm.DB) error {
			return insert(tx, "txn-unbalanced", 2, map[ledger.EntrySide]string{ledger.Debit: "10.00", ledger.Credit: "9.99"})
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unbalanced")
	})

	t.Run("missing entries", func(t *testing.T) {
		err := s.db.Owner.DB.Transaction(func(tx *gorm.DB) error {
			return insert(tx, "txn-short", 3, map[ledger.EntrySide]string{ledger.Debit: "10.00", ledger.Credit: "10.00"})
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declares 3 entries")
	})

	t.Run("balanced", func(t *testing.T) {
		err := s.db.Owner.DB.Transaction(func(tx *gorm.DB) error {
			return insert(tx, "txn-ok", 2, map[ledger.EntrySide]string{ledger.Debit: "10.00", ledger.Credit: "10.00"})
		})
		require.NoError(t, err)
	})

	assert.Equal(t, int64(1), s.db.Count("ledger_transactions"))
	assert.Equal(t, int64(2), s.db.Count("ledger_entries"))
}

func TestRowSecurityIsolatesTenants(t *testing.T) {
	s := newStack(t)
	s.receivableWithRequest(t, "100.00", "60.00")
	ctx := context.Background()
	app := s.db.App.DB.WithContext(ctx)

	countAs := func(tenant *uuid.UUID) int64 {
		var n int64
		require.NoError(t, app.Transaction(func(tx *gorm.DB) error {
			if tenant != nil {
				if err := persistence.SetSessionTenant(tx, *tenant); err != nil {
					return err
				}
			}
			return tx.Table("receivables").Count(&n).Error
		}))
		return n
	}

	other := uuid.New()
	assert.Equal(t, int64(1), countAs(&s.tenant))
	assert.Zero(t, countAs(&other))
	assert.Zero(t, countAs(nil))
	assert.Equal(t, int64(1), s.db.Count("receivables"))

	t.Run("writes for another tenant are refused", func(t *testing.T) {
		err := app.Transaction(func(tx *gorm.DB) error {
			if err := persistence.SetSessionTenant(tx, s.tenant); err != nil {
				return err
			}
			record := audit.NewRecord(other, audit.ActionMutationFailed, shared.SystemActor, "RECEIVABLE", uuid.NewString())
			return persistence.NewGormAuditRepository(tx).Append(ctx, record)
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row-level security")
	})

	t.Run("repository reads are scoped too", func(t *testing.T) {
		_, err := s.receivables.VerifyEventChain(ctx, other, uuid.New())
		require.Error(t, err)
		assert.True(t, shared.IsNotFound(err))
	})
}
