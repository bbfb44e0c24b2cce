package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/persistence/persistencetest"
)

func newSettlement(tenantID, receivableID, allocationID uuid.UUID, key string, paid int64, paidAt time.Time) *receivable.PaymentSettlement {
	amount := decimal.NewFromInt(paid)
	return &receivable.PaymentSettlement{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ReceivableID:      receivableID,
		AllocationID:      allocationID,
		IdempotencyKey:    key,
		PayloadHash:       "hash-" + key,
		PaidAmount:        amount,
		PaidAt:            paidAt,
		PaymentReference:  "ref-" + key,
		TaxShareRate:      decimal.Zero,
		TaxShareAmount:    decimal.Zero,
		FundAmount:        decimal.Zero,
		BeneficiaryAmount: amount,
		FundBalanceBefore: decimal.Zero,
		FundBalanceAfter:  decimal.Zero,
		LedgerTxnID:       "txn-" + key,
		Metadata:          map[string]any{"channel": "pix"},
		CreatedAt:         time.Now().UTC(),
	}
}

func TestGormSettlementRepository_InsertIfAbsent(t *testing.T) {
	db := persistencetest.OpenSQLite(t)
	repo := NewGormSettlementRepository(db)
	ctx := context.Background()
	tenantID, receivableID, allocationID := uuid.New(), uuid.New(), uuid.New()
	paidAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	first := newSettlement(tenantID, receivableID, allocationID, "pay-1", 40, paidAt)
	inserted, err := repo.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := newSettlement(tenantID, receivableID, allocationID, "pay-1", 99, paidAt)
	inserted, err = repo.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	otherTenant := newSettlement(uuid.New(), receivableID, allocationID, "pay-1", 10, paidAt)
	inserted, err = repo.InsertIfAbsent(ctx, otherTenant)
	require.NoError(t, err)
	assert.True(t, inserted)

	found, err := repo.FindByIdempotencyKeyForUpdate(ctx, tenantID, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.True(t, found.PaidAmount.Equal(decimal.NewFromInt(40)))
	assert.True(t, found.PaidAt.Equal(paidAt))
	assert.Equal(t, "pix", found.Metadata["channel"])

	_, err = repo.FindByIdempotencyKeyForUpdate(ctx, tenantID, "pay-2")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, "settlement_not_found", shared.ErrorCode(err))
}

func TestGormSettlementRepository_Lists(t *testing.T) {
	db := persistencetest.OpenSQLite(t)
	repo := NewGormSettlementRepository(db)
	ctx := context.Background()
	tenantID, receivableID := uuid.New(), uuid.New()
	allocA, allocB := uuid.New(), uuid.New()
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	later := newSettlement(tenantID, receivableID, allocA, "pay-2", 20, day.Add(48*time.Hour))
	earlier := newSettlement(tenantID, receivableID, allocA, "pay-1", 10, day)
	other := newSettlement(tenantID, receivableID, allocB, "pay-3", 5, day.Add(time.Hour))
	for _, s := range []*receivable.PaymentSettlement{later, earlier, other} {
		_, err := repo.InsertIfAbsent(ctx, s)
		require.NoError(t, err)
	}

	byAllocation, err := repo.ListByAllocation(ctx, tenantID, allocA)
	require.NoError(t, err)
	require.Len(t, byAllocation, 2)
	assert.Equal(t, earlier.ID, byAllocation[0].ID)
	assert.Equal(t, later.ID, byAllocation[1].ID)

	byReceivable, err := repo.ListByReceivable(ctx, tenantID, receivableID)
	require.NoError(t, err)
	assert.Len(t, byReceivable, 3)

	none, err := repo.ListByReceivable(ctx, uuid.New(), receivableID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormSettlementRepository_Entries(t *testing.T) {
	db := persistencetest.OpenSQLite(t)
	repo := NewGormSettlementRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	settlementA, settlementB := uuid.New(), uuid.New()
	req1, req2, req3 := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	entry := func(settlementID, requestID uuid.UUID, amount string, offset time.Duration) *receivable.SettlementEntry {
		return &receivable.SettlementEntry{
			ID:                    uuid.New(),
			TenantID:              tenantID,
			SettlementID:          settlementID,
			AnticipationRequestID: requestID,
			SettledAmount:         decimal.RequireFromString(amount),
			CreatedAt:             now.Add(offset),
		}
	}

	require.NoError(t, repo.CreateEntries(ctx, nil))
	require.NoError(t, repo.CreateEntries(ctx, []*receivable.SettlementEntry{
		entry(settlementA, req1, "30.00", 0),
		entry(settlementA, req2, "15.00", time.Millisecond),
	}))
	require.NoError(t, repo.CreateEntries(ctx, []*receivable.SettlementEntry{
		entry(settlementB, req2, "5.00", time.Second),
		entry(settlementB, req3, "35.00", time.Second+time.Millisecond),
	}))

	t.Run("by settlement keeps insertion order", func(t *testing.T) {
		entries, err := repo.ListEntriesBySettlement(ctx, tenantID, settlementA)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, req1, entries[0].AnticipationRequestID)
		assert.Equal(t, "15.00", entries[1].SettledAmount.StringFixed(2))
	})

	t.Run("by requests", func(t *testing.T) {
		entries, err := repo.ListEntriesByRequests(ctx, tenantID, []uuid.UUID{req2})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		total := entries[0].SettledAmount.Add(entries[1].SettledAmount)
		assert.Equal(t, "20.00", total.StringFixed(2))

		entries, err = repo.ListEntriesByRequests(ctx, tenantID, nil)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("pair is unique", func(t *testing.T) {
		err := repo.CreateEntries(ctx, []*receivable.SettlementEntry{entry(settlementA, req1, "1.00", 2*time.Second)})
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
	})
}
