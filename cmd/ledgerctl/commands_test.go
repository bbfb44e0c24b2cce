package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/shared"
)

func TestParseSettle(t *testing.T) {
	tenant, rec, alloc := uuid.New(), uuid.New(), uuid.New()

	parsed, err := parseSettle([]string{
		"-tenant", tenant.String(),
		"-key", "pay-1",
		"-receivable", rec.String(),
		"-allocation", alloc.String(),
		"-amount", "100.50",
		"-paid-at", "2026-05-10T12:00:00-03:00",
		"-actor", "ops@anticipa",
	})
	require.NoError(t, err)

	assert.Equal(t, tenant, parsed.Command.TenantID)
	assert.Equal(t, "pay-1", parsed.Command.IdempotencyKey)
	assert.NotEmpty(t, parsed.Command.RequestID)
	assert.Equal(t, shared.Actor{ID: "ops@anticipa", Type: shared.ActorTypeUser}, parsed.Command.Actor)
	assert.Equal(t, rec, parsed.Request.ReceivableID)
	require.NotNil(t, parsed.Request.AllocationID)
	assert.Equal(t, alloc, *parsed.Request.AllocationID)
	assert.True(t, parsed.Request.PaidAmount.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, parsed.Request.PaidAt.Equal(time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)))
}

func TestParseSettle_Defaults(t *testing.T) {
	parsed, err := parseSettle([]string{
		"-tenant", uuid.NewString(),
		"-key", "pay-2",
		"-receivable", uuid.NewString(),
		"-amount", "1",
	})
	require.NoError(t, err)
	assert.Nil(t, parsed.Request.AllocationID)
	assert.Equal(t, shared.SystemActor, parsed.Command.Actor)
	assert.WithinDuration(t, time.Now(), parsed.Request.PaidAt, time.Minute)
}

func TestParseSettle_Errors(t *testing.T) {
	tenant, rec := uuid.NewString(), uuid.NewString()
	tests := []struct {
		name string
		args []string
	}{
		{"missing tenant", []string{"-receivable", rec, "-amount", "1"}},
		{"bad tenant", []string{"-tenant", "acme", "-receivable", rec, "-amount", "1"}},
		{"missing receivable", []string{"-tenant", tenant, "-amount", "1"}},
		{"bad amount", []string{"-tenant", tenant, "-receivable", rec, "-amount", "ten"}},
		{"bad paid-at", []string{"-tenant", tenant, "-receivable", rec, "-amount", "1", "-paid-at", "yesterday"}},
		{"bad allocation", []string{"-tenant", tenant, "-receivable", rec, "-amount", "1", "-allocation", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSettle(tt.args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errUsage))
		})
	}
}

func TestParseCompensate(t *testing.T) {
	tenant := uuid.New()

	parsed, err := parseCompensate([]string{
		"-tenant", tenant.String(),
		"-original", " 01J0TXN000000000000000001 ",
		"-reference", "ops-42",
		"-reason", "duplicate payment",
	})
	require.NoError(t, err)

	assert.Equal(t, tenant, parsed.TenantID)
	assert.Equal(t, "01J0TXN000000000000000001", parsed.Request.OriginalTxnID)
	assert.NotEmpty(t, parsed.Request.CompensationTxnID)
	assert.Equal(t, string(ledger.SourceCompensation), parsed.Request.SourceType)
	_, err = uuid.Parse(parsed.Request.SourceID)
	assert.NoError(t, err)
	assert.Equal(t, "ops-42", parsed.Request.CompensationReference)

	_, err = parseCompensate([]string{"-tenant", tenant.String()})
	assert.ErrorIs(t, err, errUsage)
}

func TestToTransactionView(t *testing.T) {
	party := uuid.New()
	txn := &ledger.Transaction{
		TxnID:  "txn-1",
		Source: ledger.Source{Kind: ledger.SourcePaymentSettlement, ID: uuid.New()},
		Entries: []ledger.Entry{
			{EntryPosition: 1, AccountCode: ledger.AccountSettlementClearing, Side: ledger.Debit, Amount: decimal.RequireFromString("12.5")},
			{EntryPosition: 2, AccountCode: ledger.AccountReceivableGross, Side: ledger.Credit, Amount: decimal.RequireFromString("12.5"), CounterpartyID: &party},
		},
	}

	view := toTransactionView(txn, true)
	assert.Equal(t, "12.50", view.Debits)
	assert.Equal(t, "12.50", view.Credits)
	assert.Equal(t, "RECEIVABLE_PAYMENT_SETTLEMENT", view.SourceType)
	assert.True(t, view.Replayed)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, view))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	entries := decoded["entries"].([]any)
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].(map[string]any), "counterparty_id")
	assert.Equal(t, party.String(), entries[1].(map[string]any)["counterparty_id"])
}

func TestOperator(t *testing.T) {
	assert.Equal(t, shared.SystemActor, operator(""))
	assert.Equal(t, shared.SystemActor, operator("system"))
	assert.Equal(t, shared.ActorTypeUser, operator("alice").Type)
}
