package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anticipa/backend/internal/domain/shared"
)

func TestLedgerEntryModel_ToDomain_Metadata(t *testing.T) {
	t.Run("numbers stay exact", func(t *testing.T) {
		m := LedgerEntryModel{ID: uuid.New(), TxnID: "txn-1", MetadataJSON: `{"line": 2, "rate": 0.015}`}
		entry, err := m.ToDomain()
		require.NoError(t, err)
		assert.Equal(t, json.Number("2"), entry.Metadata["line"])
		assert.Equal(t, json.Number("0.015"), entry.Metadata["rate"])
	})

	t.Run("blank column reads as empty", func(t *testing.T) {
		m := LedgerEntryModel{ID: uuid.New(), TxnID: "txn-1"}
		entry, err := m.ToDomain()
		require.NoError(t, err)
		assert.Empty(t, entry.Metadata)
	})

	t.Run("malformed metadata is an integrity violation", func(t *testing.T) {
		m := LedgerEntryModel{ID: uuid.New(), TxnID: "txn-1", MetadataJSON: `{"line": 2`}
		_, err := m.ToDomain()
		require.Error(t, err)
		assert.True(t, shared.IsInvariantViolation(err))
		assert.Equal(t, "ledger_integrity_violation", shared.ErrorCode(err))

		header := LedgerTransactionModel{TxnID: "txn-1"}
		_, err = header.ToDomain([]LedgerEntryModel{m})
		assert.Equal(t, "ledger_integrity_violation", shared.ErrorCode(err))
	})
}

func TestLenientJSON_LogsMalformedColumn(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	m := OutboxEntryModel{ID: uuid.New(), PayloadJSON: "not json"}
	entry := m.ToDomain()
	assert.Empty(t, entry.Payload)

	require.Equal(t, 1, logs.Len())
	logged := logs.All()[0]
	assert.Equal(t, "Malformed JSON column", logged.Message)
	assert.Equal(t, "outbox_events", logged.ContextMap()["table"])
	assert.Equal(t, "payload", logged.ContextMap()["column"])
}
