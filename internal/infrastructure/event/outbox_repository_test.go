package event

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anticipa/backend/internal/domain/shared"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return db, mock
}

func newTestEntry(tenantID uuid.UUID) *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:             uuid.New(),
		TenantID:       tenantID,
		AggregateType:  "RECEIVABLE_PAYMENT_SETTLEMENT",
		AggregateID:    uuid.New(),
		EventType:      "FUND_SETTLEMENT_REPORT_REQUESTED",
		IdempotencyKey: "s-1:fund_settlement_report",
		Payload:        map[string]any{"fund_amount": "30.00", shared.PayloadHashKey: "abc"},
		Status:         shared.OutboxStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

var insertOnConflict = regexp.QuoteMeta(`INSERT INTO "outbox_events"`) + `.*` +
	regexp.QuoteMeta(`ON CONFLICT ("tenant_id","idempotency_key") DO NOTHING`)

func TestGormOutboxRepository_InsertIfAbsent(t *testing.T) {
	t.Run("inserts new key", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormOutboxRepository(db)

		mock.ExpectExec(insertOnConflict).WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := repo.InsertIfAbsent(context.Background(), newTestEntry(uuid.New()))

		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing key inserts nothing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormOutboxRepository(db)

		mock.ExpectExec(insertOnConflict).WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := repo.InsertIfAbsent(context.Background(), newTestEntry(uuid.New()))

		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormOutboxRepository(db)

		mock.ExpectExec(insertOnConflict).WillReturnError(assert.AnError)

		inserted, err := repo.InsertIfAbsent(context.Background(), newTestEntry(uuid.New()))

		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, inserted)
	})
}

func outboxColumns() []string {
	return []string{
		"id", "tenant_id", "idempotency_key", "event_type", "aggregate_id",
		"aggregate_type", "payload", "status", "retry_count", "last_error",
		"next_retry_at", "processed_at", "created_at",
	}
}

func TestGormOutboxRepository_FindByIdempotencyKey(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormOutboxRepository(db)

		tenantID := uuid.New()
		entryID := uuid.New()
		aggID := uuid.New()
		now := time.Now().UTC()

		rows := sqlmock.NewRows(outboxColumns()).AddRow(
			entryID, tenantID, "s-1:fund_settlement_report", "FUND_SETTLEMENT_REPORT_REQUESTED", aggID,
			"RECEIVABLE_PAYMENT_SETTLEMENT", `{"fund_amount":"30.00","payload_hash":"abc"}`, "PENDING", 0, "",
			nil, nil, now,
		)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "outbox_events" WHERE tenant_id = $1 AND idempotency_key = $2`)).
			WithArgs(tenantID, "s-1:fund_settlement_report", 1).
			WillReturnRows(rows)

		entry, err := repo.FindByIdempotencyKey(context.Background(), tenantID, "s-1:fund_settlement_report")

		require.NoError(t, err)
		assert.Equal(t, entryID, entry.ID)
		assert.Equal(t, aggID, entry.AggregateID)
		assert.Equal(t, "abc", entry.PayloadHash())
		assert.Equal(t, "30.00", entry.Payload["fund_amount"])
		assert.Equal(t, shared.OutboxStatusPending, entry.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormOutboxRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "outbox_events"`)).
			WillReturnRows(sqlmock.NewRows(outboxColumns()))

		entry, err := repo.FindByIdempotencyKey(context.Background(), uuid.New(), "missing")

		assert.Nil(t, entry)
		assert.True(t, shared.IsNotFound(err))
		assert.Equal(t, "outbox_entry_not_found", shared.ErrorCode(err))
	})
}

func TestGormOutboxRepository_FindPending(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormOutboxRepository(db)

	tenantID := uuid.New()
	rows := sqlmock.NewRows(outboxColumns()).AddRow(
		uuid.New(), tenantID, "k-1", "BENEFICIARY_EXCESS_PAYOUT_REQUESTED", uuid.New(),
		"RECEIVABLE_PAYMENT_SETTLEMENT", `{}`, "PENDING", 0, "",
		nil, nil, time.Now().UTC(),
	)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "outbox_events" WHERE tenant_id = $1 AND status = $2 ORDER BY created_at ASC LIMIT $3`)).
		WithArgs(tenantID, shared.OutboxStatusPending, 10).
		WillReturnRows(rows)

	entries, err := repo.FindPending(context.Background(), tenantID, 10)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k-1", entries[0].IdempotencyKey)
	assert.Empty(t, entries[0].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}
