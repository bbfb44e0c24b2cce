package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	infraconfig "github.com/anticipa/backend/internal/infrastructure/config"
)

type tracedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func setupRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingConfigFrom(t *testing.T) {
	t.Run("requires tracing enabled", func(t *testing.T) {
		cfg := DBTracingConfigFrom(infraconfig.TelemetryConfig{DBTraceEnabled: true})
		assert.False(t, cfg.Enabled)
	})

	t.Run("carries threshold", func(t *testing.T) {
		cfg := DBTracingConfigFrom(infraconfig.TelemetryConfig{
			Enabled:           true,
			DBTraceEnabled:    true,
			DBSlowQueryThresh: 50 * time.Millisecond,
		})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, 50*time.Millisecond, cfg.SlowQueryThresh)
	})
}

func TestNewDBTracingPlugin_FillsDefaults(t *testing.T) {
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, nil)

	assert.Equal(t, 200*time.Millisecond, plugin.config.SlowQueryThresh)
	assert.Equal(t, "postgresql", plugin.config.DBSystem)
	assert.NotNil(t, plugin.logger)
}

func TestDBTracingPlugin_RegisterOtelGorm(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		db := setupTestDB(t)
		assert.NoError(t, NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop()).RegisterOtelGorm(db))
	})

	t.Run("enabled registers callbacks", func(t *testing.T) {
		db := setupTestDB(t)
		plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop())
		require.NoError(t, plugin.RegisterOtelGorm(db))

		require.NoError(t, db.Create(&tracedRow{Name: "clearing"}).Error)
		var rows []tracedRow
		require.NoError(t, db.Find(&rows).Error)
		assert.Len(t, rows, 1)
	})

	t.Run("double registration fails", func(t *testing.T) {
		db := setupTestDB(t)
		plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop())
		require.NoError(t, plugin.RegisterOtelGorm(db))
		assert.Error(t, plugin.RegisterOtelGorm(db))
	})
}

func TestAfterQuery_MarksSlowQuery(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&tracedRow{Name: "receivable"}).Error)

	tp, sr := setupRecorder(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "slow-query")
	ctx = WithQueryStartTime(ctx)
	time.Sleep(2 * time.Millisecond)

	var row tracedRow
	tx := db.WithContext(ctx).First(&row)
	require.NoError(t, tx.Error)

	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond}, zap.NewNop())
	plugin.afterQuery(tx)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, true, attrs["db.slow_query"])
	assert.Equal(t, "traced_rows", attrs["db.sql.table"])
	assert.Equal(t, int64(1), attrs["db.rows_affected"])
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "slow_query_warning", spans[0].Events()[0].Name)
}

func TestAfterQuery_ErrorStatus(t *testing.T) {
	db := setupTestDB(t)
	tp, sr := setupRecorder(t)
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())

	t.Run("record not found is not an error", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "not-found")
		var row tracedRow
		tx := db.WithContext(ctx).First(&row, 99999)
		require.ErrorIs(t, tx.Error, gorm.ErrRecordNotFound)

		plugin.afterQuery(tx)
		span.End()

		ended := sr.Ended()
		assert.NotEqual(t, codes.Error, ended[len(ended)-1].Status().Code)
	})

	t.Run("query failure marks the span", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "failure")
		var rows []tracedRow
		tx := db.WithContext(ctx).Table("missing_table").Find(&rows)
		require.Error(t, tx.Error)

		plugin.afterQuery(tx)
		span.End()

		ended := sr.Ended()
		assert.Equal(t, codes.Error, ended[len(ended)-1].Status().Code)
	})
}

func TestAfterQuery_IgnoresNonRecordingSpan(t *testing.T) {
	db := setupTestDB(t)
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())

	var rows []tracedRow
	tx := db.WithContext(context.Background()).Find(&rows)
	assert.NotPanics(t, func() { plugin.afterQuery(tx) })
}

func TestWithQueryStartTime(t *testing.T) {
	ctx := WithQueryStartTime(context.Background())

	startTime, ok := ctx.Value(queryStartTimeKey).(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), startTime, time.Second)
}
