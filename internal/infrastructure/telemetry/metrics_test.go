package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	infraconfig "github.com/anticipa/backend/internal/infrastructure/config"
	"github.com/anticipa/backend/internal/infrastructure/telemetry"
)

func newManualMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "anticipa-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.Enabled())
	assert.NotNil(t, mp.Meter("settlement"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewMeterProvider_Enabled(t *testing.T) {
	original := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(original) })

	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    time.Hour,
		ServiceName:       "anticipa-test",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, mp.Enabled())

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = mp.Shutdown(shutdownCtx)
}

func TestMetricsConfigFrom(t *testing.T) {
	cfg := telemetry.MetricsConfigFrom(infraconfig.TelemetryConfig{
		Enabled:           true,
		MetricsEnabled:    true,
		CollectorEndpoint: "otel:4317",
		ServiceName:       "anticipa-backend",
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel:4317", cfg.CollectorEndpoint)
	assert.Equal(t, "anticipa-backend", cfg.ServiceName)
	assert.Zero(t, cfg.ExportInterval)
}

func TestCounterAndHistogram(t *testing.T) {
	reader, provider := newManualMeter(t)
	meter := provider.Meter("test")
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "test_counter", "Test counter", "1")
	require.NoError(t, err)
	counter.Add(ctx, 5, telemetry.AttrOperation.String("settle_payment"))
	counter.Inc(ctx, telemetry.AttrOperation.String("settle_payment"))

	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "test_duration_seconds",
		Description: "Test duration",
		Unit:        "s",
		Boundaries:  []float64{0.001, 0.01, 0.1},
	})
	require.NoError(t, err)
	histogram.Record(ctx, 0.02)
	histogram.Record(ctx, 0.002, attribute.String("table", "ledger_entries"))

	metrics := collect(t, reader)
	assert.Equal(t, int64(6), sumOf(t, metrics["test_counter"]))

	hist, ok := metrics["test_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		assert.Equal(t, []float64{0.001, 0.01, 0.1}, dp.Bounds)
	}
	assert.Equal(t, uint64(2), count)
}

func TestNewSettlementMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewSettlementMetrics(nil, nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestSettlementMetrics(t *testing.T) {
	reader, provider := newManualMeter(t)
	sm, err := telemetry.NewSettlementMetrics(provider.Meter("settlement"), nil)
	require.NoError(t, err)
	ctx := context.Background()

	sm.RecordMutation(ctx, "settle_payment", "created")
	sm.RecordMutation(ctx, "settle_payment", "replayed")
	sm.RecordMutation(ctx, "settle_payment", "conflict")
	sm.RecordSettlement(ctx, decimal.NewFromInt(100), decimal.NewFromInt(30), decimal.NewFromInt(70))
	sm.RecordLedgerPosting(ctx, "RECEIVABLE_PAYMENT_SETTLEMENT", 6)

	metrics := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, metrics["settlement_mutations_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["idempotency_conflicts_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["settlements_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_postings_total"]))
	assert.Equal(t, int64(6), sumOf(t, metrics["ledger_entries_total"]))

	paid, ok := metrics["settlement_paid_amount"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, paid.DataPoints, 1)
	assert.Equal(t, 100.0, paid.DataPoints[0].Sum)

	split, ok := metrics["settlement_obligation_amount"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, split.DataPoints, 2)
}
