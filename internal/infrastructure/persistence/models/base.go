package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/domain/shared/canonical"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// modelLogger resolves the global logger on each call so ReplaceGlobals
// after package init is honoured.
func modelLogger() *zap.Logger {
	return zap.L().Named("persistence.models")
}

// encodeJSON renders a map for a jsonb column. A nil map is stored as {}.
func encodeJSON(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		modelLogger().Error("failed to encode JSON column", zap.Error(err))
		return "{}"
	}
	return string(raw)
}

// decodeJSON parses a jsonb column keeping numbers exact, so a stored payload
// fingerprints the same as the map it was written from.
func decodeJSON(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	return canonical.Decode([]byte(raw))
}

// lenientJSON decodes a descriptive column. A malformed value is logged and
// read back as an empty map.
func lenientJSON(table, column, raw string) map[string]any {
	m, err := decodeJSON(raw)
	if err != nil {
		modelLogger().Error("Malformed JSON column",
			zap.String("table", table),
			zap.String("column", column),
			zap.String("raw_json", raw),
			zap.Error(err))
		return map[string]any{}
	}
	return m
}

func money(d decimal.Decimal) decimal.Decimal {
	return valueobject.RoundMoney(d)
}

func rate(d decimal.Decimal) decimal.Decimal {
	return valueobject.RoundRate(d)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
