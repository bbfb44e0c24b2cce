package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"100.005", "100.01"},
		{"100.004", "100"},
		{"0.005", "0.01"},
		{"29.994999", "29.99"},
		{"-0.005", "-0.01"},
		{"70", "70"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundMoney(decimal.RequireFromString(tt.in))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestRoundRate(t *testing.T) {
	got := RoundRate(decimal.RequireFromString("0.123456785"))
	assert.Equal(t, "0.12345679", got.StringFixed(RateScale))

	third := decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	assert.Equal(t, "0.33333333", RateString(third))
}

func TestParseMoney(t *testing.T) {
	t.Run("rounds on parse", func(t *testing.T) {
		d, err := ParseMoney(" 100.005 ")
		require.NoError(t, err)
		assert.Equal(t, "100.01", MoneyString(d))
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseMoney("  ")
		assert.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseMoney("1,00")
		assert.Error(t, err)
	})
}

func TestMoney(t *testing.T) {
	a := NewMoney(decimal.RequireFromString("100.00"))
	tax := a.MulRate(decimal.RequireFromString("0.3"))
	assert.Equal(t, "30.00", tax.String())
	assert.Equal(t, "70.00", a.Sub(tax).String())
	assert.True(t, a.Sub(tax).Add(tax).Equal(a))

	var scanned Money
	require.NoError(t, scanned.Scan("12.345"))
	assert.Equal(t, "12.35", scanned.String())

	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, "100.00", v)
}

func TestSumAndMin(t *testing.T) {
	sum := SumMoney(decimal.RequireFromString("30.10"), decimal.RequireFromString("20.20"))
	assert.Equal(t, "50.30", MoneyString(sum))
	assert.True(t, MinMoney(decimal.NewFromInt(5), decimal.NewFromInt(3)).Equal(decimal.NewFromInt(3)))
}
