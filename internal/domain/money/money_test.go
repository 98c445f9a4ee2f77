package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_Arithmetic(t *testing.T) {
	a := MustParse("3.11", "GBP")
	b := MustParse("5.00", "GBP")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8.11").Equal(sum.Amount))
	assert.Equal(t, "GBP", sum.Currency)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.IsNegative())

	tripled := a.Mul(decimal.NewFromInt(3))
	assert.True(t, MustParse("9.33", "GBP").Equal(tripled))
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	_, err := MustParse("1", "GBP").Add(MustParse("1", "USD"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = MustParse("1", "GBP").Sub(MustParse("1", "EUR"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		money Money
		want  string
	}{
		{MustParse("3.11", "GBP"), "£3.11"},
		{MustParse("4.5", "USD"), "$4.50"},
		{MustParse("10", "EUR"), "€10.00"},
		{MustParse("7.1", "JPY"), "JPY7.10"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.money.String())
	}
}

func TestNew_DefaultCurrency(t *testing.T) {
	m := New(decimal.NewFromInt(1), "")
	assert.Equal(t, DefaultCurrency, m.Currency)
	assert.True(t, Zero("").Amount.IsZero())
}
