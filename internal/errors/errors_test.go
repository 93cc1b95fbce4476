package errors

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientFundsDetails(t *testing.T) {
	available := decimal.RequireFromString("12.5")
	required := decimal.RequireFromString("40")

	err := NewInsufficientFunds(available, required, "USD")

	assert.Equal(t, KindInsufficientFunds, err.Kind)
	assert.Equal(t, "12.5", err.Details["available"])
	assert.Equal(t, "40", err.Details["required"])
	assert.Equal(t, "USD", err.Details["code"])
	assert.Contains(t, err.Error(), "available 12.5 USD")
	assert.Contains(t, err.Error(), "required 40 USD")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"domain error", NewCurrencyNotFound("XYZ"), KindCurrencyNotFound},
		{"wrapped domain error", fmt.Errorf("trade failed: %w", NewInvalidAmount("must be positive")), KindInvalidAmount},
		{"plain error", fmt.Errorf("boom"), Kind("")},
		{"nil", nil, Kind("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewRateUnavailable("BTC", "USD", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "BTC/USD")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewInvalidCurrencyCode("x")))
	assert.True(t, IsUserError(NewNoHolding("ETH")))
	assert.True(t, IsUserError(NewAuthenticationFailed()))
	assert.False(t, IsUserError(NewStoreIO("save portfolio", fmt.Errorf("disk full"))))
	assert.False(t, IsUserError(NewRateUnavailable("EUR", "USD", nil)))
	assert.False(t, IsUserError(fmt.Errorf("boom")))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsInsufficientFunds(NewInsufficientFunds(decimal.Zero, decimal.New(1, 0), "BTC")))
	assert.False(t, IsInsufficientFunds(NewNoHolding("BTC")))
	assert.True(t, IsRateUnavailable(NewRateUnavailable("EUR", "USD", nil)))
}
