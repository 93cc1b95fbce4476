package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuta-trade/internal/errors"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"uppercase", "USD", "USD", false},
		{"lowercase normalized", "btc", "BTC", false},
		{"surrounding spaces trimmed", "  eth ", "ETH", false},
		{"five letters", "DOGEX", "DOGEX", false},
		{"too short", "A", "", true},
		{"too long", "ABCDEF", "", true},
		{"embedded space", "US D", "", true},
		{"digits", "US1", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindInvalidCurrencyCode, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFiat(t *testing.T) {
	c, err := NewFiat("US Dollar", "usd", "United States")
	require.NoError(t, err)

	assert.Equal(t, "USD", c.Code)
	assert.Equal(t, KindFiat, c.Kind)
	assert.Equal(t, "United States", c.IssuingCountry)
	assert.Contains(t, c.DisplayInfo(), "[FIAT] USD")

	_, err = NewFiat("", "USD", "United States")
	assert.Error(t, err)

	_, err = NewFiat("US Dollar", "USD", "")
	assert.Error(t, err)
}

func TestNewCrypto(t *testing.T) {
	c, err := NewCrypto("Bitcoin", "BTC", "SHA-256", 1.12e12)
	require.NoError(t, err)

	assert.Equal(t, "BTC", c.Code)
	assert.Equal(t, KindCrypto, c.Kind)
	assert.Equal(t, "SHA-256", c.Algorithm)
	assert.Contains(t, c.DisplayInfo(), "[CRYPTO] BTC")
	assert.Contains(t, c.DisplayInfo(), "1.12e+12")

	_, err = NewCrypto("Bitcoin", "BTC", "", 1)
	assert.Error(t, err)

	_, err = NewCrypto("Bitcoin", "BTC", "SHA-256", -1)
	assert.Error(t, err)
}

func TestPortfolioEnsureWallet(t *testing.T) {
	p := NewPortfolio("u-1")

	_, ok := p.Wallet("BTC")
	assert.False(t, ok)

	w := p.EnsureWallet("BTC")
	assert.Equal(t, "BTC", w.CurrencyCode)
	assert.True(t, w.Balance.IsZero())

	again := p.EnsureWallet("BTC")
	assert.Same(t, w, again)
	assert.Equal(t, []string{"BTC"}, p.Codes())
}

func TestPortfolioCloneIsDeep(t *testing.T) {
	p := NewPortfolio("u-1")
	require.NoError(t, p.EnsureWallet("USD").Deposit(d("1000")))

	clone := p.Clone()
	require.NoError(t, clone.EnsureWallet("USD").Withdraw(d("400")))
	clone.EnsureWallet("BTC")

	orig, _ := p.Wallet("USD")
	assert.True(t, orig.Balance.Equal(d("1000")))
	_, ok := p.Wallet("BTC")
	assert.False(t, ok)
}
