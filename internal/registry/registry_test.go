package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/models"
)

func TestLookupNormalizesCase(t *testing.T) {
	r := NewWithDefaults()

	c, err := r.Lookup("btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", c.Code)
	assert.Equal(t, models.KindCrypto, c.Kind)
}

func TestLookupUnknownCode(t *testing.T) {
	r := NewWithDefaults()

	_, err := r.Lookup("XYZ")
	require.Error(t, err)
	assert.Equal(t, errors.KindCurrencyNotFound, errors.KindOf(err))
}

func TestLookupInvalidCode(t *testing.T) {
	r := NewWithDefaults()

	_, err := r.Lookup("not a code")
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidCurrencyCode, errors.KindOf(err))
}

func TestRegisterOverwrites(t *testing.T) {
	r := New()

	first, err := models.NewFiat("US Dollar", "USD", "United States")
	require.NoError(t, err)
	r.Register(first)

	second, err := models.NewFiat("Renamed Dollar", "USD", "United States")
	require.NoError(t, err)
	r.Register(second)

	got, err := r.Lookup("USD")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Dollar", got.Name)
	assert.Len(t, r.Codes(), 1)
}

func TestDefaultSeedList(t *testing.T) {
	r := NewWithDefaults()

	for _, code := range []string{"USD", "EUR", "RUB", "BTC", "ETH"} {
		_, err := r.Lookup(code)
		assert.NoError(t, err, "expected %s to be seeded", code)
	}
}
