package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuta-trade/internal/models"
)

func newFileStore(t *testing.T) *FileStore {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStoreEmptyCollections(t *testing.T) {
	store := newFileStore(t)
	ctx := testContext(t)

	users, err := store.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	portfolios, err := store.LoadPortfolios(ctx)
	require.NoError(t, err)
	assert.Empty(t, portfolios)

	entries, err := store.LoadRateCache(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	user, err := store.FindUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)

	portfolio, err := store.GetPortfolio(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, portfolio)
}

func TestFileStoreUserRoundTrip(t *testing.T) {
	store := newFileStore(t)
	ctx := testContext(t)

	user := models.User{
		ID:           "u-1",
		Username:     "alice",
		PasswordHash: "hash",
		Salt:         "salt",
		RegisteredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveUser(ctx, user))

	found, err := store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, user.PasswordHash, found.PasswordHash)
	assert.Equal(t, user.Salt, found.Salt)
	assert.True(t, found.RegisteredAt.Equal(user.RegisteredAt))

	// Upsert by ID replaces, it does not duplicate.
	user.PasswordHash = "rotated"
	require.NoError(t, store.SaveUser(ctx, user))

	users, err := store.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "rotated", users[0].PasswordHash)
}

func TestFileStorePortfolioRoundTrip(t *testing.T) {
	store := newFileStore(t)
	ctx := testContext(t)

	portfolio := models.NewPortfolio("u-1")
	portfolio.EnsureWallet("USD").Balance = decimal.RequireFromString("1000")
	portfolio.EnsureWallet("BTC").Balance = decimal.RequireFromString("0.01")
	require.NoError(t, store.SavePortfolio(ctx, portfolio))

	loaded, err := store.GetPortfolio(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.NotNil(t, loaded.Wallets["BTC"])
	assert.True(t, loaded.Wallets["BTC"].Balance.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, loaded.Wallets["USD"].Balance.Equal(decimal.RequireFromString("1000")))

	portfolio.Wallets["USD"].Balance = decimal.RequireFromString("500")
	require.NoError(t, store.SavePortfolio(ctx, portfolio))

	portfolios, err := store.LoadPortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, portfolios, 1)
	assert.True(t, portfolios[0].Wallets["USD"].Balance.Equal(decimal.RequireFromString("500")))
}

func TestFileStoreRateCacheRoundTrip(t *testing.T) {
	store := newFileStore(t)
	ctx := testContext(t)

	fetchedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := map[string]models.RateEntry{
		"BTC_USD": {
			FromCode:  "BTC",
			ToCode:    "USD",
			Rate:      decimal.RequireFromString("59337.21"),
			FetchedAt: fetchedAt,
		},
	}
	require.NoError(t, store.SaveRateCache(ctx, entries))

	loaded, err := store.LoadRateCache(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	entry := loaded["BTC_USD"]
	assert.Equal(t, "BTC", entry.FromCode)
	assert.Equal(t, "USD", entry.ToCode)
	assert.True(t, entry.Rate.Equal(decimal.RequireFromString("59337.21")))
	assert.True(t, entry.FetchedAt.Equal(fetchedAt))
}

func TestFileStoreLockExcludes(t *testing.T) {
	store := newFileStore(t)
	ctx := testContext(t)

	unlock, err := store.Lock(ctx, "u-1")
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = store.Lock(blocked, "u-1")
	require.Error(t, err)

	unlock()

	unlock2, err := store.Lock(ctx, "u-1")
	require.NoError(t, err)
	unlock2()
}

func TestFileStoreWriteIsAtomic(t *testing.T) {
	store := newFileStore(t)
	ctx := testContext(t)

	require.NoError(t, store.SaveRateCache(ctx, map[string]models.RateEntry{}))

	// No temp files left behind after a successful write.
	matches, err := filepath.Glob(filepath.Join(store.dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = os.Stat(filepath.Join(store.dir, ratesFile))
	assert.NoError(t, err)
}
