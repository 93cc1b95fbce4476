package rates

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/models"
	"github.com/valuta-trade/internal/registry"
)

// fakeSource counts calls and can be told to fail.
type fakeSource struct {
	quotes map[string]decimal.Decimal
	err    error
	calls  int
	at     time.Time
}

func (f *fakeSource) Fetch(_ context.Context, from, to string) (Quote, error) {
	f.calls++
	if f.err != nil {
		return Quote{}, f.err
	}
	rate, ok := f.quotes[models.PairKey(from, to)]
	if !ok {
		return Quote{}, fmt.Errorf("pair %s/%s not quoted", from, to)
	}
	return Quote{Rate: rate, FetchedAt: f.at}, nil
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memPersistence records saves.
type memPersistence struct {
	entries map[string]models.RateEntry
	saves   int
}

func (m *memPersistence) LoadRateCache(context.Context) (map[string]models.RateEntry, error) {
	return m.entries, nil
}

func (m *memPersistence) SaveRateCache(_ context.Context, entries map[string]models.RateEntry) error {
	m.entries = entries
	m.saves++
	return nil
}

func newTestCache(t *testing.T, src Source, clk *fakeClock, store Persistence, window time.Duration) *Cache {
	t.Helper()
	return NewCache(Config{
		Registry:        registry.NewWithDefaults(),
		Source:          src,
		Store:           store,
		FreshnessWindow: window,
		Now:             clk.Now,
	})
}

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestGetRateIdentityPair(t *testing.T) {
	src := &fakeSource{}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, 5*time.Minute)

	entry, err := cache.GetRate(context.Background(), "usd", "USD")
	require.NoError(t, err)

	assert.True(t, entry.Rate.Equal(decimal.New(1, 0)))
	assert.Equal(t, t0, entry.FetchedAt)
	assert.Equal(t, 0, src.calls, "identity pair must not touch the source")
}

func TestGetRateFetchesOnMissAndPersists(t *testing.T) {
	src := &fakeSource{
		quotes: map[string]decimal.Decimal{"BTC_USD": decimal.RequireFromString("59337.21")},
		at:     t0,
	}
	clk := &fakeClock{t: t0}
	store := &memPersistence{}
	cache := newTestCache(t, src, clk, store, 5*time.Minute)

	entry, err := cache.GetRate(context.Background(), "BTC", "USD")
	require.NoError(t, err)

	assert.True(t, entry.Rate.Equal(decimal.RequireFromString("59337.21")))
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, store.saves)
	assert.Contains(t, store.entries, "BTC_USD")
}

func TestGetRateFreshHitSkipsSource(t *testing.T) {
	src := &fakeSource{
		quotes: map[string]decimal.Decimal{"ETH_USD": decimal.RequireFromString("3731.34")},
		at:     t0,
	}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, 5*time.Minute)

	first, err := cache.GetRate(context.Background(), "ETH", "USD")
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)

	second, err := cache.GetRate(context.Background(), "ETH", "USD")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first.FetchedAt, second.FetchedAt, "cached entry must be returned unchanged")
}

func TestGetRateFreshnessBoundary(t *testing.T) {
	window := 5 * time.Minute
	src := &fakeSource{
		quotes: map[string]decimal.Decimal{"BTC_USD": decimal.RequireFromString("50000")},
		at:     t0,
	}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, window)

	_, err := cache.GetRate(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	// Exactly at the window: still fresh.
	clk.Advance(window)
	_, err = cache.GetRate(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	// One second past the window: refetch.
	clk.Advance(time.Second)
	src.at = clk.Now()
	entry, err := cache.GetRate(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, clk.Now(), entry.FetchedAt)
}

func TestGetRateStaleWithFailingSource(t *testing.T) {
	// Rate fetched at T, queried at T+6m with a 5 minute window and a dead
	// source: the stale value must not come back.
	src := &fakeSource{
		quotes: map[string]decimal.Decimal{"EUR_USD": decimal.RequireFromString("1.1")},
		at:     t0,
	}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, 5*time.Minute)

	_, err := cache.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	src.err = fmt.Errorf("connection refused")

	_, err = cache.GetRate(context.Background(), "EUR", "USD")
	require.Error(t, err)
	assert.Equal(t, errors.KindRateUnavailable, errors.KindOf(err))
}

func TestGetRateUnknownPairAtSource(t *testing.T) {
	src := &fakeSource{quotes: map[string]decimal.Decimal{}, at: t0}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, 5*time.Minute)

	_, err := cache.GetRate(context.Background(), "RUB", "EUR")
	require.Error(t, err)
	assert.Equal(t, errors.KindRateUnavailable, errors.KindOf(err))
}

func TestGetRateValidatesCodes(t *testing.T) {
	src := &fakeSource{at: t0}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, 5*time.Minute)

	_, err := cache.GetRate(context.Background(), "not a code", "USD")
	assert.Equal(t, errors.KindInvalidCurrencyCode, errors.KindOf(err))

	_, err = cache.GetRate(context.Background(), "XYZ", "USD")
	assert.Equal(t, errors.KindCurrencyNotFound, errors.KindOf(err))

	_, err = cache.GetRate(context.Background(), "USD", "XYZ")
	assert.Equal(t, errors.KindCurrencyNotFound, errors.KindOf(err))

	assert.Equal(t, 0, src.calls, "validation failures must not reach the source")
}

func TestGetRateLoadsPersistedCache(t *testing.T) {
	store := &memPersistence{
		entries: map[string]models.RateEntry{
			"BTC_USD": {
				FromCode:  "BTC",
				ToCode:    "USD",
				Rate:      decimal.RequireFromString("50000"),
				FetchedAt: t0,
			},
		},
	}
	src := &fakeSource{at: t0}
	clk := &fakeClock{t: t0.Add(time.Minute)}
	cache := newTestCache(t, src, clk, store, 5*time.Minute)

	entry, err := cache.GetRate(context.Background(), "BTC", "USD")
	require.NoError(t, err)

	assert.True(t, entry.Rate.Equal(decimal.RequireFromString("50000")))
	assert.Equal(t, 0, src.calls, "persisted fresh entry must satisfy the query")
}

func TestGetRateRejectsNonPositiveRate(t *testing.T) {
	src := &fakeSource{
		quotes: map[string]decimal.Decimal{"BTC_USD": decimal.Zero},
		at:     t0,
	}
	clk := &fakeClock{t: t0}
	cache := newTestCache(t, src, clk, nil, 5*time.Minute)

	_, err := cache.GetRate(context.Background(), "BTC", "USD")
	require.Error(t, err)
	assert.Equal(t, errors.KindRateUnavailable, errors.KindOf(err))
}

func TestStaticSourceDefaults(t *testing.T) {
	src := NewStaticSource(DefaultQuotes())

	quote, err := src.Fetch(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("59337.21")))

	_, err = src.Fetch(context.Background(), "BTC", "EUR")
	assert.Error(t, err)
}
