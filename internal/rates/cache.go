package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/logging"
	"github.com/valuta-trade/internal/models"
	"github.com/valuta-trade/internal/registry"
)

// DefaultFreshnessWindow is the maximum age at which a cached rate is used
// without refetching. A policy knob, not a correctness requirement.
const DefaultFreshnessWindow = 5 * time.Minute

// DefaultFetchTimeout bounds a single call to the quote source.
const DefaultFetchTimeout = 5 * time.Second

// Persistence stores the rate cache between process runs. Satisfied by the
// ledger store.
type Persistence interface {
	LoadRateCache(ctx context.Context) (map[string]models.RateEntry, error)
	SaveRateCache(ctx context.Context, entries map[string]models.RateEntry) error
}

// Config assembles a Cache.
type Config struct {
	Registry *registry.Registry
	Source   Source
	// Store is optional; without it the cache lives in memory only.
	Store Persistence
	// FreshnessWindow defaults to DefaultFreshnessWindow.
	FreshnessWindow time.Duration
	// FetchTimeout defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
	Logger       *logging.Logger
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Cache holds the last known price per ordered pair and decides when an
// entry is stale enough to require a refetch.
type Cache struct {
	registry *registry.Registry
	source   Source
	store    Persistence
	window   time.Duration
	timeout  time.Duration
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	loaded  bool
	entries map[string]models.RateEntry
}

// NewCache creates a rate cache.
func NewCache(cfg Config) *Cache {
	window := cfg.FreshnessWindow
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		registry: cfg.Registry,
		source:   cfg.Source,
		store:    cfg.Store,
		window:   window,
		timeout:  timeout,
		logger:   logger,
		now:      now,
		entries:  make(map[string]models.RateEntry),
	}
}

// GetRate returns the price of fromCode expressed in toCode.
//
// An identity pair short-circuits to a synthetic rate of 1 without touching
// the cache or the source. Otherwise both codes are validated against the
// registry, a fresh cached entry is returned unchanged, and a missing or
// stale entry triggers a source fetch. A fetch failure is RateUnavailable;
// a stale entry is never silently substituted.
func (c *Cache) GetRate(ctx context.Context, fromCode, toCode string) (models.RateEntry, error) {
	from := strings.ToUpper(strings.TrimSpace(fromCode))
	to := strings.ToUpper(strings.TrimSpace(toCode))

	if from == to {
		return models.RateEntry{
			FromCode:  from,
			ToCode:    to,
			Rate:      decimal.New(1, 0),
			FetchedAt: c.now(),
		}, nil
	}

	if _, err := c.registry.Lookup(from); err != nil {
		return models.RateEntry{}, err
	}
	if _, err := c.registry.Lookup(to); err != nil {
		return models.RateEntry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return models.RateEntry{}, err
	}

	key := models.PairKey(from, to)
	if entry, ok := c.entries[key]; ok && entry.Age(c.now()) <= c.window {
		c.logger.WithField("pair", key).Debug("rate cache hit")
		return entry, nil
	}

	return c.refetch(ctx, from, to)
}

// refetch asks the source for a new quote and overwrites the cache entry.
// Caller holds the mutex.
func (c *Cache) refetch(ctx context.Context, from, to string) (models.RateEntry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	quote, err := c.source.Fetch(fetchCtx, from, to)
	if err != nil {
		return models.RateEntry{}, errors.NewRateUnavailable(from, to, err)
	}
	if quote.Rate.Sign() <= 0 {
		return models.RateEntry{}, errors.NewRateUnavailable(from, to,
			fmt.Errorf("source returned non-positive rate %s", quote.Rate))
	}

	fetchedAt := quote.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = c.now()
	}
	entry := models.RateEntry{
		FromCode:  from,
		ToCode:    to,
		Rate:      quote.Rate,
		FetchedAt: fetchedAt,
	}
	c.entries[entry.Key()] = entry

	if c.store != nil {
		snapshot := make(map[string]models.RateEntry, len(c.entries))
		for k, v := range c.entries {
			snapshot[k] = v
		}
		if err := c.store.SaveRateCache(ctx, snapshot); err != nil {
			// The quote itself is good; a persistence hiccup only costs a
			// refetch after restart.
			c.logger.WithError(err).Warn("failed to persist rate cache")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"pair": entry.Key(),
		"rate": entry.Rate.String(),
	}).Info("rate refreshed from source")

	return entry, nil
}

// ensureLoaded pulls the persisted cache into memory once per process.
// Caller holds the mutex.
func (c *Cache) ensureLoaded(ctx context.Context) error {
	if c.loaded || c.store == nil {
		c.loaded = true
		return nil
	}
	entries, err := c.store.LoadRateCache(ctx)
	if err != nil {
		return errors.NewStoreIO("load rate cache", err)
	}
	for k, v := range entries {
		c.entries[k] = v
	}
	c.loaded = true
	return nil
}

// FreshnessWindow returns the configured freshness window.
func (c *Cache) FreshnessWindow() time.Duration {
	return c.window
}
