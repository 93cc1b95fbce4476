// Package rates provides exchange-rate quoting: a cache with a freshness
// window in front of an external quote source.
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/models"
)

// Quote is a single price observation from a source.
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Source quotes an ordered currency pair. Implementations may block on the
// network; callers bound each call with a context deadline.
type Source interface {
	Fetch(ctx context.Context, fromCode, toCode string) (Quote, error)
}

// StaticSource serves quotes from a fixed in-memory table. It backs the
// offline demo mode and tests.
type StaticSource struct {
	quotes map[string]decimal.Decimal
	now    func() time.Time
}

// NewStaticSource creates a source over a pair-key -> rate table.
func NewStaticSource(quotes map[string]decimal.Decimal) *StaticSource {
	table := make(map[string]decimal.Decimal, len(quotes))
	for k, v := range quotes {
		table[k] = v
	}
	return &StaticSource{
		quotes: table,
		now:    time.Now,
	}
}

// DefaultQuotes returns the stock quote table used when no quote service is
// configured.
func DefaultQuotes() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"BTC_USD": decimal.RequireFromString("59337.21"),
		"USD_BTC": decimal.RequireFromString("0.00001685"),
		"ETH_USD": decimal.RequireFromString("3731.34"),
		"USD_ETH": decimal.RequireFromString("0.000268"),
		"EUR_USD": decimal.RequireFromString("1.1"),
		"USD_EUR": decimal.RequireFromString("0.909090"),
		"RUB_USD": decimal.RequireFromString("0.013"),
		"USD_RUB": decimal.RequireFromString("76.92"),
	}
}

// Set inserts or replaces a quote.
func (s *StaticSource) Set(fromCode, toCode string, rate decimal.Decimal) {
	s.quotes[models.PairKey(fromCode, toCode)] = rate
}

// Fetch returns the table entry for the pair, or an error when the pair is
// not quoted.
func (s *StaticSource) Fetch(_ context.Context, fromCode, toCode string) (Quote, error) {
	rate, ok := s.quotes[models.PairKey(fromCode, toCode)]
	if !ok {
		return Quote{}, fmt.Errorf("pair %s/%s not quoted", fromCode, toCode)
	}
	return Quote{Rate: rate, FetchedAt: s.now()}, nil
}
