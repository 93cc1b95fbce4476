package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateEntry is the cached price for an ordered currency pair: Rate is in
// units of To per unit of From. Overwritten on every successful fetch and
// read-only between fetches.
type RateEntry struct {
	FromCode  string          `json:"fromCode"`
	ToCode    string          `json:"toCode"`
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// PairKey builds the cache key for an ordered pair, e.g. "BTC_USD".
func PairKey(fromCode, toCode string) string {
	return fmt.Sprintf("%s_%s", fromCode, toCode)
}

// Key returns the cache key of the entry.
func (e RateEntry) Key() string {
	return PairKey(e.FromCode, e.ToCode)
}

// Age returns how old the entry is at the given instant.
func (e RateEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
