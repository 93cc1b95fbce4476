// Package storage provides the ledger store: durable persistence of users,
// portfolios and the rate cache behind a single interface with file, Redis
// and Postgres backends.
package storage

import (
	"context"

	"github.com/valuta-trade/internal/models"
)

// UnlockFunc releases a lock taken with Store.Lock.
type UnlockFunc func()

// Store is the persistence boundary of the trading engine.
//
// First run against an empty backing store yields empty collections, never
// an error. SavePortfolio is an atomic upsert by user ID: a reader either
// sees the portfolio as it was before the write or as it is after, nothing
// in between. Lock provides the critical section for a read-mutate-write
// trade so independent processes cannot interleave writes to the same user.
type Store interface {
	LoadUsers(ctx context.Context) ([]models.User, error)
	// FindUserByUsername returns nil without error when no such user exists.
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	// SaveUser upserts by user ID.
	SaveUser(ctx context.Context, user models.User) error

	LoadPortfolios(ctx context.Context) ([]models.Portfolio, error)
	// GetPortfolio returns nil without error when the user has no portfolio yet.
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	// SavePortfolio upserts by the portfolio's user ID.
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error

	LoadRateCache(ctx context.Context) (map[string]models.RateEntry, error)
	SaveRateCache(ctx context.Context, entries map[string]models.RateEntry) error

	// Lock acquires exclusive access for mutations affecting userID. It
	// blocks until the lock is held or ctx expires.
	Lock(ctx context.Context, userID string) (UnlockFunc, error)

	Close() error
}
