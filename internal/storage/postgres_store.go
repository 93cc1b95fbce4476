package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/config"
	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/models"
)

// PostgresStore persists the ledger in Postgres. Upserts use
// INSERT ... ON CONFLICT and the per-user critical section is a session
// advisory lock, so concurrent processes serialize on the same user.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(cfg *config.PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, errors.NewStoreIO("parse Postgres config", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.NewStoreIO("create Postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewStoreIO("ping Postgres", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// LoadUsers returns all user records.
func (s *PostgresStore) LoadUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, password_hash, salt, registered_at FROM users ORDER BY registered_at`)
	if err != nil {
		return nil, errors.NewStoreIO("load users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.RegisteredAt); err != nil {
			return nil, errors.NewStoreIO("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreIO("iterate users", err)
	}
	return users, nil
}

// FindUserByUsername returns the user with a username, or nil when absent.
func (s *PostgresStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, salt, registered_at FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.RegisteredAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreIO("find user", err)
	}
	return &u, nil
}

// SaveUser upserts a user record by ID.
func (s *PostgresStore) SaveUser(ctx context.Context, user models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, salt, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			salt = EXCLUDED.salt
	`, user.ID, user.Username, user.PasswordHash, user.Salt, user.RegisteredAt)
	if err != nil {
		return errors.NewStoreIO("save user", err)
	}
	return nil
}

// LoadPortfolios returns all portfolios.
func (s *PostgresStore) LoadPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, wallets FROM portfolios`)
	if err != nil {
		return nil, errors.NewStoreIO("load portfolios", err)
	}
	defer rows.Close()

	var portfolios []models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		var wallets []byte
		if err := rows.Scan(&p.UserID, &wallets); err != nil {
			return nil, errors.NewStoreIO("scan portfolio", err)
		}
		if err := decodeWallets(wallets, &p); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreIO("iterate portfolios", err)
	}
	return portfolios, nil
}

// GetPortfolio returns the portfolio for a user, or nil when absent.
func (s *PostgresStore) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	var p models.Portfolio
	var wallets []byte
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, wallets FROM portfolios WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &wallets)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreIO("load portfolio", err)
	}
	if err := decodeWallets(wallets, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePortfolio upserts the portfolio as a single JSONB document write.
func (s *PostgresStore) SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	wallets, err := json.Marshal(portfolio.Wallets)
	if err != nil {
		return errors.NewStoreIO("encode portfolio", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO portfolios (user_id, wallets, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			wallets = EXCLUDED.wallets,
			updated_at = now()
	`, portfolio.UserID, wallets)
	if err != nil {
		return errors.NewStoreIO("save portfolio", err)
	}
	return nil
}

// LoadRateCache returns all persisted rate entries keyed by pair.
func (s *PostgresStore) LoadRateCache(ctx context.Context) (map[string]models.RateEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT from_code, to_code, rate, fetched_at FROM rates`)
	if err != nil {
		return nil, errors.NewStoreIO("load rate cache", err)
	}
	defer rows.Close()

	entries := make(map[string]models.RateEntry)
	for rows.Next() {
		var e models.RateEntry
		var rate string
		if err := rows.Scan(&e.FromCode, &e.ToCode, &rate, &e.FetchedAt); err != nil {
			return nil, errors.NewStoreIO("scan rate entry", err)
		}
		e.Rate, err = decimal.NewFromString(rate)
		if err != nil {
			return nil, errors.NewStoreIO("parse rate", err)
		}
		entries[e.Key()] = e
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreIO("iterate rate entries", err)
	}
	return entries, nil
}

// SaveRateCache upserts every entry by pair.
func (s *PostgresStore) SaveRateCache(ctx context.Context, entries map[string]models.RateEntry) error {
	for _, e := range entries {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rates (pair, from_code, to_code, rate, fetched_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (pair) DO UPDATE SET
				rate = EXCLUDED.rate,
				fetched_at = EXCLUDED.fetched_at
		`, e.Key(), e.FromCode, e.ToCode, e.Rate.String(), e.FetchedAt)
		if err != nil {
			return errors.NewStoreIO("save rate entry", err)
		}
	}
	return nil
}

// Lock takes a session advisory lock keyed by the user ID on a dedicated
// connection, held until the returned unlock runs.
func (s *PostgresStore) Lock(ctx context.Context, userID string) (UnlockFunc, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.NewStoreIO("acquire connection", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, userID); err != nil {
		conn.Release()
		return nil, errors.NewStoreIO("acquire user lock", err)
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, userID)
		conn.Release()
	}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func decodeWallets(data []byte, p *models.Portfolio) error {
	p.Wallets = make(map[string]*models.Wallet)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &p.Wallets); err != nil {
		return errors.NewStoreIO("decode portfolio wallets", err)
	}
	return nil
}
