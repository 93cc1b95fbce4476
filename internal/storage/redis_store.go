package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/valuta-trade/internal/config"
	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/models"
)

const (
	redisUsersKey      = "ledger:users"      // hash: user id -> user json
	redisUsernamesKey  = "ledger:usernames"  // hash: username -> user id
	redisPortfoliosKey = "ledger:portfolios" // hash: user id -> portfolio json
	redisRatesKey      = "ledger:rates"      // hash: pair -> rate entry json

	redisLockTTL          = 30 * time.Second
	redisLockPollInterval = 50 * time.Millisecond
)

// unlockScript deletes the lock only when it still carries our token, so an
// expired lock reacquired by another process is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore persists the ledger in Redis hashes, one hash per collection.
// Record-level upserts are single HSET calls and therefore atomic.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewStoreIO("connect to Redis", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// LoadUsers returns all user records.
func (s *RedisStore) LoadUsers(ctx context.Context) ([]models.User, error) {
	raw, err := s.client.HVals(ctx, redisUsersKey).Result()
	if err != nil {
		return nil, errors.NewStoreIO("load users", err)
	}
	users := make([]models.User, 0, len(raw))
	for _, item := range raw {
		var u models.User
		if err := json.Unmarshal([]byte(item), &u); err != nil {
			return nil, errors.NewStoreIO("decode user", err)
		}
		users = append(users, u)
	}
	return users, nil
}

// FindUserByUsername resolves a username through the username index hash.
func (s *RedisStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	id, err := s.client.HGet(ctx, redisUsernamesKey, username).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreIO("resolve username", err)
	}

	raw, err := s.client.HGet(ctx, redisUsersKey, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreIO("load user", err)
	}

	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, errors.NewStoreIO("decode user", err)
	}
	return &u, nil
}

// SaveUser upserts the user record and its username index entry.
func (s *RedisStore) SaveUser(ctx context.Context, user models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return errors.NewStoreIO("encode user", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisUsersKey, user.ID, data)
	pipe.HSet(ctx, redisUsernamesKey, user.Username, user.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStoreIO("save user", err)
	}
	return nil
}

// LoadPortfolios returns all portfolios.
func (s *RedisStore) LoadPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	raw, err := s.client.HVals(ctx, redisPortfoliosKey).Result()
	if err != nil {
		return nil, errors.NewStoreIO("load portfolios", err)
	}
	portfolios := make([]models.Portfolio, 0, len(raw))
	for _, item := range raw {
		var p models.Portfolio
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, errors.NewStoreIO("decode portfolio", err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, nil
}

// GetPortfolio returns the portfolio for a user, or nil when absent.
func (s *RedisStore) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	raw, err := s.client.HGet(ctx, redisPortfoliosKey, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreIO("load portfolio", err)
	}
	var p models.Portfolio
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errors.NewStoreIO("decode portfolio", err)
	}
	return &p, nil
}

// SavePortfolio upserts the portfolio document in one HSET.
func (s *RedisStore) SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	data, err := json.Marshal(portfolio)
	if err != nil {
		return errors.NewStoreIO("encode portfolio", err)
	}
	if err := s.client.HSet(ctx, redisPortfoliosKey, portfolio.UserID, data).Err(); err != nil {
		return errors.NewStoreIO("save portfolio", err)
	}
	return nil
}

// LoadRateCache returns all persisted rate entries keyed by pair.
func (s *RedisStore) LoadRateCache(ctx context.Context) (map[string]models.RateEntry, error) {
	raw, err := s.client.HGetAll(ctx, redisRatesKey).Result()
	if err != nil {
		return nil, errors.NewStoreIO("load rate cache", err)
	}
	entries := make(map[string]models.RateEntry, len(raw))
	for pair, item := range raw {
		var e models.RateEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, errors.NewStoreIO("decode rate entry", err)
		}
		entries[pair] = e
	}
	return entries, nil
}

// SaveRateCache replaces the persisted rate cache.
func (s *RedisStore) SaveRateCache(ctx context.Context, entries map[string]models.RateEntry) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisRatesKey)
	for pair, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return errors.NewStoreIO("encode rate entry", err)
		}
		pipe.HSet(ctx, redisRatesKey, pair, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStoreIO("save rate cache", err)
	}
	return nil
}

// Lock takes a per-user SET NX lock with a TTL guarding against crashed
// holders.
func (s *RedisStore) Lock(ctx context.Context, userID string) (UnlockFunc, error) {
	key := "ledger:lock:" + userID
	token := uuid.New().String()

	for {
		ok, err := s.client.SetNX(ctx, key, token, redisLockTTL).Result()
		if err != nil {
			return nil, errors.NewStoreIO("acquire user lock", err)
		}
		if ok {
			return func() {
				_, _ = unlockScript.Run(context.Background(), s.client, []string{key}, token).Result()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.NewStoreIO("acquire user lock", ctx.Err())
		case <-time.After(redisLockPollInterval):
		}
	}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
