package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/models"
)

const (
	usersFile      = "users.json"
	portfoliosFile = "portfolios.json"
	ratesFile      = "rates.json"
	lockFile       = "ledger.lock"

	lockPollInterval = 50 * time.Millisecond
)

// FileStore persists the ledger as JSON documents in a directory. Writes go
// to a temp file in the same directory followed by a rename, so a crash
// mid-write leaves the previous document intact. Cross-process exclusion
// uses an O_EXCL lock file.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns a store
// over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStoreIO("create data directory", err)
	}
	return &FileStore{dir: dir}, nil
}

// LoadUsers reads all user records. A missing file yields an empty list.
func (s *FileStore) LoadUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.readJSON(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FindUserByUsername scans the user list for a username.
func (s *FileStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	users, err := s.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

// SaveUser upserts a user record by ID.
func (s *FileStore) SaveUser(ctx context.Context, user models.User) error {
	users, err := s.LoadUsers(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range users {
		if users[i].ID == user.ID {
			users[i] = user
			replaced = true
			break
		}
	}
	if !replaced {
		users = append(users, user)
	}
	return s.writeJSON(usersFile, users)
}

// LoadPortfolios reads all portfolios. A missing file yields an empty list.
func (s *FileStore) LoadPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	var portfolios []models.Portfolio
	if err := s.readJSON(portfoliosFile, &portfolios); err != nil {
		return nil, err
	}
	return portfolios, nil
}

// GetPortfolio returns the portfolio for a user, or nil when absent.
func (s *FileStore) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	portfolios, err := s.LoadPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	for i := range portfolios {
		if portfolios[i].UserID == userID {
			return &portfolios[i], nil
		}
	}
	return nil, nil
}

// SavePortfolio upserts a portfolio by user ID in a single atomic write of
// the portfolio document.
func (s *FileStore) SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	portfolios, err := s.LoadPortfolios(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range portfolios {
		if portfolios[i].UserID == portfolio.UserID {
			portfolios[i] = *portfolio
			replaced = true
			break
		}
	}
	if !replaced {
		portfolios = append(portfolios, *portfolio)
	}
	return s.writeJSON(portfoliosFile, portfolios)
}

// LoadRateCache reads the persisted rate cache. A missing file yields an
// empty map.
func (s *FileStore) LoadRateCache(ctx context.Context) (map[string]models.RateEntry, error) {
	entries := make(map[string]models.RateEntry)
	if err := s.readJSON(ratesFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveRateCache replaces the persisted rate cache.
func (s *FileStore) SaveRateCache(ctx context.Context, entries map[string]models.RateEntry) error {
	return s.writeJSON(ratesFile, entries)
}

// Lock takes the store-wide lock file. The grain is coarser than per-user
// but a CLI process holds it only for the span of one trade.
//
// TODO: break stale locks left behind by a crashed process (pid probe).
func (s *FileStore) Lock(ctx context.Context, userID string) (UnlockFunc, error) {
	path := filepath.Join(s.dir, lockFile)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, errors.NewStoreIO("acquire ledger lock", err)
		}

		select {
		case <-ctx.Done():
			return nil, errors.NewStoreIO("acquire ledger lock", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readJSON(name string, dest interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewStoreIO("read "+name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.NewStoreIO("decode "+name, err)
	}
	return nil
}

func (s *FileStore) writeJSON(name string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.NewStoreIO("encode "+name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.NewStoreIO("write "+name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.NewStoreIO("write "+name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.NewStoreIO("sync "+name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.NewStoreIO("close "+name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return errors.NewStoreIO("replace "+name, err)
	}
	return nil
}
