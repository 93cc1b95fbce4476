// Package auth implements user registration and login on top of the
// ledger store. Passwords are stored as salted SHA-256 digests.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/logging"
	"github.com/valuta-trade/internal/models"
)

const (
	minPasswordLength = 4
	saltBytes         = 16
)

// startingBalance is the USD balance every new portfolio is seeded with.
var startingBalance = decimal.New(1000, 0)

// Store is the slice of the ledger store the auth service needs.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	SaveUser(ctx context.Context, user models.User) error
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error
}

// Service registers and authenticates users.
type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates an auth service. A nil logger disables logging.
func NewService(store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a new user with a seeded USD portfolio.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.NewInvalidArgument("username must not be empty")
	}
	if len(password) < minPasswordLength {
		return nil, errors.NewInvalidArgument("password must be at least 4 characters")
	}

	existing, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.NewUserAlreadyExists(username)
	}

	salt, err := newSalt()
	if err != nil {
		return nil, errors.NewStoreIO("generate salt", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		Salt:         salt,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	portfolio := models.NewPortfolio(user.ID)
	portfolio.EnsureWallet("USD").Balance = startingBalance
	if err := s.store.SavePortfolio(ctx, portfolio); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("user registered")
	return &user, nil
}

// Login verifies credentials and returns the user. The error is the same
// for an unknown username and a wrong password.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)

	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NewAuthenticationFailed()
	}

	digest := hashPassword(password, user.Salt)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(user.PasswordHash)) != 1 {
		return nil, errors.NewAuthenticationFailed()
	}

	s.logger.WithField("user_id", user.ID).Info("user logged in")
	return user, nil
}

func newSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}
