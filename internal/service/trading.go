// Package service implements the trading operations of the platform: buying
// and selling currencies against the USD settlement wallet and valuing a
// portfolio in a base currency.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/logging"
	"github.com/valuta-trade/internal/models"
	"github.com/valuta-trade/internal/registry"
	"github.com/valuta-trade/internal/storage"
)

// settlementCode is the currency every trade settles in.
const settlementCode = "USD"

// RateProvider supplies prices. Satisfied by the rate cache.
type RateProvider interface {
	GetRate(ctx context.Context, fromCode, toCode string) (models.RateEntry, error)
}

// Store is the slice of the ledger store the trading service needs.
type Store interface {
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error
	Lock(ctx context.Context, userID string) (storage.UnlockFunc, error)
}

// TradingService executes trades against the ledger store. All dependencies
// are injected so tests can substitute any of them.
type TradingService struct {
	store    Store
	registry *registry.Registry
	rates    RateProvider
	logger   *logging.Logger
}

// NewTradingService creates a trading service. A nil logger disables logging.
func NewTradingService(store Store, reg *registry.Registry, rates RateProvider, logger *logging.Logger) *TradingService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TradingService{
		store:    store,
		registry: reg,
		rates:    rates,
		logger:   logger,
	}
}

// TradeResult describes an executed trade.
type TradeResult struct {
	UserID string
	Side   string // "BUY" or "SELL"
	Code   string
	Amount decimal.Decimal
	// Rate is the unit price of Code in USD that the trade settled at.
	Rate decimal.Decimal
	// SettledUSD is the USD amount paid (buy) or received (sell).
	SettledUSD decimal.Decimal
	// NewBalance is the Code wallet balance after the trade.
	NewBalance decimal.Decimal
	// NewUSDBalance is the USD wallet balance after the trade.
	NewUSDBalance decimal.Decimal
	ExecutedAt    time.Time
}

// Buy purchases amount units of code, paying from the USD wallet at the
// current rate. The portfolio is mutated on a clone and persisted in a
// single write, so any failure leaves the ledger untouched.
func (s *TradingService) Buy(ctx context.Context, userID, code string, amount decimal.Decimal) (*TradeResult, error) {
	normalized, err := s.checkTradeArgs(code, amount)
	if err != nil {
		return nil, err
	}

	unlock, err := s.store.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	portfolio, err := s.loadPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry, err := s.rates.GetRate(ctx, normalized, settlementCode)
	if err != nil {
		return nil, err
	}
	cost := amount.Mul(entry.Rate)

	next := portfolio.Clone()
	if err := next.EnsureWallet(settlementCode).Withdraw(cost); err != nil {
		return nil, err
	}
	if err := next.EnsureWallet(normalized).Deposit(amount); err != nil {
		return nil, err
	}

	if err := s.store.SavePortfolio(ctx, next); err != nil {
		return nil, err
	}

	result := &TradeResult{
		UserID:        userID,
		Side:          "BUY",
		Code:          normalized,
		Amount:        amount,
		Rate:          entry.Rate,
		SettledUSD:    cost,
		NewBalance:    next.Wallets[normalized].Balance,
		NewUSDBalance: next.Wallets[settlementCode].Balance,
		ExecutedAt:    entry.FetchedAt,
	}
	s.logTrade(result)
	return result, nil
}

// Sell disposes of amount units of code, crediting the USD wallet at the
// current rate. Selling a currency the user never held fails before any
// rate fetch.
func (s *TradingService) Sell(ctx context.Context, userID, code string, amount decimal.Decimal) (*TradeResult, error) {
	normalized, err := s.checkTradeArgs(code, amount)
	if err != nil {
		return nil, err
	}

	unlock, err := s.store.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	portfolio, err := s.loadPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, held := portfolio.Wallet(normalized); !held {
		return nil, errors.NewNoHolding(normalized)
	}

	entry, err := s.rates.GetRate(ctx, normalized, settlementCode)
	if err != nil {
		return nil, err
	}
	proceeds := amount.Mul(entry.Rate)

	next := portfolio.Clone()
	if err := next.Wallets[normalized].Withdraw(amount); err != nil {
		return nil, err
	}
	if err := next.EnsureWallet(settlementCode).Deposit(proceeds); err != nil {
		return nil, err
	}

	if err := s.store.SavePortfolio(ctx, next); err != nil {
		return nil, err
	}

	result := &TradeResult{
		UserID:        userID,
		Side:          "SELL",
		Code:          normalized,
		Amount:        amount,
		Rate:          entry.Rate,
		SettledUSD:    proceeds,
		NewBalance:    next.Wallets[normalized].Balance,
		NewUSDBalance: next.Wallets[settlementCode].Balance,
		ExecutedAt:    entry.FetchedAt,
	}
	s.logTrade(result)
	return result, nil
}

// Holding is one line of a portfolio view.
type Holding struct {
	Code    string
	Balance decimal.Decimal
	// Valued is false when no rate to the base currency was available; the
	// holding is then excluded from the total.
	Valued bool
	Value  decimal.Decimal
}

// PortfolioView is a portfolio valued in a base currency.
type PortfolioView struct {
	UserID   string
	BaseCode string
	Holdings []Holding
	Total    decimal.Decimal
}

// View values a user's portfolio in the base currency. Wallets without an
// available rate still appear, marked unvalued.
func (s *TradingService) View(ctx context.Context, userID, baseCode string) (*PortfolioView, error) {
	base, err := s.registry.Lookup(baseCode)
	if err != nil {
		return nil, err
	}

	portfolio, err := s.loadPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &PortfolioView{
		UserID:   userID,
		BaseCode: base.Code,
		Total:    decimal.Zero,
	}
	for _, code := range portfolio.Codes() {
		wallet := portfolio.Wallets[code]
		holding := Holding{Code: code, Balance: wallet.Balance}

		entry, err := s.rates.GetRate(ctx, code, base.Code)
		switch {
		case err == nil:
			holding.Valued = true
			holding.Value = wallet.Balance.Mul(entry.Rate)
			view.Total = view.Total.Add(holding.Value)
		case errors.IsRateUnavailable(err):
			s.logger.WithFields(map[string]interface{}{
				"user_id": userID,
				"code":    code,
				"base":    base.Code,
			}).Warn("holding excluded from total, no rate available")
		default:
			return nil, err
		}
		view.Holdings = append(view.Holdings, holding)
	}
	return view, nil
}

// GetRate exposes the price of fromCode in toCode.
func (s *TradingService) GetRate(ctx context.Context, fromCode, toCode string) (models.RateEntry, error) {
	return s.rates.GetRate(ctx, fromCode, toCode)
}

// checkTradeArgs validates the amount and the traded code. USD itself is
// not tradable, it is the side every trade settles against.
func (s *TradingService) checkTradeArgs(code string, amount decimal.Decimal) (string, error) {
	if amount.Sign() <= 0 {
		return "", errors.NewInvalidAmount("amount must be positive, got " + amount.String())
	}
	currency, err := s.registry.Lookup(code)
	if err != nil {
		return "", err
	}
	if currency.Code == settlementCode {
		return "", errors.NewInvalidArgument("USD is the settlement currency and cannot be traded against itself")
	}
	return currency.Code, nil
}

// loadPortfolio returns the stored portfolio or an empty one for users that
// have not traded yet.
func (s *TradingService) loadPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	portfolio, err := s.store.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		portfolio = models.NewPortfolio(userID)
	}
	return portfolio, nil
}

func (s *TradingService) logTrade(r *TradeResult) {
	s.logger.WithFields(map[string]interface{}{
		"user_id": r.UserID,
		"side":    r.Side,
		"code":    r.Code,
		"amount":  r.Amount.String(),
		"rate":    r.Rate.String(),
		"usd":     r.SettledUSD.String(),
	}).Info("trade executed")
}
