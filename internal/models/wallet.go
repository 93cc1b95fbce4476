package models

import (
	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/errors"
)

// Wallet is a single-currency balance. The balance is never negative: any
// operation that would make it negative is rejected, not clamped. Amounts
// are decimals so a deposit/withdraw pair of the same amount restores the
// balance exactly.
type Wallet struct {
	CurrencyCode string          `json:"currencyCode"`
	Balance      decimal.Decimal `json:"balance"`
}

// NewWallet creates an empty wallet for a currency.
func NewWallet(currencyCode string) *Wallet {
	return &Wallet{
		CurrencyCode: currencyCode,
		Balance:      decimal.Zero,
	}
}

// Deposit adds amount to the balance. Amount must be positive.
func (w *Wallet) Deposit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.NewInvalidAmount("deposit amount must be positive")
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

// Withdraw removes amount from the balance. Amount must be positive and not
// exceed the balance; there is no partial withdrawal.
func (w *Wallet) Withdraw(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.NewInvalidAmount("withdrawal amount must be positive")
	}
	if amount.GreaterThan(w.Balance) {
		return errors.NewInsufficientFunds(w.Balance, amount, w.CurrencyCode)
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Clone returns an independent copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	return &Wallet{
		CurrencyCode: w.CurrencyCode,
		Balance:      w.Balance,
	}
}
