package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// positiveAmount generates amounts with up to 8 decimal places, the finest
// granularity traded on the platform.
func positiveAmount() gopter.Gen {
	return gen.Int64Range(1, 1_000_000_000).Map(func(units int64) decimal.Decimal {
		return decimal.New(units, -8)
	})
}

type walletOp struct {
	deposit bool
	amount  decimal.Decimal
}

func walletOps() gopter.Gen {
	opGen := gopter.CombineGens(gen.Bool(), positiveAmount()).Map(func(vals []interface{}) walletOp {
		return walletOp{deposit: vals[0].(bool), amount: vals[1].(decimal.Decimal)}
	})
	return gen.SliceOf(opGen)
}

func TestWalletBalanceNeverNegative(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("balance >= 0 after any op sequence, failed ops change nothing", prop.ForAll(
		func(ops []walletOp) bool {
			w := NewWallet("BTC")
			for _, op := range ops {
				before := w.Balance
				var err error
				if op.deposit {
					err = w.Deposit(op.amount)
				} else {
					err = w.Withdraw(op.amount)
				}
				if err != nil && !w.Balance.Equal(before) {
					return false
				}
				if w.Balance.Sign() < 0 {
					return false
				}
			}
			return true
		},
		walletOps(),
	))

	properties.TestingRun(t)
}

func TestWalletDepositWithdrawRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("deposit(x); withdraw(x) restores the balance exactly", prop.ForAll(
		func(start, x decimal.Decimal) bool {
			w := NewWallet("USD")
			if err := w.Deposit(start); err != nil {
				return false
			}
			before := w.Balance

			if err := w.Deposit(x); err != nil {
				return false
			}
			if err := w.Withdraw(x); err != nil {
				return false
			}
			return w.Balance.Equal(before)
		},
		positiveAmount(),
		positiveAmount(),
	))

	properties.TestingRun(t)
}
