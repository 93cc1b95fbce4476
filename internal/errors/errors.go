// Package errors defines the error taxonomy of the trading engine.
// Every fallible core operation returns one of these kinds so that the
// CLI layer can render a user-facing message per kind.
package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind identifies a category of domain error.
type Kind string

const (
	// KindInvalidCurrencyCode means a code failed syntactic validation.
	KindInvalidCurrencyCode Kind = "INVALID_CURRENCY_CODE"
	// KindCurrencyNotFound means a syntactically valid code is not registered.
	KindCurrencyNotFound Kind = "CURRENCY_NOT_FOUND"
	// KindInvalidAmount means a non-positive or otherwise unusable amount.
	KindInvalidAmount Kind = "INVALID_AMOUNT"
	// KindInvalidArgument means a request argument failed validation.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindInsufficientFunds means a withdrawal exceeded the wallet balance.
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	// KindNoHolding means a sell was attempted on a currency the user never held.
	KindNoHolding Kind = "NO_HOLDING"
	// KindRateUnavailable means no fresh quote could be obtained for a pair.
	KindRateUnavailable Kind = "RATE_UNAVAILABLE"
	// KindAuthenticationFailed means credentials did not verify.
	KindAuthenticationFailed Kind = "AUTHENTICATION_FAILED"
	// KindUserAlreadyExists means a registration collided on username.
	KindUserAlreadyExists Kind = "USER_ALREADY_EXISTS"
	// KindStoreIO means the ledger store failed to read or write.
	KindStoreIO Kind = "STORE_IO_FAILURE"
)

// DomainError carries a kind, a human-readable message and structured details.
type DomainError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewInvalidCurrencyCode creates an invalid currency code error.
func NewInvalidCurrencyCode(code string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidCurrencyCode,
		Message: fmt.Sprintf("invalid currency code %q: must be 2-5 uppercase letters", code),
		Details: map[string]interface{}{
			"code": code,
		},
	}
}

// NewCurrencyNotFound creates a currency not found error.
func NewCurrencyNotFound(code string) *DomainError {
	return &DomainError{
		Kind:    KindCurrencyNotFound,
		Message: fmt.Sprintf("currency %q is not registered", code),
		Details: map[string]interface{}{
			"code": code,
		},
	}
}

// NewInvalidAmount creates an invalid amount error.
func NewInvalidAmount(reason string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidAmount,
		Message: fmt.Sprintf("invalid amount: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewInvalidArgument creates a generic argument validation error.
func NewInvalidArgument(reason string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidArgument,
		Message: reason,
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewInsufficientFunds creates an insufficient funds error carrying the
// available balance, the required amount and the wallet currency.
func NewInsufficientFunds(available, required decimal.Decimal, code string) *DomainError {
	return &DomainError{
		Kind: KindInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds: available %s %s, required %s %s",
			available.String(), code, required.String(), code),
		Details: map[string]interface{}{
			"available": available.String(),
			"required":  required.String(),
			"code":      code,
		},
	}
}

// NewNoHolding creates an error for selling a currency with no wallet at all.
func NewNoHolding(code string) *DomainError {
	return &DomainError{
		Kind:    KindNoHolding,
		Message: fmt.Sprintf("no %s holding in portfolio", code),
		Details: map[string]interface{}{
			"code": code,
		},
	}
}

// NewRateUnavailable creates a rate unavailable error for a pair.
func NewRateUnavailable(from, to string, cause error) *DomainError {
	return &DomainError{
		Kind:    KindRateUnavailable,
		Message: fmt.Sprintf("no rate available for %s/%s", from, to),
		Details: map[string]interface{}{
			"from": from,
			"to":   to,
		},
		Cause: cause,
	}
}

// NewAuthenticationFailed creates an authentication failure error.
// The message deliberately does not say whether the username or the
// password was wrong.
func NewAuthenticationFailed() *DomainError {
	return &DomainError{
		Kind:    KindAuthenticationFailed,
		Message: "invalid username or password",
	}
}

// NewUserAlreadyExists creates a username collision error.
func NewUserAlreadyExists(username string) *DomainError {
	return &DomainError{
		Kind:    KindUserAlreadyExists,
		Message: fmt.Sprintf("username %q is already taken", username),
		Details: map[string]interface{}{
			"username": username,
		},
	}
}

// NewStoreIO creates a ledger store failure error.
func NewStoreIO(operation string, cause error) *DomainError {
	return &DomainError{
		Kind:    KindStoreIO,
		Message: fmt.Sprintf("ledger store failure during %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// KindOf returns the kind of err, or "" when err is not a DomainError.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsInsufficientFunds reports whether err is an insufficient funds error.
func IsInsufficientFunds(err error) bool {
	return IsKind(err, KindInsufficientFunds)
}

// IsRateUnavailable reports whether err is a rate unavailable error.
func IsRateUnavailable(err error) bool {
	return IsKind(err, KindRateUnavailable)
}

// IsUserError reports whether err was caused by user input rather than the
// system: such errors are rendered without a stack or cause chain.
func IsUserError(err error) bool {
	switch KindOf(err) {
	case KindInvalidCurrencyCode, KindCurrencyNotFound, KindInvalidAmount,
		KindInvalidArgument, KindInsufficientFunds, KindNoHolding,
		KindAuthenticationFailed, KindUserAlreadyExists:
		return true
	default:
		return false
	}
}
