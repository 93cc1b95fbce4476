// Package models provides the data model of the trading platform: currencies,
// wallets, portfolios, users and cached exchange rates.
package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/valuta-trade/internal/errors"
)

// CurrencyKind tags a currency as fiat or crypto.
type CurrencyKind string

const (
	// KindFiat represents a state-issued currency.
	KindFiat CurrencyKind = "fiat"
	// KindCrypto represents a cryptocurrency.
	KindCrypto CurrencyKind = "crypto"
)

var codePattern = regexp.MustCompile(`^[A-Z]{2,5}$`)

// NormalizeCode uppercases and trims a currency code and validates its
// syntax: 2-5 uppercase letters, no embedded whitespace.
func NormalizeCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(normalized) {
		return "", errors.NewInvalidCurrencyCode(code)
	}
	return normalized, nil
}

// Currency describes a registered currency. The Kind tag selects which of
// the variant fields are meaningful: IssuingCountry for fiat, Algorithm and
// MarketCap for crypto. Immutable once registered.
type Currency struct {
	Code string       `json:"code"`
	Name string       `json:"name"`
	Kind CurrencyKind `json:"kind"`

	// Fiat only.
	IssuingCountry string `json:"issuingCountry,omitempty"`

	// Crypto only.
	Algorithm string  `json:"algorithm,omitempty"`
	MarketCap float64 `json:"marketCap,omitempty"`
}

// NewFiat creates a fiat currency.
func NewFiat(name, code, issuingCountry string) (Currency, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return Currency{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Currency{}, fmt.Errorf("currency name must not be empty")
	}
	if strings.TrimSpace(issuingCountry) == "" {
		return Currency{}, fmt.Errorf("issuing country must not be empty")
	}
	return Currency{
		Code:           normalized,
		Name:           name,
		Kind:           KindFiat,
		IssuingCountry: issuingCountry,
	}, nil
}

// NewCrypto creates a cryptocurrency.
func NewCrypto(name, code, algorithm string, marketCap float64) (Currency, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return Currency{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Currency{}, fmt.Errorf("currency name must not be empty")
	}
	if strings.TrimSpace(algorithm) == "" {
		return Currency{}, fmt.Errorf("algorithm must not be empty")
	}
	if marketCap < 0 {
		return Currency{}, fmt.Errorf("market cap must be non-negative, got %v", marketCap)
	}
	return Currency{
		Code:      normalized,
		Name:      name,
		Kind:      KindCrypto,
		Algorithm: algorithm,
		MarketCap: marketCap,
	}, nil
}

// DisplayInfo returns a one-line representation for the CLI and logs.
func (c Currency) DisplayInfo() string {
	switch c.Kind {
	case KindFiat:
		return fmt.Sprintf("[FIAT] %s - %s (issuing: %s)", c.Code, c.Name, c.IssuingCountry)
	case KindCrypto:
		mcap := fmt.Sprintf("%v", c.MarketCap)
		if c.MarketCap >= 1e6 {
			mcap = fmt.Sprintf("%.2e", c.MarketCap)
		}
		return fmt.Sprintf("[CRYPTO] %s - %s (algo: %s, mcap: %s)", c.Code, c.Name, c.Algorithm, mcap)
	default:
		return fmt.Sprintf("%s - %s", c.Code, c.Name)
	}
}
