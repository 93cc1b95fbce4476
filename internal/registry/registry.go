// Package registry holds the catalog of currencies known to the platform.
// The registry is an injectable component so tests can build their own and
// several can coexist in one process.
package registry

import (
	"sync"

	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/models"
)

// Registry is a read-mostly catalog of currencies keyed by code.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]models.Currency
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		currencies: make(map[string]models.Currency),
	}
}

// NewWithDefaults creates a registry seeded with the platform's stock
// currency list.
func NewWithDefaults() *Registry {
	r := New()
	seed := []models.Currency{
		mustFiat("US Dollar", "USD", "United States"),
		mustFiat("Euro", "EUR", "Eurozone"),
		mustFiat("Russian Ruble", "RUB", "Russia"),
		mustCrypto("Bitcoin", "BTC", "SHA-256", 1.12e12),
		mustCrypto("Ethereum", "ETH", "Ethash", 3.72e11),
	}
	for _, c := range seed {
		r.Register(c)
	}
	return r
}

// Register inserts a currency, silently replacing any existing entry with
// the same code. Re-seeding is therefore idempotent.
func (r *Registry) Register(currency models.Currency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies[currency.Code] = currency
}

// ValidateCode normalizes a code to uppercase and checks its syntax.
func (r *Registry) ValidateCode(code string) (string, error) {
	return models.NormalizeCode(code)
}

// Lookup returns the currency registered under a code, normalizing case
// first. Fails with InvalidCurrencyCode on bad syntax and CurrencyNotFound
// when the code is unregistered.
func (r *Registry) Lookup(code string) (models.Currency, error) {
	normalized, err := r.ValidateCode(code)
	if err != nil {
		return models.Currency{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.currencies[normalized]
	if !ok {
		return models.Currency{}, errors.NewCurrencyNotFound(normalized)
	}
	return c, nil
}

// Codes returns all registered codes.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.currencies))
	for code := range r.currencies {
		codes = append(codes, code)
	}
	return codes
}

func mustFiat(name, code, country string) models.Currency {
	c, err := models.NewFiat(name, code, country)
	if err != nil {
		panic(err)
	}
	return c
}

func mustCrypto(name, code, algorithm string, marketCap float64) models.Currency {
	c, err := models.NewCrypto(name, code, algorithm, marketCap)
	if err != nil {
		panic(err)
	}
	return c
}
