package models

import "sort"

// Portfolio is the collection of wallets belonging to one user, keyed by
// currency code. At most one wallet exists per currency; wallets appear
// lazily on the first credit of a currency never held before.
type Portfolio struct {
	UserID  string             `json:"userId"`
	Wallets map[string]*Wallet `json:"wallets"`
}

// NewPortfolio creates an empty portfolio for a user.
func NewPortfolio(userID string) *Portfolio {
	return &Portfolio{
		UserID:  userID,
		Wallets: make(map[string]*Wallet),
	}
}

// Wallet returns the wallet for a currency code, if present.
func (p *Portfolio) Wallet(currencyCode string) (*Wallet, bool) {
	w, ok := p.Wallets[currencyCode]
	return w, ok
}

// EnsureWallet returns the wallet for a currency code, creating an empty
// one if the currency has never been held.
func (p *Portfolio) EnsureWallet(currencyCode string) *Wallet {
	if w, ok := p.Wallets[currencyCode]; ok {
		return w
	}
	if p.Wallets == nil {
		p.Wallets = make(map[string]*Wallet)
	}
	w := NewWallet(currencyCode)
	p.Wallets[currencyCode] = w
	return w
}

// Codes returns the held currency codes in sorted order.
func (p *Portfolio) Codes() []string {
	codes := make([]string, 0, len(p.Wallets))
	for code := range p.Wallets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Clone returns a deep copy. Trades mutate a clone and persist it in one
// write, so a failed trade leaves the loaded portfolio untouched.
func (p *Portfolio) Clone() *Portfolio {
	wallets := make(map[string]*Wallet, len(p.Wallets))
	for code, w := range p.Wallets {
		wallets[code] = w.Clone()
	}
	return &Portfolio{
		UserID:  p.UserID,
		Wallets: wallets,
	}
}
