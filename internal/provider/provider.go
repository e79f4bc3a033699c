package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrProviderUnavailable marks transient provider failures. Callers retry
// with backoff at the scheduling layer, never inside a single call.
var ErrProviderUnavailable = errors.New("provider unavailable")

// LinkSession is the provider-side start of an account link.
type LinkSession struct {
	RedirectURL       string
	ExternalSessionID string
	ExpiresAt         time.Time
}

// Account is the canonical shape of a provider-reported account before
// balance normalization.
type Account struct {
	ExternalID     string
	Name           string
	Currency       string
	Type           string // provider's own account-type label, e.g. "checking", "credit_card"
	RawBalance     decimal.Decimal
	SignConvention SignConvention
}

// Transaction is the canonical shape of a provider-reported transaction.
// RawAmount may be signed; RawDirection may be empty when the provider
// carries direction in the sign alone.
type Transaction struct {
	ExternalID   string
	RawAmount    decimal.Decimal
	RawDirection string
	Date         time.Time
	Description  string
}

// CallbackPayload is what a webhook push (or the polling fallback) delivers
// about a link session's progress.
type CallbackPayload struct {
	ExternalSessionID    string `json:"external_session_id"`
	ExternalConnectionID string `json:"external_connection_id"`
	Stage                string `json:"stage"` // "authorized", "denied", "error"
}

// Adapter is the capability contract every external provider integration
// must satisfy. All sign and format quirks are resolved by the adapter and
// the balance normalizer; nothing downstream knows provider conventions.
type Adapter interface {
	Name() string
	StartLinkSession(ctx context.Context, userID string) (*LinkSession, error)
	ExchangeSession(ctx context.Context, externalSessionID string) (string, error)
	ListAccounts(ctx context.Context, externalConnectionID string) ([]Account, error)
	ListTransactions(ctx context.Context, externalConnectionID, externalAccountID string, since time.Time) ([]Transaction, error)
	Revoke(ctx context.Context, externalConnectionID string) error
}

// Registry holds the configured adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for the given provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return a, nil
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
