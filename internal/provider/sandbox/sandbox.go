package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finlink/finlink/internal/provider"
	"github.com/google/uuid"
)

// Name is the provider name this adapter registers under.
const Name = "sandbox"

// Adapter is a deterministic in-memory provider used in tests and local
// runs. Fixture data is loaded through the setters; every method is safe for
// concurrent use.
type Adapter struct {
	mu           sync.Mutex
	sessions     map[string]string                 // sessionID -> connectionID handed out on exchange
	accounts     map[string][]provider.Account     // connectionID -> accounts
	transactions map[string][]provider.Transaction // connectionID/accountID -> transactions
	revoked      map[string]bool
	failNext     error
	failFeeds    map[string]error
	accountsGate *listGate
	redirectBase string
}

// listGate lets a test hold a ListAccounts call in flight: the adapter
// signals entered, then blocks until release. One-shot.
type listGate struct {
	entered chan<- struct{}
	release <-chan struct{}
}

// New creates an empty sandbox adapter.
func New() *Adapter {
	return &Adapter{
		sessions:     make(map[string]string),
		accounts:     make(map[string][]provider.Account),
		transactions: make(map[string][]provider.Transaction),
		revoked:      make(map[string]bool),
		failFeeds:    make(map[string]error),
		redirectBase: "https://sandbox.local/link/",
	}
}

// SeedAccounts installs the account list returned for a connection.
func (a *Adapter) SeedAccounts(connectionID string, accounts []provider.Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[connectionID] = accounts
}

// SeedTransactions installs the transaction feed for one account.
func (a *Adapter) SeedTransactions(connectionID, accountID string, txs []provider.Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transactions[connectionID+"/"+accountID] = txs
}

// FailNext makes the next adapter call return err once.
func (a *Adapter) FailNext(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = err
}

// FailAccountFeed makes the next ListTransactions call for one account
// return err, leaving sibling accounts untouched.
func (a *Adapter) FailAccountFeed(externalAccountID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failFeeds[externalAccountID] = err
}

// GateListAccounts makes the next ListAccounts call signal entered and then
// block until release is closed.
func (a *Adapter) GateListAccounts(entered chan<- struct{}, release <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accountsGate = &listGate{entered: entered, release: release}
}

// Revoked reports whether a connection was revoked provider-side.
func (a *Adapter) Revoked(connectionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revoked[connectionID]
}

func (a *Adapter) takeFailure() error {
	err := a.failNext
	a.failNext = nil
	return err
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return Name
}

// StartLinkSession opens a scripted link session.
func (a *Adapter) StartLinkSession(ctx context.Context, userID string) (*provider.LinkSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	a.sessions[sessionID] = "conn-" + sessionID
	return &provider.LinkSession{
		RedirectURL:       a.redirectBase + sessionID,
		ExternalSessionID: sessionID,
		ExpiresAt:         time.Now().Add(30 * time.Minute),
	}, nil
}

// ExchangeSession trades a session for its connection id.
func (a *Adapter) ExchangeSession(ctx context.Context, externalSessionID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return "", err
	}
	connectionID, ok := a.sessions[externalSessionID]
	if !ok {
		return "", fmt.Errorf("unknown session %q", externalSessionID)
	}
	return connectionID, nil
}

// ListAccounts returns the seeded accounts for a connection.
func (a *Adapter) ListAccounts(ctx context.Context, externalConnectionID string) ([]provider.Account, error) {
	a.mu.Lock()
	if err := a.takeFailure(); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	out := append([]provider.Account(nil), a.accounts[externalConnectionID]...)
	gate := a.accountsGate
	a.accountsGate = nil
	a.mu.Unlock()

	if gate != nil {
		gate.entered <- struct{}{}
		<-gate.release
	}
	return out, nil
}

// ListTransactions returns the seeded feed for one account, filtered by since.
func (a *Adapter) ListTransactions(ctx context.Context, externalConnectionID, externalAccountID string, since time.Time) ([]provider.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return nil, err
	}
	if err, ok := a.failFeeds[externalAccountID]; ok {
		delete(a.failFeeds, externalAccountID)
		return nil, err
	}
	all := a.transactions[externalConnectionID+"/"+externalAccountID]
	out := make([]provider.Transaction, 0, len(all))
	for _, tx := range all {
		if tx.Date.Before(since) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// Revoke marks the connection revoked provider-side.
func (a *Adapter) Revoke(ctx context.Context, externalConnectionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return err
	}
	a.revoked[externalConnectionID] = true
	return nil
}
