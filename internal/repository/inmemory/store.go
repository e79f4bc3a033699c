package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
	"github.com/shopspring/decimal"
)

// Store is a mutex-guarded in-memory implementation of service.Store, used
// by tests and sandbox runs. Reads return copies so callers never alias
// stored state.
type Store struct {
	mu            sync.Mutex
	connections   map[string]*models.Connection
	accounts      map[string]*models.Account
	transactions  map[string]*models.Transaction
	liabilities   map[string]*models.Liability
	installments  map[string]*models.Installment
	scheduled     map[string]*models.ScheduledTransaction
	suggestions   map[string]*models.TransferSuggestion
	categories    map[string]*models.Category
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		connections:  make(map[string]*models.Connection),
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
		liabilities:  make(map[string]*models.Liability),
		installments: make(map[string]*models.Installment),
		scheduled:    make(map[string]*models.ScheduledTransaction),
		suggestions:  make(map[string]*models.TransferSuggestion),
		categories:   make(map[string]*models.Category),
	}
}

func cloneConnection(c *models.Connection) *models.Connection {
	out := *c
	return &out
}

func cloneAccount(a *models.Account) *models.Account {
	out := *a
	return &out
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	out := *t
	return &out
}

func cloneLiability(l *models.Liability) *models.Liability {
	out := *l
	return &out
}

func cloneInstallment(i *models.Installment) *models.Installment {
	out := *i
	return &out
}

func cloneScheduled(s *models.ScheduledTransaction) *models.ScheduledTransaction {
	out := *s
	return &out
}

func cloneSuggestion(s *models.TransferSuggestion) *models.TransferSuggestion {
	out := *s
	return &out
}

// --- Connections ---

func (s *Store) CreateConnection(ctx context.Context, c *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.connections[c.ID]; exists {
		return fmt.Errorf("connection %s already exists", c.ID)
	}
	s.connections[c.ID] = cloneConnection(c)
	return nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", service.ErrNotFound, id)
	}
	return cloneConnection(c), nil
}

func (s *Store) FindConnectionBySession(ctx context.Context, providerName, fingerprint string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.Provider == providerName && c.SessionFingerprint == fingerprint {
			return cloneConnection(c), nil
		}
	}
	return nil, fmt.Errorf("%w: connection for session", service.ErrNotFound)
}

func (s *Store) TransitionConnection(ctx context.Context, id string, fn func(*models.Connection) error) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", service.ErrNotFound, id)
	}
	draft := cloneConnection(c)
	if err := fn(draft); err != nil {
		return nil, err
	}
	// Enforce the authorized-connection uniqueness invariant.
	if draft.State == models.ConnectionAuthorized && draft.ExternalConnectionID != "" {
		for _, other := range s.connections {
			if other.ID == draft.ID || other.State == models.ConnectionRevoked {
				continue
			}
			if other.UserID == draft.UserID && other.Provider == draft.Provider &&
				other.ExternalConnectionID == draft.ExternalConnectionID {
				return nil, fmt.Errorf("%w: external connection %s already linked", service.ErrConnectionConflict, draft.ExternalConnectionID)
			}
		}
	}
	draft.UpdatedAt = time.Now()
	s.connections[id] = draft
	return cloneConnection(draft), nil
}

func (s *Store) ListConnectionsByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Connection
	for _, c := range s.connections {
		if c.UserID == userID {
			out = append(out, cloneConnection(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListExpiredPending(ctx context.Context, asOf time.Time) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Connection
	for _, c := range s.connections {
		if c.State == models.ConnectionPending && c.ExpiresAt.Before(asOf) {
			out = append(out, cloneConnection(c))
		}
	}
	return out, nil
}

func (s *Store) ListConnectionsDueForSync(ctx context.Context, asOf time.Time) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Connection
	for _, c := range s.connections {
		if c.State == models.ConnectionAuthorized && !c.NextSyncAt.After(asOf) {
			out = append(out, cloneConnection(c))
		}
	}
	return out, nil
}

// --- Accounts ---

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[a.ID]; exists {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *Store) UpsertProviderAccount(ctx context.Context, a *models.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.ConnectionID == a.ConnectionID && existing.ExternalAccountID == a.ExternalAccountID {
			// Provider-sourced fields refresh; user-configured fields stay.
			existing.Name = a.Name
			existing.Currency = a.Currency
			existing.Nature = a.Nature
			existing.Balance = a.Balance
			existing.UpdatedAt = time.Now()
			a.ID = existing.ID
			a.StatementDay = existing.StatementDay
			a.DueDay = existing.DueDay
			a.Manual = existing.Manual
			return false, nil
		}
	}
	s.accounts[a.ID] = cloneAccount(a)
	return true, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", service.ErrNotFound, id)
	}
	return cloneAccount(a), nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("%w: account %s", service.ErrNotFound, a.ID)
	}
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListAccountsByConnection(ctx context.Context, connectionID string) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.ConnectionID == connectionID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) MarkConnectionAccounts(ctx context.Context, connectionID string, status models.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ConnectionID == connectionID {
			a.SyncStatus = status
			a.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *Store) ListBillingAccounts(ctx context.Context) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.Nature == models.NatureLiability && a.StatementDay > 0 {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

// --- Transactions ---

func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[t.ID]; exists {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", service.ErrNotFound, id)
	}
	return cloneTransaction(t), nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; !ok {
		return fmt.Errorf("%w: transaction %s", service.ErrNotFound, t.ID)
	}
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (s *Store) UpsertTransactionBatch(ctx context.Context, accountID string, txs []*models.Transaction) ([]string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// All-or-nothing per account: validate the whole batch first.
	for _, t := range txs {
		if t.AccountID != accountID {
			return nil, 0, fmt.Errorf("transaction %s does not belong to account %s", t.ID, accountID)
		}
		if err := t.Validate(); err != nil {
			return nil, 0, err
		}
	}

	byExternal := make(map[string]*models.Transaction)
	for _, existing := range s.transactions {
		if existing.AccountID == accountID && existing.ExternalTransactionID != "" {
			byExternal[existing.ExternalTransactionID] = existing
		}
	}

	var inserted []string
	updated := 0
	for _, t := range txs {
		if existing, ok := byExternal[t.ExternalTransactionID]; ok {
			// Refresh provider-sourced fields; user edits and classification
			// survive a re-sync.
			existing.Amount = t.Amount
			existing.Direction = t.Direction
			existing.Date = t.Date
			existing.Description = t.Description
			existing.UpdatedAt = time.Now()
			updated++
			continue
		}
		s.transactions[t.ID] = cloneTransaction(t)
		inserted = append(inserted, t.ID)
	}
	return inserted, updated, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, t := range s.transactions {
		if t.AccountID != accountID {
			continue
		}
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		if !to.IsZero() && t.Date.After(to) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListTransactionsByIDs(ctx context.Context, ids []string) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Transaction, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok {
			out = append(out, cloneTransaction(t))
		}
	}
	return out, nil
}

func (s *Store) FindTransferCandidates(ctx context.Context, userID, excludeAccountID string, amount decimal.Decimal, direction models.Direction, from, to time.Time) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, t := range s.transactions {
		if t.AccountID == excludeAccountID || t.Direction != direction || t.Grouped() {
			continue
		}
		if t.FlowType != models.FlowExpense && t.FlowType != models.FlowIncome {
			continue
		}
		if t.LiabilityID != "" {
			continue
		}
		if !t.Amount.Equal(amount) || t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		account, ok := s.accounts[t.AccountID]
		if !ok || account.OwnerID != userID {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	return out, nil
}

func (s *Store) LinkTransferPair(ctx context.Context, groupID, sourceID, destinationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.transactions[sourceID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", service.ErrNotFound, sourceID)
	}
	destination, ok := s.transactions[destinationID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", service.ErrNotFound, destinationID)
	}
	if source.Grouped() || destination.Grouped() {
		return fmt.Errorf("a transaction already belongs to a transfer group")
	}
	now := time.Now()
	source.FlowType = models.FlowTransfer
	source.TransferGroupID = groupID
	source.TransferRole = models.TransferSource
	source.UpdatedAt = now
	destination.FlowType = models.FlowTransfer
	destination.TransferGroupID = groupID
	destination.TransferRole = models.TransferDestination
	destination.UpdatedAt = now
	return nil
}

func (s *Store) ListTransferGroup(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, t := range s.transactions {
		if t.TransferGroupID == groupID {
			out = append(out, cloneTransaction(t))
		}
	}
	return out, nil
}

func (s *Store) UnlinkTransferGroup(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	now := time.Now()
	for _, t := range s.transactions {
		if t.TransferGroupID != groupID {
			continue
		}
		t.TransferGroupID = ""
		t.TransferRole = ""
		if !t.FlowTypeOverridden {
			t.FlowType = models.DefaultFlowType(t.Direction)
		}
		t.UpdatedAt = now
		out = append(out, cloneTransaction(t))
	}
	return out, nil
}

func (s *Store) SumExpensesByCategory(ctx context.Context, userID string, categoryIDs []string, from, to time.Time) (decimal.Decimal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = true
	}
	total := decimal.Zero
	count := 0
	for _, t := range s.transactions {
		if t.FlowType != models.FlowExpense || !wanted[t.CategoryID] {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		account, ok := s.accounts[t.AccountID]
		if !ok || account.OwnerID != userID {
			continue
		}
		total = total.Add(t.Amount)
		count++
	}
	return total, count, nil
}

func (s *Store) MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	income := decimal.Zero
	expense := decimal.Zero
	for _, t := range s.transactions {
		if t.Date.Before(from) || !t.Date.Before(to) {
			continue
		}
		account, ok := s.accounts[t.AccountID]
		if !ok || account.OwnerID != userID {
			continue
		}
		switch t.FlowType {
		case models.FlowIncome:
			income = income.Add(t.Amount)
		case models.FlowExpense:
			expense = expense.Add(t.Amount)
		}
	}
	return income, expense, nil
}

// --- Liabilities and installments ---

func (s *Store) CreateLiability(ctx context.Context, l *models.Liability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.liabilities[l.ID]; exists {
		return fmt.Errorf("liability %s already exists", l.ID)
	}
	s.liabilities[l.ID] = cloneLiability(l)
	return nil
}

func (s *Store) GetLiability(ctx context.Context, id string) (*models.Liability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.liabilities[id]
	if !ok {
		return nil, fmt.Errorf("%w: liability %s", service.ErrNotFound, id)
	}
	return cloneLiability(l), nil
}

func (s *Store) UpdateLiability(ctx context.Context, l *models.Liability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liabilities[l.ID]; !ok {
		return fmt.Errorf("%w: liability %s", service.ErrNotFound, l.ID)
	}
	s.liabilities[l.ID] = cloneLiability(l)
	return nil
}

func (s *Store) ListLiabilitiesByOwner(ctx context.Context, ownerID string) ([]*models.Liability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Liability
	for _, l := range s.liabilities {
		if l.OwnerID == ownerID {
			out = append(out, cloneLiability(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListOpenLiabilities(ctx context.Context, ownerID string) ([]*models.Liability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Liability
	for _, l := range s.liabilities {
		if l.OwnerID == ownerID && l.Status == models.LiabilityOpen {
			out = append(out, cloneLiability(l))
		}
	}
	return out, nil
}

func (s *Store) FindLiabilityBySource(ctx context.Context, sourceTransactionID string) (*models.Liability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.liabilities {
		if l.SourceTransactionID == sourceTransactionID {
			return cloneLiability(l), nil
		}
	}
	return nil, fmt.Errorf("%w: liability for transaction %s", service.ErrNotFound, sourceTransactionID)
}

func (s *Store) FindLiabilityByCycle(ctx context.Context, accountID, cycleLabel string) (*models.Liability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.liabilities {
		if l.AccountID == accountID && l.CycleLabel == cycleLabel {
			return cloneLiability(l), nil
		}
	}
	return nil, fmt.Errorf("%w: cycle %s for account %s", service.ErrNotFound, cycleLabel, accountID)
}

func (s *Store) CreateInstallments(ctx context.Context, items []*models.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range items {
		if _, exists := s.installments[i.ID]; exists {
			return fmt.Errorf("installment %s already exists", i.ID)
		}
	}
	for _, i := range items {
		s.installments[i.ID] = cloneInstallment(i)
	}
	return nil
}

func (s *Store) ListInstallmentsByLiability(ctx context.Context, liabilityID string) ([]*models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Installment
	for _, i := range s.installments {
		if i.LiabilityID == liabilityID {
			out = append(out, cloneInstallment(i))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *Store) ListPendingInstallmentsByOwner(ctx context.Context, ownerID string) ([]*models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Installment
	for _, i := range s.installments {
		if i.Status == models.InstallmentPaid {
			continue
		}
		l, ok := s.liabilities[i.LiabilityID]
		if !ok || l.OwnerID != ownerID {
			continue
		}
		out = append(out, cloneInstallment(i))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *Store) UpdateInstallment(ctx context.Context, i *models.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.installments[i.ID]; !ok {
		return fmt.Errorf("%w: installment %s", service.ErrNotFound, i.ID)
	}
	s.installments[i.ID] = cloneInstallment(i)
	return nil
}

func (s *Store) ListInstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]*models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Installment
	for _, i := range s.installments {
		if i.Status != models.InstallmentPending {
			continue
		}
		if i.DueDate.Before(from) || !i.DueDate.Before(to) {
			continue
		}
		out = append(out, cloneInstallment(i))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *Store) MarkOverdueInstallments(ctx context.Context, asOf time.Time) ([]*models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Installment
	for _, i := range s.installments {
		if i.Status == models.InstallmentPending && i.DueDate.Before(asOf) {
			i.Status = models.InstallmentOverdue
			i.UpdatedAt = time.Now()
			out = append(out, cloneInstallment(i))
		}
	}
	return out, nil
}

// --- Scheduled transactions ---

func (s *Store) CreateScheduledTransaction(ctx context.Context, st *models.ScheduledTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scheduled[st.ID]; exists {
		return fmt.Errorf("scheduled transaction %s already exists", st.ID)
	}
	s.scheduled[st.ID] = cloneScheduled(st)
	return nil
}

func (s *Store) UpdateScheduledTransaction(ctx context.Context, st *models.ScheduledTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduled[st.ID]; !ok {
		return fmt.Errorf("%w: scheduled transaction %s", service.ErrNotFound, st.ID)
	}
	s.scheduled[st.ID] = cloneScheduled(st)
	return nil
}

func (s *Store) ListUpcomingScheduled(ctx context.Context, ownerID string, until time.Time) ([]*models.ScheduledTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledTransaction
	for _, st := range s.scheduled {
		if st.OwnerID != ownerID || st.Status != models.ScheduledUpcoming {
			continue
		}
		if !until.IsZero() && st.DueDate.After(until) {
			continue
		}
		out = append(out, cloneScheduled(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *Store) FindScheduledByInstallment(ctx context.Context, installmentID string) (*models.ScheduledTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.scheduled {
		if st.InstallmentID == installmentID {
			return cloneScheduled(st), nil
		}
	}
	return nil, fmt.Errorf("%w: scheduled transaction for installment %s", service.ErrNotFound, installmentID)
}

// --- Transfer suggestions ---

func (s *Store) CreateTransferSuggestion(ctx context.Context, sg *models.TransferSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.suggestions[sg.ID]; exists {
		return fmt.Errorf("suggestion %s already exists", sg.ID)
	}
	s.suggestions[sg.ID] = cloneSuggestion(sg)
	return nil
}

func (s *Store) GetTransferSuggestion(ctx context.Context, id string) (*models.TransferSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("%w: suggestion %s", service.ErrNotFound, id)
	}
	return cloneSuggestion(sg), nil
}

func (s *Store) UpdateTransferSuggestion(ctx context.Context, sg *models.TransferSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[sg.ID]; !ok {
		return fmt.Errorf("%w: suggestion %s", service.ErrNotFound, sg.ID)
	}
	s.suggestions[sg.ID] = cloneSuggestion(sg)
	return nil
}

func (s *Store) ListOpenSuggestions(ctx context.Context, userID string) ([]*models.TransferSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TransferSuggestion
	for _, sg := range s.suggestions {
		if sg.UserID == userID && sg.Status == models.SuggestionOpen {
			out = append(out, cloneSuggestion(sg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindOpenSuggestionByPair(ctx context.Context, debitID, creditID string) (*models.TransferSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sg := range s.suggestions {
		if sg.Status == models.SuggestionOpen && sg.DebitTransactionID == debitID && sg.CreditTransactionID == creditID {
			return cloneSuggestion(sg), nil
		}
	}
	return nil, fmt.Errorf("%w: suggestion for pair", service.ErrNotFound)
}

// --- Categories ---

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[c.ID]; exists {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	clone := *c
	s.categories[c.ID] = &clone
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, fmt.Errorf("%w: category %s", service.ErrNotFound, id)
	}
	clone := *c
	return &clone, nil
}

func (s *Store) ListCategoryDescendants(ctx context.Context, id string, maxDepth int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{id}
	frontier := []string{id}
	for depth := 1; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, c := range s.categories {
			for _, parent := range frontier {
				if c.ParentID == parent {
					out = append(out, c.ID)
					next = append(next, c.ID)
				}
			}
		}
		frontier = next
	}
	sort.Strings(out[1:])
	return out, nil
}
