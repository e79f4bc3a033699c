package service

import (
	"context"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/shopspring/decimal"
)

// Store is the persistence contract the service runs against. The postgres
// repository implements it for production; the in-memory repository backs
// tests and sandbox runs.
//
// Concurrency contract: TransitionConnection runs its callback under an
// exclusive lock on the connection row (the serialization point for state
// changes); UpsertProviderAccount and UpsertTransactionBatch are keyed by
// their natural unique keys so racing workers converge; the transaction
// batch is atomic per account.
type Store interface {
	// Connections
	CreateConnection(ctx context.Context, c *models.Connection) error
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	FindConnectionBySession(ctx context.Context, providerName, externalSessionID string) (*models.Connection, error)
	TransitionConnection(ctx context.Context, id string, fn func(*models.Connection) error) (*models.Connection, error)
	ListConnectionsByUser(ctx context.Context, userID string) ([]*models.Connection, error)
	ListExpiredPending(ctx context.Context, asOf time.Time) ([]*models.Connection, error)
	ListConnectionsDueForSync(ctx context.Context, asOf time.Time) ([]*models.Connection, error)

	// Accounts
	CreateAccount(ctx context.Context, a *models.Account) error
	UpsertProviderAccount(ctx context.Context, a *models.Account) (created bool, err error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateAccount(ctx context.Context, a *models.Account) error
	ListAccountsByOwner(ctx context.Context, ownerID string) ([]*models.Account, error)
	ListAccountsByConnection(ctx context.Context, connectionID string) ([]*models.Account, error)
	MarkConnectionAccounts(ctx context.Context, connectionID string, status models.SyncStatus) error
	ListBillingAccounts(ctx context.Context) ([]*models.Account, error)

	// Transactions
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	UpsertTransactionBatch(ctx context.Context, accountID string, txs []*models.Transaction) (insertedIDs []string, updated int, err error)
	ListTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]*models.Transaction, error)
	ListTransactionsByIDs(ctx context.Context, ids []string) ([]*models.Transaction, error)
	FindTransferCandidates(ctx context.Context, userID, excludeAccountID string, amount decimal.Decimal, direction models.Direction, from, to time.Time) ([]*models.Transaction, error)
	LinkTransferPair(ctx context.Context, groupID, sourceID, destinationID string) error
	ListTransferGroup(ctx context.Context, groupID string) ([]*models.Transaction, error)
	UnlinkTransferGroup(ctx context.Context, groupID string) ([]*models.Transaction, error)
	SumExpensesByCategory(ctx context.Context, userID string, categoryIDs []string, from, to time.Time) (decimal.Decimal, int, error)
	MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (income, expense decimal.Decimal, err error)

	// Liabilities and installments
	CreateLiability(ctx context.Context, l *models.Liability) error
	GetLiability(ctx context.Context, id string) (*models.Liability, error)
	UpdateLiability(ctx context.Context, l *models.Liability) error
	ListLiabilitiesByOwner(ctx context.Context, ownerID string) ([]*models.Liability, error)
	ListOpenLiabilities(ctx context.Context, ownerID string) ([]*models.Liability, error)
	FindLiabilityBySource(ctx context.Context, sourceTransactionID string) (*models.Liability, error)
	FindLiabilityByCycle(ctx context.Context, accountID, cycleLabel string) (*models.Liability, error)
	CreateInstallments(ctx context.Context, items []*models.Installment) error
	ListInstallmentsByLiability(ctx context.Context, liabilityID string) ([]*models.Installment, error)
	ListPendingInstallmentsByOwner(ctx context.Context, ownerID string) ([]*models.Installment, error)
	UpdateInstallment(ctx context.Context, i *models.Installment) error
	MarkOverdueInstallments(ctx context.Context, asOf time.Time) ([]*models.Installment, error)
	ListInstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]*models.Installment, error)

	// Scheduled transactions
	CreateScheduledTransaction(ctx context.Context, s *models.ScheduledTransaction) error
	UpdateScheduledTransaction(ctx context.Context, s *models.ScheduledTransaction) error
	ListUpcomingScheduled(ctx context.Context, ownerID string, until time.Time) ([]*models.ScheduledTransaction, error)
	FindScheduledByInstallment(ctx context.Context, installmentID string) (*models.ScheduledTransaction, error)

	// Transfer suggestions
	CreateTransferSuggestion(ctx context.Context, s *models.TransferSuggestion) error
	GetTransferSuggestion(ctx context.Context, id string) (*models.TransferSuggestion, error)
	UpdateTransferSuggestion(ctx context.Context, s *models.TransferSuggestion) error
	ListOpenSuggestions(ctx context.Context, userID string) ([]*models.TransferSuggestion, error)
	FindOpenSuggestionByPair(ctx context.Context, debitID, creditID string) (*models.TransferSuggestion, error)

	// Categories
	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategoryDescendants(ctx context.Context, id string, maxDepth int) ([]string, error)
}

// Notifier delivers user-facing reminders. Delivery itself lives outside the
// engine; this is the narrow contract it is consumed through.
type Notifier interface {
	SendInstallmentReminder(ctx context.Context, userID string, installment *models.Installment, liability *models.Liability, overdue bool) error
}
