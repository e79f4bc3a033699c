package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Service handles business logic
type Service struct {
	store     Store
	providers *provider.Registry
	notifier  Notifier
	log       *logrus.Logger
	config    *config.Config
	key       []byte // derived encryption key for session secrets at rest

	// Per-connection sync serialization: a second trigger while one sync is
	// running is coalesced, not queued.
	syncMu   sync.Mutex
	inFlight map[string]struct{}
}

// NewService initializes a new service. notifier may be nil when no delivery
// channel is configured.
func NewService(store Store, providers *provider.Registry, notifier Notifier, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		store:     store,
		providers: providers,
		notifier:  notifier,
		log:       log,
		config:    cfg,
		key:       utils.DeriveKey(cfg.EncryptionKey),
		inFlight:  make(map[string]struct{}),
	}
}

// ListAccounts returns all accounts owned by the user.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	return s.store.ListAccountsByOwner(ctx, userID)
}

// ManualAccountInput is the payload for creating a manual account.
type ManualAccountInput struct {
	Name         string               `json:"name"`
	Currency     string               `json:"currency"`
	Nature       models.AccountNature `json:"nature"`
	Balance      decimal.Decimal      `json:"balance"`
	StatementDay int                  `json:"statement_day"`
	DueDay       int                  `json:"due_day"`
}

// CreateManualAccount creates an account not backed by any provider
// connection.
func (s *Service) CreateManualAccount(ctx context.Context, userID string, input ManualAccountInput) (*models.Account, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: account name is required", ErrValidation)
	}
	if input.Currency == "" {
		return nil, fmt.Errorf("%w: account currency is required", ErrValidation)
	}
	nature := input.Nature
	if nature == "" {
		nature = models.NatureAsset
	}
	if nature != models.NatureAsset && nature != models.NatureLiability {
		return nil, fmt.Errorf("%w: invalid account nature %q", ErrValidation, input.Nature)
	}
	if input.StatementDay < 0 || input.StatementDay > 28 || input.DueDay < 0 || input.DueDay > 28 {
		return nil, fmt.Errorf("%w: statement and due days must be between 1 and 28", ErrValidation)
	}
	now := time.Now()
	account := &models.Account{
		ID:           uuid.NewString(),
		OwnerID:      userID,
		Name:         input.Name,
		Currency:     input.Currency,
		Nature:       nature,
		Balance:      input.Balance,
		Manual:       true,
		StatementDay: input.StatementDay,
		DueDay:       input.DueDay,
		SyncStatus:   models.SyncSynced,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create manual account: %w", err)
	}
	s.log.Infof("Manual account created for user %s: %s", userID, account.Name)
	return account, nil
}

// GetOwnedAccount fetches an account and verifies ownership.
func (s *Service) GetOwnedAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != userID {
		return nil, fmt.Errorf("%w: account %s", ErrForbidden, accountID)
	}
	return account, nil
}

// ListAccountTransactions returns an account's transactions in a date range.
func (s *Service) ListAccountTransactions(ctx context.Context, userID, accountID string, from, to time.Time) ([]*models.Transaction, error) {
	if _, err := s.GetOwnedAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsByAccount(ctx, accountID, from, to)
}

// ListUpcomingScheduled returns the user's scheduled transactions due before
// until, for calendar and forecast use.
func (s *Service) ListUpcomingScheduled(ctx context.Context, userID string, until time.Time) ([]*models.ScheduledTransaction, error) {
	return s.store.ListUpcomingScheduled(ctx, userID, until)
}
