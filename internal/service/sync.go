package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/google/uuid"
)

const (
	// baseSyncInterval is how soon a connection becomes due again after a
	// successful sync.
	baseSyncInterval = time.Hour
	// backoffBase and backoffCap bound the exponential retry delay after
	// transient provider failures.
	backoffBase = 15 * time.Minute
	backoffCap  = 6 * time.Hour
)

// Sync fetches the provider's accounts and a bounded transaction window for
// an authorized connection and upserts them idempotently, then classifies
// the newly ingested transactions in the same unit of work. Per-account
// upserts are transactional: one account either commits fully or reports an
// error without affecting its siblings.
func (s *Service) Sync(ctx context.Context, connectionID string) (*models.SyncResult, error) {
	s.syncMu.Lock()
	if _, busy := s.inFlight[connectionID]; busy {
		s.syncMu.Unlock()
		s.log.Debugf("Sync for connection %s already in flight, coalescing", connectionID)
		return &models.SyncResult{ConnectionID: connectionID, Coalesced: true}, nil
	}
	s.inFlight[connectionID] = struct{}{}
	s.syncMu.Unlock()
	defer func() {
		s.syncMu.Lock()
		delete(s.inFlight, connectionID)
		s.syncMu.Unlock()
	}()

	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.State != models.ConnectionAuthorized {
		return nil, fmt.Errorf("%w: connection %s is %s", ErrConnectionNotAuthorized, connectionID, conn.State)
	}

	adapter, err := s.providers.Get(conn.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	result := &models.SyncResult{ConnectionID: connectionID, StartedAt: time.Now()}

	providerAccounts, err := adapter.ListAccounts(ctx, conn.ExternalConnectionID)
	if err != nil {
		s.recordSyncFailure(ctx, conn.ID)
		return nil, fmt.Errorf("failed to list accounts for connection %s: %w", connectionID, err)
	}

	since := time.Now().AddDate(0, 0, -s.config.SyncWindowDays)

	// Accounts fan out; each account's upsert batch is its own transaction.
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		newIDs []string
	)
	for _, pa := range providerAccounts {
		wg.Add(1)
		go func(pa provider.Account) {
			defer wg.Done()
			inserted, synced, aerr := s.syncAccount(ctx, conn, adapter, pa, since)
			mu.Lock()
			defer mu.Unlock()
			if aerr != nil {
				s.log.Errorf("Account sync failed for %s/%s: %v", connectionID, pa.ExternalID, aerr)
				result.AccountErrors = append(result.AccountErrors, models.AccountSyncError{
					ExternalAccountID: pa.ExternalID,
					Message:           aerr.Error(),
				})
				return
			}
			result.AccountsUpserted++
			result.TransactionsSynced += synced
			newIDs = append(newIDs, inserted...)
		}(pa)
	}
	wg.Wait()
	result.BalanceUpdated = result.AccountsUpserted > 0

	// Classification runs immediately after the upsert batch so transactions
	// never sit unclassified.
	if len(newIDs) > 0 {
		linked, suggested, derr := s.DetectTransfers(ctx, conn.UserID, newIDs)
		if derr != nil {
			s.log.Errorf("Transfer detection failed for connection %s: %v", connectionID, derr)
		}
		result.TransfersLinked = linked
		result.TransfersSuggested = suggested

		created, settled, derr := s.DeriveLiabilities(ctx, conn.UserID, newIDs)
		if derr != nil {
			s.log.Errorf("Liability derivation failed for connection %s: %v", connectionID, derr)
		}
		result.LiabilitiesCreated = created
		result.InstallmentsSettled = settled
	}

	if len(result.AccountErrors) == 0 {
		s.recordSyncSuccess(ctx, conn.ID)
	} else if result.AccountsUpserted == 0 {
		s.recordSyncFailure(ctx, conn.ID)
	} else {
		// Partial progress is kept; failed accounts retry next cycle.
		s.recordSyncSuccess(ctx, conn.ID)
	}

	result.FinishedAt = time.Now()
	s.log.Infof("Sync finished for connection %s: %d accounts, %d transactions, %d errors",
		connectionID, result.AccountsUpserted, result.TransactionsSynced, len(result.AccountErrors))
	return result, nil
}

// SyncAccount resolves an account to its connection and runs a sync. Manual
// accounts have nothing to sync.
func (s *Service) SyncAccount(ctx context.Context, userID, accountID string) (*models.SyncResult, error) {
	account, err := s.GetOwnedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if account.ConnectionID == "" {
		return nil, fmt.Errorf("%w: account %s is manual and cannot be synced", ErrValidation, accountID)
	}
	return s.Sync(ctx, account.ConnectionID)
}

// syncAccount upserts one provider account and its transaction window.
// Returns the ids of newly inserted transactions and the total rows touched.
func (s *Service) syncAccount(ctx context.Context, conn *models.Connection, adapter provider.Adapter, pa provider.Account, since time.Time) ([]string, int, error) {
	nature := provider.NatureFromType(pa.Type)
	now := time.Now()
	account := &models.Account{
		ID:                uuid.NewString(),
		OwnerID:           conn.UserID,
		ConnectionID:      conn.ID,
		ExternalAccountID: pa.ExternalID,
		Name:              pa.Name,
		Currency:          pa.Currency,
		Nature:            nature,
		Balance:           provider.CanonicalBalance(pa.RawBalance, nature, pa.SignConvention),
		SyncStatus:        models.SyncPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.store.UpsertProviderAccount(ctx, account); err != nil {
		return nil, 0, fmt.Errorf("failed to upsert account: %w", err)
	}

	providerTxs, err := adapter.ListTransactions(ctx, conn.ExternalConnectionID, pa.ExternalID, since)
	if err != nil {
		account.SyncStatus = models.SyncError
		if uerr := s.store.UpdateAccount(ctx, account); uerr != nil {
			s.log.Errorf("Failed to mark account %s errored: %v", account.ID, uerr)
		}
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}

	rows := make([]*models.Transaction, 0, len(providerTxs))
	seen := make(map[string]bool, len(providerTxs))
	for _, ptx := range providerTxs {
		if seen[ptx.ExternalID] {
			// Broken upsert key on the provider side; never surfaced, the
			// duplicate row is dropped.
			s.log.Errorf("%v: duplicate external transaction id %q on account %s",
				ErrDedupeViolation, ptx.ExternalID, pa.ExternalID)
			continue
		}
		seen[ptx.ExternalID] = true

		amount, direction, nerr := provider.NormalizeTransaction(ptx.RawAmount, ptx.RawDirection)
		if nerr != nil {
			return nil, 0, fmt.Errorf("failed to normalize transaction %s: %w", ptx.ExternalID, nerr)
		}
		row := &models.Transaction{
			ID:                    uuid.NewString(),
			AccountID:             account.ID,
			Amount:                amount,
			Direction:             direction,
			Date:                  ptx.Date,
			Description:           ptx.Description,
			FlowType:              models.DefaultFlowType(direction),
			ExternalTransactionID: ptx.ExternalID,
			IngestedAt:            now,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if verr := row.Validate(); verr != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrValidation, verr)
		}
		rows = append(rows, row)
	}

	// Oldest first so downstream matching sees candidates in a stable order.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	inserted, updated, err := s.store.UpsertTransactionBatch(ctx, account.ID, rows)
	if err != nil {
		account.SyncStatus = models.SyncError
		if uerr := s.store.UpdateAccount(ctx, account); uerr != nil {
			s.log.Errorf("Failed to mark account %s errored: %v", account.ID, uerr)
		}
		return nil, 0, fmt.Errorf("failed to upsert transactions: %w", err)
	}

	account.SyncStatus = models.SyncSynced
	account.LastSyncedAt = &now
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, 0, fmt.Errorf("failed to update account after sync: %w", err)
	}

	return inserted, len(inserted) + updated, nil
}

// SyncDue runs syncs for every connection whose next-sync time has passed.
// Used by the scheduler; transient failures push the connection out with
// exponential backoff.
func (s *Service) SyncDue(ctx context.Context) {
	due, err := s.store.ListConnectionsDueForSync(ctx, time.Now())
	if err != nil {
		s.log.Errorf("Failed to list connections due for sync: %v", err)
		return
	}
	for _, conn := range due {
		if _, err := s.Sync(ctx, conn.ID); err != nil {
			s.log.Warnf("Scheduled sync failed for connection %s: %v", conn.ID, err)
		}
	}
}

func (s *Service) recordSyncSuccess(ctx context.Context, connectionID string) {
	_, err := s.store.TransitionConnection(ctx, connectionID, func(c *models.Connection) error {
		now := time.Now()
		c.LastSyncAt = &now
		c.NextSyncAt = now.Add(baseSyncInterval)
		c.SyncFailures = 0
		return nil
	})
	if err != nil {
		s.log.Errorf("Failed to record sync success for connection %s: %v", connectionID, err)
	}
}

func (s *Service) recordSyncFailure(ctx context.Context, connectionID string) {
	_, err := s.store.TransitionConnection(ctx, connectionID, func(c *models.Connection) error {
		c.SyncFailures++
		// Clamp the exponent, not the product: a large failure count would
		// overflow the shift before the product could be range-checked.
		delay := backoffCap
		if shift := uint(c.SyncFailures - 1); shift < 16 {
			if d := backoffBase << shift; d < backoffCap {
				delay = d
			}
		}
		c.NextSyncAt = time.Now().Add(delay)
		return nil
	})
	if err != nil {
		s.log.Errorf("Failed to record sync failure for connection %s: %v", connectionID, err)
	}
}
