package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
)

const accountColumns = `id, owner_id, connection_id, external_account_id, name, currency,
	nature, balance, manual, statement_day, due_day, last_synced_at, sync_status,
	created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	a := &models.Account{}
	var lastSynced sql.NullTime
	err := row.Scan(&a.ID, &a.OwnerID, &a.ConnectionID, &a.ExternalAccountID, &a.Name,
		&a.Currency, &a.Nature, &a.Balance, &a.Manual, &a.StatementDay, &a.DueDay,
		&lastSynced, &a.SyncStatus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastSyncedAt = timePtr(lastSynced)
	return a, nil
}

// CreateAccount inserts a new account row
func (r *Repository) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO finlink.accounts (id, owner_id, connection_id, external_account_id,
			name, currency, nature, balance, manual, statement_day, due_day,
			last_synced_at, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, a.ID, a.OwnerID, a.ConnectionID,
		a.ExternalAccountID, a.Name, a.Currency, a.Nature, a.Balance, a.Manual,
		a.StatementDay, a.DueDay, nullTime(a.LastSyncedAt), a.SyncStatus).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpsertProviderAccount inserts a provider-sourced account or refreshes the
// provider-owned fields of the existing row keyed by (connection, external
// id). User-configured fields survive the refresh.
func (r *Repository) UpsertProviderAccount(ctx context.Context, a *models.Account) (bool, error) {
	query := `
		INSERT INTO finlink.accounts (id, owner_id, connection_id, external_account_id,
			name, currency, nature, balance, manual, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (connection_id, external_account_id) WHERE connection_id <> ''
		DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency,
			nature = EXCLUDED.nature, balance = EXCLUDED.balance,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, manual, statement_day, due_day, (xmax = 0) AS inserted`
	var created bool
	err := r.db.QueryRowContext(ctx, query, a.ID, a.OwnerID, a.ConnectionID,
		a.ExternalAccountID, a.Name, a.Currency, a.Nature, a.Balance, a.SyncStatus).
		Scan(&a.ID, &a.Manual, &a.StatementDay, &a.DueDay, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert account: %w", err)
	}
	return created, nil
}

// GetAccount retrieves an account by id
func (r *Repository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM finlink.accounts WHERE id = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: account %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// UpdateAccount writes back every mutable account field
func (r *Repository) UpdateAccount(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE finlink.accounts
		SET name = $2, currency = $3, nature = $4, balance = $5, statement_day = $6,
			due_day = $7, last_synced_at = $8, sync_status = $9,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, a.ID, a.Name, a.Currency, a.Nature,
		a.Balance, a.StatementDay, a.DueDay, nullTime(a.LastSyncedAt), a.SyncStatus).
		Scan(&a.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: account %s", service.ErrNotFound, a.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// ListAccountsByOwner retrieves all accounts belonging to a user
func (r *Repository) ListAccountsByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM finlink.accounts
		WHERE owner_id = $1
		ORDER BY name`
	return r.queryAccounts(ctx, query, ownerID)
}

// ListAccountsByConnection retrieves all accounts produced by a connection
func (r *Repository) ListAccountsByConnection(ctx context.Context, connectionID string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM finlink.accounts
		WHERE connection_id = $1
		ORDER BY name`
	return r.queryAccounts(ctx, query, connectionID)
}

// MarkConnectionAccounts flips the sync status of every account under a
// connection, used when the connection is revoked or fails.
func (r *Repository) MarkConnectionAccounts(ctx context.Context, connectionID string, status models.SyncStatus) error {
	query := `
		UPDATE finlink.accounts
		SET sync_status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE connection_id = $1`
	if _, err := r.db.ExecContext(ctx, query, connectionID, status); err != nil {
		return fmt.Errorf("failed to mark connection accounts: %w", err)
	}
	return nil
}

// ListBillingAccounts retrieves liability accounts with a configured
// statement day, the set the cycle-close job walks.
func (r *Repository) ListBillingAccounts(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM finlink.accounts
		WHERE nature = $1 AND statement_day > 0`
	return r.queryAccounts(ctx, query, models.NatureLiability)
}

func (r *Repository) queryAccounts(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
