package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, account_id, amount, direction, date, description,
	category_id, notes, flow_type, flow_type_overridden, transfer_group_id,
	transfer_role, liability_id, external_transaction_id, ingested_at, created_at,
	updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Direction, &t.Date,
		&t.Description, &t.CategoryID, &t.Notes, &t.FlowType, &t.FlowTypeOverridden,
		&t.TransferGroupID, &t.TransferRole, &t.LiabilityID, &t.ExternalTransactionID,
		&t.IngestedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransaction inserts a single transaction row
func (r *Repository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO finlink.transactions (id, account_id, amount, direction, date,
			description, category_id, notes, flow_type, flow_type_overridden,
			transfer_group_id, transfer_role, liability_id, external_transaction_id,
			ingested_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, t.ID, t.AccountID, t.Amount, t.Direction,
		t.Date, t.Description, t.CategoryID, t.Notes, t.FlowType, t.FlowTypeOverridden,
		t.TransferGroupID, t.TransferRole, t.LiabilityID, t.ExternalTransactionID,
		t.IngestedAt).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by id
func (r *Repository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM finlink.transactions WHERE id = $1`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// UpdateTransaction writes back every mutable transaction field
func (r *Repository) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		UPDATE finlink.transactions
		SET amount = $2, direction = $3, date = $4, description = $5, category_id = $6,
			notes = $7, flow_type = $8, flow_type_overridden = $9,
			transfer_group_id = $10, transfer_role = $11, liability_id = $12,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, t.ID, t.Amount, t.Direction, t.Date,
		t.Description, t.CategoryID, t.Notes, t.FlowType, t.FlowTypeOverridden,
		t.TransferGroupID, t.TransferRole, t.LiabilityID).
		Scan(&t.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: transaction %s", service.ErrNotFound, t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

// UpsertTransactionBatch applies one account's provider batch inside a single
// database transaction. Rows keyed by an already-seen external id refresh the
// provider-sourced fields only; classification state and user edits survive.
func (r *Repository) UpsertTransactionBatch(ctx context.Context, accountID string, txs []*models.Transaction) ([]string, int, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction batch: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO finlink.transactions (id, account_id, amount, direction, date,
			description, flow_type, external_transaction_id, ingested_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id, external_transaction_id) WHERE external_transaction_id <> ''
		DO UPDATE SET amount = EXCLUDED.amount, direction = EXCLUDED.direction,
			date = EXCLUDED.date, description = EXCLUDED.description,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, (xmax = 0) AS inserted`

	var insertedIDs []string
	updated := 0
	for _, t := range txs {
		if t.AccountID != accountID {
			return nil, 0, fmt.Errorf("transaction %s does not belong to account %s", t.ID, accountID)
		}
		if err := t.Validate(); err != nil {
			return nil, 0, err
		}
		var id string
		var inserted bool
		err := dbTx.QueryRowContext(ctx, query, t.ID, t.AccountID, t.Amount,
			t.Direction, t.Date, t.Description, t.FlowType, t.ExternalTransactionID,
			t.IngestedAt).
			Scan(&id, &inserted)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to upsert transaction %s: %w", t.ExternalTransactionID, err)
		}
		if inserted {
			insertedIDs = append(insertedIDs, id)
		} else {
			updated++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction batch: %w", err)
	}
	return insertedIDs, updated, nil
}

// ListTransactionsByAccount retrieves transactions for an account, oldest
// first, optionally bounded by a date range.
func (r *Repository) ListTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM finlink.transactions
		WHERE account_id = $1
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY date, created_at`
	return r.queryTransactions(ctx, query, accountID, nullTime(optional(from)), nullTime(optional(to)))
}

func optional(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ListTransactionsByIDs retrieves the given transactions; missing ids are
// silently skipped.
func (r *Repository) ListTransactionsByIDs(ctx context.Context, ids []string) ([]*models.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + transactionColumns + `
		FROM finlink.transactions
		WHERE id = ANY($1)`
	return r.queryTransactions(ctx, query, pq.Array(ids))
}

// FindTransferCandidates retrieves ungrouped transactions of the given
// direction and exact amount, on any of the user's other accounts, inside the
// date window. Only plain EXPENSE/INCOME rows qualify: a transaction that
// already settled an installment or carries another classification is out of
// the pairing pool.
func (r *Repository) FindTransferCandidates(ctx context.Context, userID, excludeAccountID string, amount decimal.Decimal, direction models.Direction, from, to time.Time) ([]*models.Transaction, error) {
	query := `SELECT ` + colPrefix(transactionColumns, "t") + `
		FROM finlink.transactions t
		JOIN finlink.accounts a ON a.id = t.account_id
		WHERE a.owner_id = $1
			AND t.account_id <> $2
			AND t.amount = $3
			AND t.direction = $4
			AND t.date BETWEEN $5 AND $6
			AND t.transfer_group_id = ''
			AND t.liability_id = ''
			AND t.flow_type IN ($7, $8)`
	return r.queryTransactions(ctx, query, userID, excludeAccountID, amount, direction, from, to,
		models.FlowExpense, models.FlowIncome)
}

// LinkTransferPair joins two ungrouped legs into one transfer group, setting
// roles by side.
func (r *Repository) LinkTransferPair(ctx context.Context, groupID, sourceID, destinationID string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transfer link: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		UPDATE finlink.transactions
		SET flow_type = $2, transfer_group_id = $3, transfer_role = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND transfer_group_id = ''`
	for _, leg := range []struct {
		id   string
		role models.TransferRole
	}{
		{sourceID, models.TransferSource},
		{destinationID, models.TransferDestination},
	} {
		res, err := dbTx.ExecContext(ctx, query, leg.id, models.FlowTransfer, groupID, leg.role)
		if err != nil {
			return fmt.Errorf("failed to link transfer leg %s: %w", leg.id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to link transfer leg %s: %w", leg.id, err)
		}
		if n == 0 {
			return fmt.Errorf("transaction %s is missing or already grouped", leg.id)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer link: %w", err)
	}
	return nil
}

// ListTransferGroup retrieves every leg of a transfer group
func (r *Repository) ListTransferGroup(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM finlink.transactions
		WHERE transfer_group_id = $1`
	return r.queryTransactions(ctx, query, groupID)
}

// UnlinkTransferGroup dissolves a transfer group. Legs without a manual flow
// override fall back to the default flow for their direction.
func (r *Repository) UnlinkTransferGroup(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	query := `
		UPDATE finlink.transactions
		SET transfer_group_id = '', transfer_role = '',
			flow_type = CASE
				WHEN flow_type_overridden THEN flow_type
				WHEN direction = $2 THEN $3
				ELSE $4
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE transfer_group_id = $1
		RETURNING ` + transactionColumns
	return r.queryTransactions(ctx, query, groupID,
		models.Credit, models.FlowIncome, models.FlowExpense)
}

// SumExpensesByCategory totals EXPENSE transactions in the given categories
// over an inclusive date range.
func (r *Repository) SumExpensesByCategory(ctx context.Context, userID string, categoryIDs []string, from, to time.Time) (decimal.Decimal, int, error) {
	query := `
		SELECT COALESCE(SUM(t.amount), 0), COUNT(t.id)
		FROM finlink.transactions t
		JOIN finlink.accounts a ON a.id = t.account_id
		WHERE a.owner_id = $1
			AND t.flow_type = $2
			AND t.category_id = ANY($3)
			AND t.date BETWEEN $4 AND $5`
	var total decimal.Decimal
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, models.FlowExpense,
		pq.Array(categoryIDs), from, to).
		Scan(&total, &count)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return total, count, nil
}

// MonthlyTotals returns income and expense totals over [from, to).
func (r *Repository) MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(t.amount) FILTER (WHERE t.flow_type = $2), 0),
			COALESCE(SUM(t.amount) FILTER (WHERE t.flow_type = $3), 0)
		FROM finlink.transactions t
		JOIN finlink.accounts a ON a.id = t.account_id
		WHERE a.owner_id = $1 AND t.date >= $4 AND t.date < $5`
	var income, expense decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, userID, models.FlowIncome,
		models.FlowExpense, from, to).
		Scan(&income, &expense)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to total month: %w", err)
	}
	return income, expense, nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
