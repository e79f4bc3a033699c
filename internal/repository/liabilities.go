package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
)

const liabilityColumns = `id, owner_id, account_id, type, description, original_amount,
	current_balance, due_date, source_transaction_id, cycle_label, provider_pattern,
	status, created_at, updated_at`

func scanLiability(row interface{ Scan(...any) error }) (*models.Liability, error) {
	l := &models.Liability{}
	err := row.Scan(&l.ID, &l.OwnerID, &l.AccountID, &l.Type, &l.Description,
		&l.OriginalAmount, &l.CurrentBalance, &l.DueDate, &l.SourceTransactionID,
		&l.CycleLabel, &l.ProviderPattern, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CreateLiability inserts a new liability row
func (r *Repository) CreateLiability(ctx context.Context, l *models.Liability) error {
	query := `
		INSERT INTO finlink.liabilities (id, owner_id, account_id, type, description,
			original_amount, current_balance, due_date, source_transaction_id,
			cycle_label, provider_pattern, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, l.ID, l.OwnerID, l.AccountID, l.Type,
		l.Description, l.OriginalAmount, l.CurrentBalance, l.DueDate,
		l.SourceTransactionID, l.CycleLabel, l.ProviderPattern, l.Status).
		Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create liability: %w", err)
	}
	return nil
}

// GetLiability retrieves a liability by id
func (r *Repository) GetLiability(ctx context.Context, id string) (*models.Liability, error) {
	query := `SELECT ` + liabilityColumns + ` FROM finlink.liabilities WHERE id = $1`
	l, err := scanLiability(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: liability %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get liability: %w", err)
	}
	return l, nil
}

// UpdateLiability writes back every mutable liability field
func (r *Repository) UpdateLiability(ctx context.Context, l *models.Liability) error {
	query := `
		UPDATE finlink.liabilities
		SET description = $2, current_balance = $3, due_date = $4, status = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, l.ID, l.Description, l.CurrentBalance,
		l.DueDate, l.Status).
		Scan(&l.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: liability %s", service.ErrNotFound, l.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update liability: %w", err)
	}
	return nil
}

// ListLiabilitiesByOwner retrieves all liabilities for a user, oldest first
func (r *Repository) ListLiabilitiesByOwner(ctx context.Context, ownerID string) ([]*models.Liability, error) {
	query := `SELECT ` + liabilityColumns + `
		FROM finlink.liabilities
		WHERE owner_id = $1
		ORDER BY created_at`
	return r.queryLiabilities(ctx, query, ownerID)
}

// ListOpenLiabilities retrieves liabilities still carrying a balance
func (r *Repository) ListOpenLiabilities(ctx context.Context, ownerID string) ([]*models.Liability, error) {
	query := `SELECT ` + liabilityColumns + `
		FROM finlink.liabilities
		WHERE owner_id = $1 AND status = $2`
	return r.queryLiabilities(ctx, query, ownerID, models.LiabilityOpen)
}

// FindLiabilityBySource retrieves the liability derived from a transaction
func (r *Repository) FindLiabilityBySource(ctx context.Context, sourceTransactionID string) (*models.Liability, error) {
	query := `SELECT ` + liabilityColumns + `
		FROM finlink.liabilities
		WHERE source_transaction_id = $1`
	l, err := scanLiability(r.db.QueryRowContext(ctx, query, sourceTransactionID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: liability for transaction %s", service.ErrNotFound, sourceTransactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find liability by source: %w", err)
	}
	return l, nil
}

// FindLiabilityByCycle retrieves the statement liability for one account and
// one cycle label.
func (r *Repository) FindLiabilityByCycle(ctx context.Context, accountID, cycleLabel string) (*models.Liability, error) {
	query := `SELECT ` + liabilityColumns + `
		FROM finlink.liabilities
		WHERE account_id = $1 AND cycle_label = $2`
	l, err := scanLiability(r.db.QueryRowContext(ctx, query, accountID, cycleLabel))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: cycle %s for account %s", service.ErrNotFound, cycleLabel, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find liability by cycle: %w", err)
	}
	return l, nil
}

func (r *Repository) queryLiabilities(ctx context.Context, query string, args ...any) ([]*models.Liability, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list liabilities: %w", err)
	}
	defer rows.Close()

	var out []*models.Liability
	for rows.Next() {
		l, err := scanLiability(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan liability: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const installmentColumns = `id, liability_id, sequence, due_date, amount, status,
	settled_transaction_id, created_at, updated_at`

func scanInstallment(row interface{ Scan(...any) error }) (*models.Installment, error) {
	i := &models.Installment{}
	err := row.Scan(&i.ID, &i.LiabilityID, &i.Sequence, &i.DueDate, &i.Amount,
		&i.Status, &i.SettledTransactionID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// CreateInstallments inserts a liability's installment plan in one database
// transaction.
func (r *Repository) CreateInstallments(ctx context.Context, items []*models.Installment) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin installment insert: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO finlink.installments (id, liability_id, sequence, due_date, amount,
			status, settled_transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	for _, i := range items {
		err := dbTx.QueryRowContext(ctx, query, i.ID, i.LiabilityID, i.Sequence,
			i.DueDate, i.Amount, i.Status, i.SettledTransactionID).
			Scan(&i.CreatedAt, &i.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", i.Sequence, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit installment insert: %w", err)
	}
	return nil
}

// ListInstallmentsByLiability retrieves a liability's plan in sequence order
func (r *Repository) ListInstallmentsByLiability(ctx context.Context, liabilityID string) ([]*models.Installment, error) {
	query := `SELECT ` + installmentColumns + `
		FROM finlink.installments
		WHERE liability_id = $1
		ORDER BY sequence`
	return r.queryInstallments(ctx, query, liabilityID)
}

// ListPendingInstallmentsByOwner retrieves unsettled installments across all
// of a user's liabilities, nearest due date first.
func (r *Repository) ListPendingInstallmentsByOwner(ctx context.Context, ownerID string) ([]*models.Installment, error) {
	query := `SELECT ` + colPrefix(installmentColumns, "i") + `
		FROM finlink.installments i
		JOIN finlink.liabilities l ON l.id = i.liability_id
		WHERE l.owner_id = $1 AND i.status <> $2
		ORDER BY i.due_date`
	return r.queryInstallments(ctx, query, ownerID, models.InstallmentPaid)
}

// ListInstallmentsDueBetween retrieves pending installments due inside
// [from, to), across all owners. Feeds the reminder job.
func (r *Repository) ListInstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]*models.Installment, error) {
	query := `SELECT ` + installmentColumns + `
		FROM finlink.installments
		WHERE status = $1 AND due_date >= $2 AND due_date < $3
		ORDER BY due_date`
	return r.queryInstallments(ctx, query, models.InstallmentPending, from, to)
}

// UpdateInstallment writes back every mutable installment field
func (r *Repository) UpdateInstallment(ctx context.Context, i *models.Installment) error {
	query := `
		UPDATE finlink.installments
		SET due_date = $2, amount = $3, status = $4, settled_transaction_id = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, i.ID, i.DueDate, i.Amount, i.Status,
		i.SettledTransactionID).
		Scan(&i.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: installment %s", service.ErrNotFound, i.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return nil
}

// MarkOverdueInstallments flips pending installments past their due date to
// OVERDUE and returns the flipped rows.
func (r *Repository) MarkOverdueInstallments(ctx context.Context, asOf time.Time) ([]*models.Installment, error) {
	query := `
		UPDATE finlink.installments
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE status = $2 AND due_date < $3
		RETURNING ` + installmentColumns
	return r.queryInstallments(ctx, query, models.InstallmentOverdue,
		models.InstallmentPending, asOf)
}

func (r *Repository) queryInstallments(ctx context.Context, query string, args ...any) ([]*models.Installment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var out []*models.Installment
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
