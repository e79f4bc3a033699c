package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
)

const scheduledColumns = `id, owner_id, account_id, liability_id, installment_id,
	description, amount, due_date, status, created_at, updated_at`

func scanScheduled(row interface{ Scan(...any) error }) (*models.ScheduledTransaction, error) {
	s := &models.ScheduledTransaction{}
	err := row.Scan(&s.ID, &s.OwnerID, &s.AccountID, &s.LiabilityID, &s.InstallmentID,
		&s.Description, &s.Amount, &s.DueDate, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateScheduledTransaction inserts a new scheduled transaction row
func (r *Repository) CreateScheduledTransaction(ctx context.Context, s *models.ScheduledTransaction) error {
	query := `
		INSERT INTO finlink.scheduled_transactions (id, owner_id, account_id,
			liability_id, installment_id, description, amount, due_date, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.OwnerID, s.AccountID,
		s.LiabilityID, s.InstallmentID, s.Description, s.Amount, s.DueDate, s.Status).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scheduled transaction: %w", err)
	}
	return nil
}

// UpdateScheduledTransaction writes back every mutable scheduled field
func (r *Repository) UpdateScheduledTransaction(ctx context.Context, s *models.ScheduledTransaction) error {
	query := `
		UPDATE finlink.scheduled_transactions
		SET description = $2, amount = $3, due_date = $4, status = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.Description, s.Amount,
		s.DueDate, s.Status).
		Scan(&s.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: scheduled transaction %s", service.ErrNotFound, s.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update scheduled transaction: %w", err)
	}
	return nil
}

// ListUpcomingScheduled retrieves a user's upcoming expectations, nearest due
// date first, optionally bounded by a horizon.
func (r *Repository) ListUpcomingScheduled(ctx context.Context, ownerID string, until time.Time) ([]*models.ScheduledTransaction, error) {
	query := `SELECT ` + scheduledColumns + `
		FROM finlink.scheduled_transactions
		WHERE owner_id = $1 AND status = $2
			AND ($3::timestamptz IS NULL OR due_date <= $3)
		ORDER BY due_date`
	rows, err := r.db.QueryContext(ctx, query, ownerID, models.ScheduledUpcoming,
		nullTime(optional(until)))
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledTransaction
	for rows.Next() {
		s, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled transaction: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindScheduledByInstallment retrieves the expectation materialized for an
// installment.
func (r *Repository) FindScheduledByInstallment(ctx context.Context, installmentID string) (*models.ScheduledTransaction, error) {
	query := `SELECT ` + scheduledColumns + `
		FROM finlink.scheduled_transactions
		WHERE installment_id = $1`
	s, err := scanScheduled(r.db.QueryRowContext(ctx, query, installmentID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: scheduled transaction for installment %s", service.ErrNotFound, installmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled transaction: %w", err)
	}
	return s, nil
}
