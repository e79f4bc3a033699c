package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
)

const suggestionColumns = `id, user_id, debit_transaction_id, credit_transaction_id,
	reason, status, created_at, updated_at`

func scanSuggestion(row interface{ Scan(...any) error }) (*models.TransferSuggestion, error) {
	s := &models.TransferSuggestion{}
	err := row.Scan(&s.ID, &s.UserID, &s.DebitTransactionID, &s.CreditTransactionID,
		&s.Reason, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateTransferSuggestion inserts a new suggestion row
func (r *Repository) CreateTransferSuggestion(ctx context.Context, s *models.TransferSuggestion) error {
	query := `
		INSERT INTO finlink.transfer_suggestions (id, user_id, debit_transaction_id,
			credit_transaction_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.UserID, s.DebitTransactionID,
		s.CreditTransactionID, s.Reason, s.Status).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	return nil
}

// GetTransferSuggestion retrieves a suggestion by id
func (r *Repository) GetTransferSuggestion(ctx context.Context, id string) (*models.TransferSuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM finlink.transfer_suggestions WHERE id = $1`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: suggestion %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	return s, nil
}

// UpdateTransferSuggestion writes back a suggestion's status
func (r *Repository) UpdateTransferSuggestion(ctx context.Context, s *models.TransferSuggestion) error {
	query := `
		UPDATE finlink.transfer_suggestions
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.Status).Scan(&s.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: suggestion %s", service.ErrNotFound, s.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update suggestion: %w", err)
	}
	return nil
}

// ListOpenSuggestions retrieves a user's open suggestions, oldest first
func (r *Repository) ListOpenSuggestions(ctx context.Context, userID string) ([]*models.TransferSuggestion, error) {
	query := `SELECT ` + suggestionColumns + `
		FROM finlink.transfer_suggestions
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID, models.SuggestionOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var out []*models.TransferSuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindOpenSuggestionByPair retrieves the open suggestion for an exact leg
// pair, used to keep re-detection idempotent.
func (r *Repository) FindOpenSuggestionByPair(ctx context.Context, debitID, creditID string) (*models.TransferSuggestion, error) {
	query := `SELECT ` + suggestionColumns + `
		FROM finlink.transfer_suggestions
		WHERE status = $1 AND debit_transaction_id = $2 AND credit_transaction_id = $3`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, query, models.SuggestionOpen, debitID, creditID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: suggestion for pair", service.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find suggestion by pair: %w", err)
	}
	return s, nil
}
