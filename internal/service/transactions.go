package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualTransactionInput is the payload for a user-entered transaction.
type ManualTransactionInput struct {
	AccountID   string           `json:"account_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Direction   models.Direction `json:"direction"`
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	CategoryID  string           `json:"category_id"`
	Notes       string           `json:"notes"`
}

// CreateManualTransaction records a user-entered transaction and runs the
// same classification pass provider transactions get. A negative amount is
// rejected outright, never sign-flipped.
func (s *Service) CreateManualTransaction(ctx context.Context, userID string, input ManualTransactionInput) (*models.Transaction, error) {
	if _, err := s.GetOwnedAccount(ctx, userID, input.AccountID); err != nil {
		return nil, err
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be non-negative, got %s", ErrValidation, input.Amount)
	}

	now := time.Now()
	tx := &models.Transaction{
		ID:          uuid.NewString(),
		AccountID:   input.AccountID,
		Amount:      input.Amount,
		Direction:   input.Direction,
		Date:        input.Date,
		Description: input.Description,
		CategoryID:  input.CategoryID,
		Notes:       input.Notes,
		FlowType:    models.DefaultFlowType(input.Direction),
		IngestedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if _, _, err := s.DetectTransfers(ctx, userID, []string{tx.ID}); err != nil {
		s.log.Errorf("Transfer detection failed for manual transaction %s: %v", tx.ID, err)
	}
	if _, _, err := s.DeriveLiabilities(ctx, userID, []string{tx.ID}); err != nil {
		s.log.Errorf("Liability derivation failed for manual transaction %s: %v", tx.ID, err)
	}

	fresh, err := s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return tx, nil
	}
	return fresh, nil
}

// TransactionPatch carries the user-editable fields of a transaction. Nil
// pointers leave the field untouched.
type TransactionPatch struct {
	CategoryID  *string          `json:"category_id"`
	Notes       *string          `json:"notes"`
	FlowType    *models.FlowType `json:"flow_type"`
	Amount      *decimal.Decimal `json:"amount"`
	Date        *time.Time       `json:"date"`
	Description *string          `json:"description"`
}

// UpdateUserTransaction applies a user override. Changing the amount or date
// of a transaction inside a transfer group dissolves the group: a link whose
// pairing rule no longer holds is stale, and the legs re-enter the detection
// pool on the next pass.
func (s *Service) UpdateUserTransaction(ctx context.Context, userID, transactionID string, patch TransactionPatch) (*models.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetOwnedAccount(ctx, userID, tx.AccountID); err != nil {
		return nil, err
	}

	if patch.Amount != nil && patch.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be non-negative, got %s", ErrValidation, *patch.Amount)
	}

	reshaped := (patch.Amount != nil && !patch.Amount.Equal(tx.Amount)) ||
		(patch.Date != nil && !patch.Date.Equal(tx.Date))
	if reshaped && tx.Grouped() {
		if _, err := s.store.UnlinkTransferGroup(ctx, tx.TransferGroupID); err != nil {
			return nil, fmt.Errorf("failed to dissolve transfer group: %w", err)
		}
		s.log.Infof("Transfer group %s dissolved by edit of transaction %s", tx.TransferGroupID, tx.ID)
		tx, err = s.store.GetTransaction(ctx, transactionID)
		if err != nil {
			return nil, err
		}
	}

	if patch.CategoryID != nil {
		tx.CategoryID = *patch.CategoryID
	}
	if patch.Notes != nil {
		tx.Notes = *patch.Notes
	}
	if patch.FlowType != nil {
		tx.FlowType = *patch.FlowType
		tx.FlowTypeOverridden = true
	}
	if patch.Amount != nil {
		tx.Amount = *patch.Amount
	}
	if patch.Date != nil {
		tx.Date = *patch.Date
	}
	if patch.Description != nil {
		tx.Description = *patch.Description
	}
	tx.UpdatedAt = time.Now()

	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return tx, nil
}
