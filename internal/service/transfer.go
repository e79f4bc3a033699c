package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/google/uuid"
)

// transferDateWindow is how far apart the two legs of a transfer may be.
const transferDateWindow = 3 * 24 * time.Hour

// DetectTransfers runs the pairing pass over newly ingested transactions for
// a user. High-confidence pairs are linked automatically; medium-confidence
// pairs become suggestions; everything else keeps its default flow type.
func (s *Service) DetectTransfers(ctx context.Context, userID string, txIDs []string) (linked, suggested int, err error) {
	txs, err := s.store.ListTransactionsByIDs(ctx, txIDs)
	if err != nil {
		return 0, 0, err
	}

	// Deterministic order: date, then ingestion time.
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].IngestedAt.Before(txs[j].IngestedAt)
	})

	accounts := make(map[string]*models.Account)
	consumed := make(map[string]bool)

	for _, tx := range txs {
		if consumed[tx.ID] || tx.Grouped() || tx.FlowTypeOverridden {
			continue
		}
		if tx.FlowType != models.FlowExpense && tx.FlowType != models.FlowIncome {
			continue
		}

		candidate, err := s.bestCandidate(ctx, userID, tx, consumed)
		if err != nil {
			return linked, suggested, err
		}
		if candidate == nil {
			continue
		}

		confidence, reason, err := s.pairConfidence(ctx, tx, candidate, accounts)
		if err != nil {
			return linked, suggested, err
		}

		switch confidence {
		case ConfidenceHigh:
			sourceID, destinationID := tx.ID, candidate.ID
			if tx.Direction == models.Credit {
				sourceID, destinationID = candidate.ID, tx.ID
			}
			groupID := uuid.NewString()
			if err := s.store.LinkTransferPair(ctx, groupID, sourceID, destinationID); err != nil {
				return linked, suggested, fmt.Errorf("failed to link transfer pair: %w", err)
			}
			consumed[tx.ID] = true
			consumed[candidate.ID] = true
			linked++
			s.log.Infof("Linked transfer group %s (%s -> %s): %s", groupID, sourceID, destinationID, reason)
		case ConfidenceMedium:
			debitID, creditID := tx.ID, candidate.ID
			if tx.Direction == models.Credit {
				debitID, creditID = candidate.ID, tx.ID
			}
			existing, err := s.store.FindOpenSuggestionByPair(ctx, debitID, creditID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return linked, suggested, err
			}
			if existing != nil {
				continue
			}
			now := time.Now()
			suggestion := &models.TransferSuggestion{
				ID:                  uuid.NewString(),
				UserID:              userID,
				DebitTransactionID:  debitID,
				CreditTransactionID: creditID,
				Reason:              reason,
				Status:              models.SuggestionOpen,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := s.store.CreateTransferSuggestion(ctx, suggestion); err != nil {
				return linked, suggested, fmt.Errorf("failed to create transfer suggestion: %w", err)
			}
			suggested++
		}
	}
	return linked, suggested, nil
}

// bestCandidate finds the counterpart for tx: a transaction on a different
// account of the same user with equal amount, opposite direction, within the
// date window, not already consumed and still carrying a plain EXPENSE or
// INCOME flow. Ties break on closest date, then on the most recently
// ingested candidate.
func (s *Service) bestCandidate(ctx context.Context, userID string, tx *models.Transaction, consumed map[string]bool) (*models.Transaction, error) {
	candidates, err := s.store.FindTransferCandidates(ctx, userID, tx.AccountID, tx.Amount, tx.Direction.Opposite(),
		tx.Date.Add(-transferDateWindow), tx.Date.Add(transferDateWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to find transfer candidates: %w", err)
	}

	var best *models.Transaction
	var bestGap time.Duration
	for _, candidate := range candidates {
		if consumed[candidate.ID] || candidate.Grouped() || candidate.FlowTypeOverridden {
			continue
		}
		if candidate.FlowType != models.FlowExpense && candidate.FlowType != models.FlowIncome {
			continue
		}
		if candidate.LiabilityID != "" {
			continue
		}
		gap := tx.Date.Sub(candidate.Date)
		if gap < 0 {
			gap = -gap
		}
		switch {
		case best == nil,
			gap < bestGap,
			gap == bestGap && candidate.IngestedAt.After(best.IngestedAt):
			best = candidate
			bestGap = gap
		}
	}
	return best, nil
}

// pairConfidence scores a candidate pair. High: explicit transfer wording on
// either leg, or one leg sits on a manual account. Medium: intermediary
// wallet or BNPL provider wording. Low otherwise.
func (s *Service) pairConfidence(ctx context.Context, a, b *models.Transaction, cache map[string]*models.Account) (Confidence, string, error) {
	if entry, ok := matchLexicon(transferLexicon, a.Description); ok {
		return entry.Confidence, "matched transfer pattern " + entry.Pattern.String(), nil
	}
	if entry, ok := matchLexicon(transferLexicon, b.Description); ok {
		return entry.Confidence, "matched transfer pattern " + entry.Pattern.String(), nil
	}

	for _, tx := range []*models.Transaction{a, b} {
		account, ok := cache[tx.AccountID]
		if !ok {
			var err error
			account, err = s.store.GetAccount(ctx, tx.AccountID)
			if err != nil {
				return ConfidenceLow, "", err
			}
			cache[tx.AccountID] = account
		}
		if account.Manual {
			return ConfidenceHigh, "one leg on a manual account", nil
		}
	}

	if entry, ok := matchLexicon(walletLexicon, a.Description); ok {
		return ConfidenceMedium, "matched wallet pattern " + entry.Pattern.String(), nil
	}
	if entry, ok := matchLexicon(walletLexicon, b.Description); ok {
		return ConfidenceMedium, "matched wallet pattern " + entry.Pattern.String(), nil
	}
	return ConfidenceLow, "", nil
}

// ListTransferSuggestions returns the user's open suggestions.
func (s *Service) ListTransferSuggestions(ctx context.Context, userID string) ([]*models.TransferSuggestion, error) {
	return s.store.ListOpenSuggestions(ctx, userID)
}

// ConfirmTransferSuggestion links the suggested pair, provided both legs are
// still free and still mirror each other.
func (s *Service) ConfirmTransferSuggestion(ctx context.Context, userID, suggestionID string) error {
	suggestion, err := s.store.GetTransferSuggestion(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion.UserID != userID {
		return fmt.Errorf("%w: suggestion %s", ErrForbidden, suggestionID)
	}
	if suggestion.Status != models.SuggestionOpen {
		return fmt.Errorf("%w: suggestion %s is %s", ErrValidation, suggestionID, suggestion.Status)
	}

	debit, err := s.store.GetTransaction(ctx, suggestion.DebitTransactionID)
	if err != nil {
		return err
	}
	credit, err := s.store.GetTransaction(ctx, suggestion.CreditTransactionID)
	if err != nil {
		return err
	}
	if debit.Grouped() || credit.Grouped() {
		return fmt.Errorf("%w: a leg already belongs to a transfer group", ErrValidation)
	}
	if !debit.Amount.Equal(credit.Amount) {
		return fmt.Errorf("%w: legs no longer have equal amounts", ErrValidation)
	}

	groupID := uuid.NewString()
	if err := s.store.LinkTransferPair(ctx, groupID, debit.ID, credit.ID); err != nil {
		return fmt.Errorf("failed to link transfer pair: %w", err)
	}

	suggestion.Status = models.SuggestionConfirmed
	suggestion.UpdatedAt = time.Now()
	if err := s.store.UpdateTransferSuggestion(ctx, suggestion); err != nil {
		return fmt.Errorf("failed to update suggestion: %w", err)
	}
	s.log.Infof("Suggestion %s confirmed into transfer group %s", suggestionID, groupID)
	return nil
}

// DismissTransferSuggestion closes a suggestion without linking.
func (s *Service) DismissTransferSuggestion(ctx context.Context, userID, suggestionID string) error {
	suggestion, err := s.store.GetTransferSuggestion(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion.UserID != userID {
		return fmt.Errorf("%w: suggestion %s", ErrForbidden, suggestionID)
	}
	if suggestion.Status != models.SuggestionOpen {
		return nil
	}
	suggestion.Status = models.SuggestionDismissed
	suggestion.UpdatedAt = time.Now()
	return s.store.UpdateTransferSuggestion(ctx, suggestion)
}

// UnlinkTransfer dissolves a transfer group explicitly. Both legs revert to
// their direction-default flow type and re-enter the detection pool.
func (s *Service) UnlinkTransfer(ctx context.Context, userID, groupID string) error {
	legs, err := s.store.ListTransferGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(legs) == 0 {
		return fmt.Errorf("%w: transfer group %s", ErrNotFound, groupID)
	}
	for _, leg := range legs {
		account, err := s.store.GetAccount(ctx, leg.AccountID)
		if err != nil {
			return err
		}
		if account.OwnerID != userID {
			return fmt.Errorf("%w: transfer group %s", ErrForbidden, groupID)
		}
	}
	if _, err := s.store.UnlinkTransferGroup(ctx, groupID); err != nil {
		return err
	}
	s.log.Infof("Transfer group %s unlinked by user %s", groupID, userID)
	return nil
}
