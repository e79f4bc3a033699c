package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/google/uuid"
)

// settlementDateWindow is how far a payment may land from an installment's
// due date and still settle it.
const settlementDateWindow = 5 * 24 * time.Hour

// reminderLead is how far ahead of the due date the upcoming reminder goes
// out.
const reminderLead = 3 * 24 * time.Hour

// DeriveLiabilities runs both detection strategies over newly classified
// transactions: settle pending installments first, then create BNPL
// liabilities from fresh installment purchases. The purchase keeps its
// EXPENSE flow type (T+0 accounting: spending is counted once, at purchase).
func (s *Service) DeriveLiabilities(ctx context.Context, userID string, txIDs []string) (created, settled int, err error) {
	txs, err := s.store.ListTransactionsByIDs(ctx, txIDs)
	if err != nil {
		return 0, 0, err
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })

	pending, err := s.pendingInstallments(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	for _, tx := range txs {
		if tx.Grouped() || tx.FlowTypeOverridden || tx.LiabilityID != "" {
			continue
		}

		// Settlement first: an installment payment must never create a new
		// plan of its own.
		inst, liability := s.matchInstallment(ctx, tx, pending)
		if inst != nil {
			if err := s.settleInstallment(ctx, tx, inst, liability); err != nil {
				return created, settled, err
			}
			settled++
			continue
		}

		if tx.Direction != models.Debit || tx.FlowType != models.FlowExpense {
			continue
		}
		entry, ok := matchLexicon(bnplLexicon, tx.Description)
		if !ok {
			continue
		}
		sequence, total := parseInstallmentMarker(tx.Description)
		if sequence > 1 {
			// A later installment of a plan we never saw the purchase for;
			// creating a liability from it would double-count.
			continue
		}

		existing, err := s.store.FindLiabilityBySource(ctx, tx.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return created, settled, err
		}
		if existing != nil {
			continue
		}

		count := entry.Installments
		if total > 0 {
			count = total
		}
		liability, installments, err := s.createBNPL(ctx, userID, tx, entry.Pattern.String(), count)
		if err != nil {
			return created, settled, err
		}
		created++
		pending = append(pending, installments...)
		s.log.Infof("BNPL liability %s derived from transaction %s: %s over %d installments",
			liability.ID, tx.ID, liability.OriginalAmount, count)
	}
	return created, settled, nil
}

// pendingInstallments loads the user's open installments (pending and
// overdue both settle).
func (s *Service) pendingInstallments(ctx context.Context, userID string) ([]*models.Installment, error) {
	items, err := s.store.ListPendingInstallmentsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending installments: %w", err)
	}
	return items, nil
}

// matchInstallment finds the open installment a transaction settles, if any:
// equal amount, due date within the settlement window, and either the
// payment is on the liability's own account (credit-card cycles) or the
// description matches the pattern that created the plan (BNPL).
func (s *Service) matchInstallment(ctx context.Context, tx *models.Transaction, pending []*models.Installment) (*models.Installment, *models.Liability) {
	var best *models.Installment
	var bestLiability *models.Liability
	var bestGap time.Duration

	for _, inst := range pending {
		if inst.Status == models.InstallmentPaid || !inst.Amount.Equal(tx.Amount) {
			continue
		}
		gap := tx.Date.Sub(inst.DueDate)
		if gap < 0 {
			gap = -gap
		}
		if gap > settlementDateWindow {
			continue
		}

		liability, err := s.store.GetLiability(ctx, inst.LiabilityID)
		if err != nil || liability.Status != models.LiabilityOpen {
			continue
		}

		match := false
		switch liability.Type {
		case models.LiabilityCreditCardCycle:
			// Paying a card shows up as a credit on the card account.
			match = tx.AccountID == liability.AccountID && tx.Direction == models.Credit
		default:
			if liability.ProviderPattern != "" {
				if re, rerr := regexp.Compile(liability.ProviderPattern); rerr == nil {
					match = tx.Direction == models.Debit && re.MatchString(tx.Description)
				}
			}
		}
		if !match {
			continue
		}

		if best == nil || gap < bestGap {
			best = inst
			bestLiability = liability
			bestGap = gap
		}
	}
	return best, bestLiability
}

// settleInstallment applies one payment: the transaction becomes a
// LIABILITY_PAYMENT (never spending), the installment is PAID, the liability
// balance drops, and the matching scheduled transaction is realized. A
// liability whose balance reaches zero is closed, not deleted.
func (s *Service) settleInstallment(ctx context.Context, tx *models.Transaction, inst *models.Installment, liability *models.Liability) error {
	now := time.Now()

	tx.FlowType = models.FlowLiabilityPayment
	tx.LiabilityID = liability.ID
	tx.UpdatedAt = now
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to reclassify payment transaction: %w", err)
	}

	inst.Status = models.InstallmentPaid
	inst.SettledTransactionID = tx.ID
	inst.UpdatedAt = now
	if err := s.store.UpdateInstallment(ctx, inst); err != nil {
		return fmt.Errorf("failed to mark installment paid: %w", err)
	}

	liability.CurrentBalance = liability.CurrentBalance.Sub(inst.Amount)
	if !liability.CurrentBalance.IsPositive() {
		liability.Status = models.LiabilityClosed
	}
	liability.UpdatedAt = now
	if err := s.store.UpdateLiability(ctx, liability); err != nil {
		return fmt.Errorf("failed to update liability balance: %w", err)
	}

	scheduled, err := s.store.FindScheduledByInstallment(ctx, inst.ID)
	if err == nil && scheduled.Status == models.ScheduledUpcoming {
		scheduled.Status = models.ScheduledRealized
		scheduled.UpdatedAt = now
		if uerr := s.store.UpdateScheduledTransaction(ctx, scheduled); uerr != nil {
			return fmt.Errorf("failed to realize scheduled transaction: %w", uerr)
		}
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.log.Infof("Installment %d of liability %s settled by transaction %s (balance %s)",
		inst.Sequence, liability.ID, tx.ID, liability.CurrentBalance)
	return nil
}

// createBNPL materializes a liability, its installment plan and the matching
// scheduled transactions from an installment purchase.
func (s *Service) createBNPL(ctx context.Context, userID string, tx *models.Transaction, pattern string, count int) (*models.Liability, []*models.Installment, error) {
	now := time.Now()
	firstDue := tx.Date.AddDate(0, 1, 0)
	liability := &models.Liability{
		ID:                  uuid.NewString(),
		OwnerID:             userID,
		AccountID:           tx.AccountID,
		Type:                models.LiabilityBNPL,
		Description:         tx.Description,
		OriginalAmount:      tx.Amount,
		CurrentBalance:      tx.Amount,
		DueDate:             firstDue,
		SourceTransactionID: tx.ID,
		ProviderPattern:     pattern,
		Status:              models.LiabilityOpen,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateLiability(ctx, liability); err != nil {
		return nil, nil, fmt.Errorf("failed to create liability: %w", err)
	}

	installments := models.SplitInstallments(liability.ID, tx.Amount, count, firstDue)
	for _, inst := range installments {
		inst.ID = uuid.NewString()
		inst.CreatedAt = now
		inst.UpdatedAt = now
	}
	if err := s.store.CreateInstallments(ctx, installments); err != nil {
		return nil, nil, fmt.Errorf("failed to create installments: %w", err)
	}

	for _, inst := range installments {
		scheduled := &models.ScheduledTransaction{
			ID:            uuid.NewString(),
			OwnerID:       userID,
			AccountID:     tx.AccountID,
			LiabilityID:   liability.ID,
			InstallmentID: inst.ID,
			Description:   fmt.Sprintf("%s (installment %d/%d)", tx.Description, inst.Sequence, count),
			Amount:        inst.Amount,
			DueDate:       inst.DueDate,
			Status:        models.ScheduledUpcoming,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.CreateScheduledTransaction(ctx, scheduled); err != nil {
			return nil, nil, fmt.Errorf("failed to create scheduled transaction: %w", err)
		}
	}

	tx.LiabilityID = liability.ID
	tx.UpdatedAt = now
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("failed to tag source transaction: %w", err)
	}
	return liability, installments, nil
}

// CloseCreditCardCycles closes one CREDIT_CARD_CYCLE liability per billing
// account per month, keyed by (account, cycle label) so reruns are no-ops.
// Called by the daily scheduler job.
func (s *Service) CloseCreditCardCycles(ctx context.Context, asOf time.Time) (int, error) {
	accounts, err := s.store.ListBillingAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list billing accounts: %w", err)
	}

	closed := 0
	for _, account := range accounts {
		if account.Nature != models.NatureLiability || account.StatementDay <= 0 {
			continue
		}
		if asOf.Day() < account.StatementDay {
			continue
		}
		label := asOf.Format("2006-01")
		existing, err := s.store.FindLiabilityByCycle(ctx, account.ID, label)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return closed, err
		}
		if existing != nil {
			continue
		}

		// Canonical liability balance: positive = owes.
		statement := account.Balance
		if !statement.IsPositive() {
			continue
		}

		dueDay := account.DueDay
		if dueDay <= 0 {
			dueDay = account.StatementDay
		}
		cycleEnd := time.Date(asOf.Year(), asOf.Month(), account.StatementDay, 0, 0, 0, 0, asOf.Location())
		dueDate := time.Date(asOf.Year(), asOf.Month(), dueDay, 0, 0, 0, 0, asOf.Location()).AddDate(0, 1, 0)

		now := time.Now()
		liability := &models.Liability{
			ID:             uuid.NewString(),
			OwnerID:        account.OwnerID,
			AccountID:      account.ID,
			Type:           models.LiabilityCreditCardCycle,
			Description:    fmt.Sprintf("%s statement %s", account.Name, label),
			OriginalAmount: statement,
			CurrentBalance: statement,
			DueDate:        dueDate,
			CycleLabel:     label,
			Status:         models.LiabilityOpen,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateLiability(ctx, liability); err != nil {
			return closed, fmt.Errorf("failed to create cycle liability: %w", err)
		}

		installment := &models.Installment{
			ID:          uuid.NewString(),
			LiabilityID: liability.ID,
			Sequence:    1,
			DueDate:     dueDate,
			Amount:      statement,
			Status:      models.InstallmentPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.CreateInstallments(ctx, []*models.Installment{installment}); err != nil {
			return closed, fmt.Errorf("failed to create cycle installment: %w", err)
		}

		scheduled := &models.ScheduledTransaction{
			ID:            uuid.NewString(),
			OwnerID:       account.OwnerID,
			AccountID:     account.ID,
			LiabilityID:   liability.ID,
			InstallmentID: installment.ID,
			Description:   liability.Description,
			Amount:        statement,
			DueDate:       dueDate,
			Status:        models.ScheduledUpcoming,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.CreateScheduledTransaction(ctx, scheduled); err != nil {
			return closed, fmt.Errorf("failed to create cycle scheduled transaction: %w", err)
		}

		closed++
		s.log.Infof("Closed billing cycle %s (ended %s) for account %s: statement %s due %s",
			label, cycleEnd.Format("2006-01-02"), account.ID, statement, dueDate.Format("2006-01-02"))
	}
	return closed, nil
}

// DeclareLiabilityInput is the payload for a user-declared liability.
type DeclareLiabilityInput struct {
	Type          models.LiabilityType `json:"type"`
	TransactionID string               `json:"transaction_id"`
	Installments  int                  `json:"installments"`
	FirstDueDate  time.Time            `json:"first_due_date"`
}

// DeclareLiability creates a liability explicitly against an existing
// transaction, with an evenly split installment plan.
func (s *Service) DeclareLiability(ctx context.Context, userID string, input DeclareLiabilityInput) (*models.Liability, error) {
	if input.Type != models.LiabilityBNPL && input.Type != models.LiabilityLoan {
		return nil, fmt.Errorf("%w: declared liability type must be BNPL or LOAN", ErrValidation)
	}
	if input.Installments < 1 {
		return nil, fmt.Errorf("%w: installment count must be at least 1", ErrValidation)
	}

	tx, err := s.store.GetTransaction(ctx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetOwnedAccount(ctx, userID, tx.AccountID); err != nil {
		return nil, err
	}
	existing, err := s.store.FindLiabilityBySource(ctx, tx.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: transaction %s already backs liability %s", ErrValidation, tx.ID, existing.ID)
	}

	firstDue := input.FirstDueDate
	if firstDue.IsZero() {
		firstDue = tx.Date.AddDate(0, 1, 0)
	}

	now := time.Now()
	liability := &models.Liability{
		ID:                  uuid.NewString(),
		OwnerID:             userID,
		AccountID:           tx.AccountID,
		Type:                input.Type,
		Description:         tx.Description,
		OriginalAmount:      tx.Amount,
		CurrentBalance:      tx.Amount,
		DueDate:             firstDue,
		SourceTransactionID: tx.ID,
		Status:              models.LiabilityOpen,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateLiability(ctx, liability); err != nil {
		return nil, fmt.Errorf("failed to create declared liability: %w", err)
	}

	installments := models.SplitInstallments(liability.ID, tx.Amount, input.Installments, firstDue)
	for _, inst := range installments {
		inst.ID = uuid.NewString()
		inst.CreatedAt = now
		inst.UpdatedAt = now
	}
	if err := s.store.CreateInstallments(ctx, installments); err != nil {
		return nil, fmt.Errorf("failed to create installments: %w", err)
	}
	for _, inst := range installments {
		scheduled := &models.ScheduledTransaction{
			ID:            uuid.NewString(),
			OwnerID:       userID,
			AccountID:     tx.AccountID,
			LiabilityID:   liability.ID,
			InstallmentID: inst.ID,
			Description:   fmt.Sprintf("%s (installment %d/%d)", tx.Description, inst.Sequence, input.Installments),
			Amount:        inst.Amount,
			DueDate:       inst.DueDate,
			Status:        models.ScheduledUpcoming,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.CreateScheduledTransaction(ctx, scheduled); err != nil {
			return nil, fmt.Errorf("failed to create scheduled transaction: %w", err)
		}
	}

	tx.LiabilityID = liability.ID
	tx.UpdatedAt = now
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to tag source transaction: %w", err)
	}
	s.log.Infof("Liability %s declared by user %s against transaction %s", liability.ID, userID, tx.ID)
	return liability, nil
}

// ListLiabilities returns the user's liabilities with their installments.
func (s *Service) ListLiabilities(ctx context.Context, userID string) ([]*LiabilityWithPlan, error) {
	liabilities, err := s.store.ListLiabilitiesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*LiabilityWithPlan, 0, len(liabilities))
	for _, liability := range liabilities {
		installments, err := s.store.ListInstallmentsByLiability(ctx, liability.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &LiabilityWithPlan{Liability: liability, Installments: installments})
	}
	return out, nil
}

// LiabilityWithPlan bundles a liability and its installment plan.
type LiabilityWithPlan struct {
	Liability    *models.Liability     `json:"liability"`
	Installments []*models.Installment `json:"installments"`
}

// MarkOverdueInstallments flags pending installments past their due date and
// sends reminders when a notifier is configured. Daily scheduler job.
func (s *Service) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int, error) {
	overdue, err := s.store.MarkOverdueInstallments(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if s.notifier == nil {
		return len(overdue), nil
	}
	for _, inst := range overdue {
		liability, err := s.store.GetLiability(ctx, inst.LiabilityID)
		if err != nil {
			s.log.Errorf("Failed to load liability %s for reminder: %v", inst.LiabilityID, err)
			continue
		}
		if err := s.notifier.SendInstallmentReminder(ctx, liability.OwnerID, inst, liability, true); err != nil {
			s.log.Errorf("Failed to send overdue reminder for installment %s: %v", inst.ID, err)
		}
	}
	return len(overdue), nil
}

// RemindUpcomingInstallments emails reminders for pending installments that
// cross the reminder lead. The window is one day wide so a daily run sends
// each reminder once. Daily scheduler job.
func (s *Service) RemindUpcomingInstallments(ctx context.Context, asOf time.Time) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	from := asOf.Add(reminderLead - 24*time.Hour)
	to := asOf.Add(reminderLead)
	due, err := s.store.ListInstallmentsDueBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to list due installments: %w", err)
	}

	sent := 0
	for _, inst := range due {
		liability, err := s.store.GetLiability(ctx, inst.LiabilityID)
		if err != nil {
			s.log.Errorf("Failed to load liability %s for reminder: %v", inst.LiabilityID, err)
			continue
		}
		if liability.Status != models.LiabilityOpen {
			continue
		}
		if err := s.notifier.SendInstallmentReminder(ctx, liability.OwnerID, inst, liability, false); err != nil {
			s.log.Errorf("Failed to send reminder for installment %s: %v", inst.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// parseInstallmentMarker extracts an explicit "k/N" marker from a
// description. Returns zeros when absent or nonsensical.
func parseInstallmentMarker(description string) (sequence, total int) {
	match := installmentMarker.FindStringSubmatch(description)
	if match == nil {
		return 0, 0
	}
	sequence, _ = strconv.Atoi(match[1])
	total, _ = strconv.Atoi(match[2])
	if total < 1 || sequence < 1 || sequence > total {
		return 0, 0
	}
	return sequence, total
}
