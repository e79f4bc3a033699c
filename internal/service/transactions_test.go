package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
)

func manualAccount(t *testing.T, svc *service.Service, userID, name string) *models.Account {
	t.Helper()
	account, err := svc.CreateManualAccount(context.Background(), userID, service.ManualAccountInput{
		Name:     name,
		Currency: "USD",
		Nature:   models.NatureAsset,
		Balance:  dec(t, "0.00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return account
}

func TestCreateManualTransactionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	account := manualAccount(t, svc, "user-1", "Cash")

	_, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID: account.ID,
		Amount:    dec(t, "-5.00"),
		Direction: models.Debit,
		Date:      daysAgo(1),
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Errorf("negative amount: expected validation error, got %v", err)
	}

	_, err = svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID: account.ID,
		Amount:    dec(t, "5.00"),
		Direction: "SIDEWAYS",
		Date:      daysAgo(1),
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Errorf("bad direction: expected validation error, got %v", err)
	}

	_, err = svc.CreateManualTransaction(ctx, "user-2", service.ManualTransactionInput{
		AccountID: account.ID,
		Amount:    dec(t, "5.00"),
		Direction: models.Debit,
		Date:      daysAgo(1),
	})
	if !errors.Is(err, service.ErrForbidden) {
		t.Errorf("foreign account: expected forbidden, got %v", err)
	}

	_, err = svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID: "no-such-account",
		Amount:    dec(t, "5.00"),
		Direction: models.Debit,
		Date:      daysAgo(1),
	})
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("unknown account: expected not found, got %v", err)
	}
}

// linkedManualPair creates a debit and a credit on two manual accounts that
// auto-link into a transfer group, and returns the fresh legs.
func linkedManualPair(t *testing.T, svc *service.Service, userID string) (*models.Transaction, *models.Transaction) {
	t.Helper()
	ctx := context.Background()
	cash := manualAccount(t, svc, userID, "Cash")
	jar := manualAccount(t, svc, userID, "Savings Jar")

	debit, err := svc.CreateManualTransaction(ctx, userID, service.ManualTransactionInput{
		AccountID:   cash.ID,
		Amount:      dec(t, "40.00"),
		Direction:   models.Debit,
		Date:        daysAgo(2),
		Description: "Moved to the jar",
	})
	if err != nil {
		t.Fatal(err)
	}
	credit, err := svc.CreateManualTransaction(ctx, userID, service.ManualTransactionInput{
		AccountID:   jar.ID,
		Amount:      dec(t, "40.00"),
		Direction:   models.Credit,
		Date:        daysAgo(2),
		Description: "From cash",
	})
	if err != nil {
		t.Fatal(err)
	}
	if credit.TransferGroupID == "" {
		t.Fatal("manual pair did not auto-link")
	}
	debit, err = svc.UpdateUserTransaction(ctx, userID, debit.ID, service.TransactionPatch{})
	if err != nil {
		t.Fatal(err)
	}
	return debit, credit
}

func TestEditReshapeDissolvesTransferGroup(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	debit, credit := linkedManualPair(t, svc, "user-1")

	amount := dec(t, "45.00")
	edited, err := svc.UpdateUserTransaction(ctx, "user-1", credit.ID, service.TransactionPatch{
		Amount: &amount,
	})
	if err != nil {
		t.Fatal(err)
	}
	if edited.Grouped() {
		t.Error("edited leg still grouped")
	}
	if !edited.Amount.Equal(amount) {
		t.Errorf("amount %s, want 45.00", edited.Amount)
	}
	if edited.FlowType != models.FlowIncome {
		t.Errorf("credit leg should revert to INCOME, got %s", edited.FlowType)
	}

	other, err := svc.UpdateUserTransaction(ctx, "user-1", debit.ID, service.TransactionPatch{})
	if err != nil {
		t.Fatal(err)
	}
	if other.Grouped() {
		t.Error("counterpart leg still grouped")
	}
	if other.FlowType != models.FlowExpense {
		t.Errorf("debit leg should revert to EXPENSE, got %s", other.FlowType)
	}
}

func TestEditMetadataKeepsTransferGroup(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	debit, _ := linkedManualPair(t, svc, "user-1")

	notes := "for the holiday fund"
	category := ""
	edited, err := svc.UpdateUserTransaction(ctx, "user-1", debit.ID, service.TransactionPatch{
		Notes:      &notes,
		CategoryID: &category,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !edited.Grouped() {
		t.Error("metadata edit must not dissolve the group")
	}
	if edited.Notes != notes {
		t.Errorf("notes %q, want %q", edited.Notes, notes)
	}

	// Re-stating the same amount is not a reshape either.
	same := debit.Amount
	edited, err = svc.UpdateUserTransaction(ctx, "user-1", debit.ID, service.TransactionPatch{
		Amount: &same,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !edited.Grouped() {
		t.Error("unchanged amount must not dissolve the group")
	}
}

func TestFlowOverrideExcludesFromDetection(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	cash := manualAccount(t, svc, "user-1", "Cash")
	jar := manualAccount(t, svc, "user-1", "Savings Jar")

	debit, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID:   cash.ID,
		Amount:      dec(t, "33.00"),
		Direction:   models.Debit,
		Date:        daysAgo(2),
		Description: "Store return handling",
	})
	if err != nil {
		t.Fatal(err)
	}

	refund := models.FlowRefund
	overridden, err := svc.UpdateUserTransaction(ctx, "user-1", debit.ID, service.TransactionPatch{
		FlowType: &refund,
	})
	if err != nil {
		t.Fatal(err)
	}
	if overridden.FlowType != models.FlowRefund || !overridden.FlowTypeOverridden {
		t.Fatalf("override not recorded: flow %s overridden %v",
			overridden.FlowType, overridden.FlowTypeOverridden)
	}

	credit, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID:   jar.ID,
		Amount:      dec(t, "33.00"),
		Direction:   models.Credit,
		Date:        daysAgo(2),
		Description: "Deposit",
	})
	if err != nil {
		t.Fatal(err)
	}
	if credit.Grouped() {
		t.Error("an overridden leg must never be paired")
	}
}

func TestUpdateTransactionOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	account := manualAccount(t, svc, "user-1", "Cash")

	tx, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID:   account.ID,
		Amount:      dec(t, "12.00"),
		Direction:   models.Debit,
		Date:        daysAgo(1),
		Description: "Lunch",
	})
	if err != nil {
		t.Fatal(err)
	}

	notes := "someone else's lunch"
	if _, err := svc.UpdateUserTransaction(ctx, "user-2", tx.ID, service.TransactionPatch{
		Notes: &notes,
	}); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}

	bad := dec(t, "-1.00")
	if _, err := svc.UpdateUserTransaction(ctx, "user-1", tx.ID, service.TransactionPatch{
		Amount: &bad,
	}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected validation error for negative amount, got %v", err)
	}
}
