package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/service"
	"github.com/shopspring/decimal"
)

// liabilityOfType returns the user's single liability of the given type.
func liabilityOfType(t *testing.T, svc *service.Service, userID string, typ models.LiabilityType) *service.LiabilityWithPlan {
	t.Helper()
	plans, err := svc.ListLiabilities(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	var found *service.LiabilityWithPlan
	for _, plan := range plans {
		if plan.Liability.Type == typ {
			if found != nil {
				t.Fatalf("expected one %s liability, found several", typ)
			}
			found = plan
		}
	}
	if found == nil {
		t.Fatalf("no %s liability for %s", typ, userID)
	}
	return found
}

func sumInstallments(installments []*models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Amount)
	}
	return total
}

func TestBNPLPurchaseCreatesPlan(t *testing.T) {
	svc, _, sb := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "500.00")})
	sb.SeedTransactions(conn.ExternalConnectionID, "chk-1", []provider.Transaction{
		providerTx("p1", "100.00", "DEBIT", daysAgo(3), "KLARNA 1/4 SNEAKER SHOP"),
	})
	result, err := svc.Sync(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.LiabilitiesCreated != 1 {
		t.Fatalf("expected 1 liability created, got %d", result.LiabilitiesCreated)
	}

	plan := liabilityOfType(t, svc, "user-1", models.LiabilityBNPL)
	if !plan.Liability.OriginalAmount.Equal(dec(t, "100.00")) ||
		!plan.Liability.CurrentBalance.Equal(dec(t, "100.00")) {
		t.Errorf("liability amounts wrong: original %s balance %s",
			plan.Liability.OriginalAmount, plan.Liability.CurrentBalance)
	}
	if len(plan.Installments) != 4 {
		t.Fatalf("expected 4 installments from the 1/4 marker, got %d", len(plan.Installments))
	}
	if !sumInstallments(plan.Installments).Equal(plan.Liability.OriginalAmount) {
		t.Error("installments do not sum to the liability amount")
	}
	for i, inst := range plan.Installments {
		if inst.Sequence != i+1 {
			t.Errorf("installment %d has sequence %d", i, inst.Sequence)
		}
		if inst.Status != models.InstallmentPending {
			t.Errorf("installment %d status %s", i, inst.Status)
		}
	}

	// The purchase keeps counting as spending and is tagged with its plan.
	checking := accountByExternalID(t, svc, "user-1", "chk-1")
	purchase := transactionByExternalID(t, svc, "user-1", checking.ID, "p1")
	if purchase.FlowType != models.FlowExpense {
		t.Errorf("purchase flow should stay EXPENSE, got %s", purchase.FlowType)
	}
	if purchase.LiabilityID != plan.Liability.ID {
		t.Error("purchase not tagged with its liability")
	}

	// One scheduled row per installment.
	scheduled, err := svc.ListUpcomingScheduled(ctx, "user-1", time.Now().AddDate(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(scheduled) != 4 {
		t.Errorf("expected 4 scheduled transactions, got %d", len(scheduled))
	}

	// Declaring against the same purchase is rejected.
	_, err = svc.DeclareLiability(ctx, "user-1", service.DeclareLiabilityInput{
		Type:          models.LiabilityBNPL,
		TransactionID: purchase.ID,
		Installments:  4,
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected validation error for already-backed transaction, got %v", err)
	}
}

func TestBNPLLaterInstallmentDoesNotCreatePlan(t *testing.T) {
	svc, _, sb := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "500.00")})
	sb.SeedTransactions(conn.ExternalConnectionID, "chk-1", []provider.Transaction{
		providerTx("p2", "25.00", "DEBIT", daysAgo(3), "KLARNA 2/4 SNEAKER SHOP"),
	})
	result, err := svc.Sync(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.LiabilitiesCreated != 0 {
		t.Fatalf("a later installment must not create a plan, got %d", result.LiabilitiesCreated)
	}
}

func TestBNPLLexiconDefaultCount(t *testing.T) {
	svc, _, sb := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "500.00")})
	sb.SeedTransactions(conn.ExternalConnectionID, "chk-1", []provider.Transaction{
		providerTx("p1", "99.99", "DEBIT", daysAgo(3), "AFFIRM PURCHASE HOME STORE"),
	})
	if _, err := svc.Sync(ctx, conn.ID); err != nil {
		t.Fatal(err)
	}

	plan := liabilityOfType(t, svc, "user-1", models.LiabilityBNPL)
	if len(plan.Installments) != 3 {
		t.Fatalf("expected the provider default of 3 installments, got %d", len(plan.Installments))
	}
	if !sumInstallments(plan.Installments).Equal(dec(t, "99.99")) {
		t.Error("installments do not sum to the purchase amount")
	}
}

func TestBNPLSettlementLifecycle(t *testing.T) {
	svc, _, sb := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "500.00")})
	sb.SeedTransactions(conn.ExternalConnectionID, "chk-1", []provider.Transaction{
		providerTx("p1", "90.00", "DEBIT", daysAgo(70), "Sofa installment plan"),
	})
	if _, err := svc.Sync(ctx, conn.ID); err != nil {
		t.Fatal(err)
	}

	plan := liabilityOfType(t, svc, "user-1", models.LiabilityBNPL)
	if len(plan.Installments) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(plan.Installments))
	}
	checking := accountByExternalID(t, svc, "user-1", "chk-1")

	for i, inst := range plan.Installments {
		payment, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
			AccountID:   checking.ID,
			Amount:      inst.Amount,
			Direction:   models.Debit,
			Date:        inst.DueDate,
			Description: "Installment autopay",
		})
		if err != nil {
			t.Fatal(err)
		}
		if payment.FlowType != models.FlowLiabilityPayment {
			t.Fatalf("payment %d flow %s, want LIABILITY_PAYMENT", i+1, payment.FlowType)
		}
		if payment.LiabilityID != plan.Liability.ID {
			t.Fatalf("payment %d not tied to the liability", i+1)
		}
	}

	plan = liabilityOfType(t, svc, "user-1", models.LiabilityBNPL)
	if !plan.Liability.CurrentBalance.IsZero() {
		t.Errorf("balance should be zero after full payoff, got %s", plan.Liability.CurrentBalance)
	}
	if plan.Liability.Status != models.LiabilityClosed {
		t.Errorf("liability should be CLOSED, got %s", plan.Liability.Status)
	}
	for _, inst := range plan.Installments {
		if inst.Status != models.InstallmentPaid {
			t.Errorf("installment %d status %s, want PAID", inst.Sequence, inst.Status)
		}
		if inst.SettledTransactionID == "" {
			t.Errorf("installment %d missing its settling transaction", inst.Sequence)
		}
	}

	// Every scheduled row was realized along the way.
	scheduled, err := svc.ListUpcomingScheduled(ctx, "user-1", time.Now().AddDate(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(scheduled) != 0 {
		t.Errorf("expected no upcoming scheduled transactions after payoff, got %d", len(scheduled))
	}
}

func TestDeclareLiabilityValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cash, err := svc.CreateManualAccount(ctx, "user-1", service.ManualAccountInput{
		Name: "Cash", Currency: "USD", Nature: models.NatureAsset, Balance: dec(t, "0.00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID:   cash.ID,
		Amount:      dec(t, "600.00"),
		Direction:   models.Debit,
		Date:        daysAgo(10),
		Description: "New laptop",
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		input service.DeclareLiabilityInput
	}{
		{"cycle type rejected", service.DeclareLiabilityInput{
			Type: models.LiabilityCreditCardCycle, TransactionID: tx.ID, Installments: 3}},
		{"zero installments", service.DeclareLiabilityInput{
			Type: models.LiabilityLoan, TransactionID: tx.ID, Installments: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.DeclareLiability(ctx, "user-1", tc.input); !errors.Is(err, service.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := svc.DeclareLiability(ctx, "user-2", service.DeclareLiabilityInput{
		Type: models.LiabilityLoan, TransactionID: tx.ID, Installments: 6,
	}); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden for another user, got %v", err)
	}

	liability, err := svc.DeclareLiability(ctx, "user-1", service.DeclareLiabilityInput{
		Type:          models.LiabilityLoan,
		TransactionID: tx.ID,
		Installments:  6,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !liability.OriginalAmount.Equal(dec(t, "600.00")) {
		t.Errorf("declared amount %s, want 600.00", liability.OriginalAmount)
	}
	plan := liabilityOfType(t, svc, "user-1", models.LiabilityLoan)
	if len(plan.Installments) != 6 {
		t.Errorf("expected 6 installments, got %d", len(plan.Installments))
	}
}

func TestCloseCreditCardCycles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	card, err := svc.CreateManualAccount(ctx, "user-1", service.ManualAccountInput{
		Name:         "Rewards Card",
		Currency:     "USD",
		Nature:       models.NatureLiability,
		Balance:      dec(t, "431.17"),
		StatementDay: 10,
		DueDay:       5,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Before the statement day nothing closes.
	early := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	closed, err := svc.CloseCreditCardCycles(ctx, early)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatalf("closed %d cycles before the statement day", closed)
	}

	asOf := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	closed, err = svc.CloseCreditCardCycles(ctx, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 cycle closed, got %d", closed)
	}

	plan := liabilityOfType(t, svc, "user-1", models.LiabilityCreditCardCycle)
	if !plan.Liability.CurrentBalance.Equal(dec(t, "431.17")) {
		t.Errorf("statement balance %s, want 431.17", plan.Liability.CurrentBalance)
	}
	if plan.Liability.CycleLabel != "2026-03" {
		t.Errorf("cycle label %q, want 2026-03", plan.Liability.CycleLabel)
	}
	wantDue := time.Date(2026, time.April, 5, 0, 0, 0, 0, time.UTC)
	if !plan.Liability.DueDate.Equal(wantDue) {
		t.Errorf("due date %s, want %s", plan.Liability.DueDate, wantDue)
	}
	if len(plan.Installments) != 1 {
		t.Fatalf("expected a single cycle installment, got %d", len(plan.Installments))
	}

	// Re-running the job in the same month is a no-op.
	closed, err = svc.CloseCreditCardCycles(ctx, asOf.AddDate(0, 0, 5))
	if err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatalf("rerun closed %d extra cycles", closed)
	}

	// Paying the card settles the cycle: a credit on the card account for the
	// statement amount near the due date.
	payment, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID:   card.ID,
		Amount:      dec(t, "431.17"),
		Direction:   models.Credit,
		Date:        wantDue,
		Description: "Payment received",
	})
	if err != nil {
		t.Fatal(err)
	}
	if payment.FlowType != models.FlowLiabilityPayment {
		t.Errorf("card payment flow %s, want LIABILITY_PAYMENT", payment.FlowType)
	}

	plan = liabilityOfType(t, svc, "user-1", models.LiabilityCreditCardCycle)
	if plan.Liability.Status != models.LiabilityClosed {
		t.Errorf("cycle should be CLOSED after payment, got %s", plan.Liability.Status)
	}
	if plan.Installments[0].Status != models.InstallmentPaid {
		t.Errorf("cycle installment status %s, want PAID", plan.Installments[0].Status)
	}
}

func TestCloseCreditCardCyclesSkipsZeroBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateManualAccount(ctx, "user-1", service.ManualAccountInput{
		Name:         "Idle Card",
		Currency:     "USD",
		Nature:       models.NatureLiability,
		Balance:      dec(t, "0.00"),
		StatementDay: 1,
	}); err != nil {
		t.Fatal(err)
	}

	closed, err := svc.CloseCreditCardCycles(ctx, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatalf("a card with nothing owed closed %d cycles", closed)
	}
}

type recordedReminder struct {
	userID  string
	overdue bool
}

// capturingNotifier records reminder calls instead of sending email.
type capturingNotifier struct {
	sent []recordedReminder
}

func (n *capturingNotifier) SendInstallmentReminder(ctx context.Context, userID string, installment *models.Installment, liability *models.Liability, overdue bool) error {
	n.sent = append(n.sent, recordedReminder{userID: userID, overdue: overdue})
	return nil
}

func TestRemindUpcomingInstallments(t *testing.T) {
	notifier := &capturingNotifier{}
	svc, _, sb := newTestServiceNotify(t, notifier)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "500.00")})
	sb.SeedTransactions(conn.ExternalConnectionID, "chk-1", []provider.Transaction{
		providerTx("p1", "80.00", "DEBIT", daysAgo(3), "ZIPPAY BIKE PARTS"),
	})
	if _, err := svc.Sync(ctx, conn.ID); err != nil {
		t.Fatal(err)
	}

	plan := liabilityOfType(t, svc, "user-1", models.LiabilityBNPL)
	firstDue := plan.Installments[0].DueDate

	// Three days out the reminder fires once, later runs stay silent.
	sent, err := svc.RemindUpcomingInstallments(ctx, firstDue.AddDate(0, 0, -3).Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].userID != "user-1" || notifier.sent[0].overdue {
		t.Errorf("reminder recorded wrong: %+v", notifier.sent)
	}

	sent, err = svc.RemindUpcomingInstallments(ctx, firstDue.AddDate(0, 0, -1))
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Errorf("day-before run sent %d reminders", sent)
	}
}

func TestMarkOverdueInstallments(t *testing.T) {
	svc, _, sb := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	// Purchase 70 days back puts the first installment due about 40 days ago.
	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "500.00")})
	sb.SeedTransactions(conn.ExternalConnectionID, "chk-1", []provider.Transaction{
		providerTx("p1", "60.00", "DEBIT", daysAgo(70), "SEZZLE OUTDOOR GEAR"),
	})
	if _, err := svc.Sync(ctx, conn.ID); err != nil {
		t.Fatal(err)
	}

	marked, err := svc.MarkOverdueInstallments(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if marked < 1 {
		t.Fatalf("expected at least one overdue installment, got %d", marked)
	}

	plan := liabilityOfType(t, svc, "user-1", models.LiabilityBNPL)
	if plan.Installments[0].Status != models.InstallmentOverdue {
		t.Errorf("first installment status %s, want OVERDUE", plan.Installments[0].Status)
	}

	// Rerun marks nothing new.
	marked, err = svc.MarkOverdueInstallments(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if marked != 0 {
		t.Errorf("rerun marked %d installments", marked)
	}

	// An overdue installment still settles.
	checking := accountByExternalID(t, svc, "user-1", "chk-1")
	payment, err := svc.CreateManualTransaction(ctx, "user-1", service.ManualTransactionInput{
		AccountID:   checking.ID,
		Amount:      plan.Installments[0].Amount,
		Direction:   models.Debit,
		Date:        plan.Installments[0].DueDate.AddDate(0, 0, 2),
		Description: "SEZZLE late payment",
	})
	if err != nil {
		t.Fatal(err)
	}
	if payment.FlowType != models.FlowLiabilityPayment {
		t.Errorf("late payment flow %s, want LIABILITY_PAYMENT", payment.FlowType)
	}
}
