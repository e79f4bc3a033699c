package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSplitInstallmentsEvenSplit(t *testing.T) {
	firstDue := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	parts := SplitInstallments("liab-1", decimal.RequireFromString("90.00"), 3, firstDue)

	if len(parts) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(parts))
	}
	for i, p := range parts {
		if !p.Amount.Equal(decimal.RequireFromString("30.00")) {
			t.Errorf("installment %d: expected 30.00, got %s", i+1, p.Amount)
		}
		if p.Sequence != i+1 {
			t.Errorf("installment %d: expected sequence %d, got %d", i+1, i+1, p.Sequence)
		}
		wantDue := firstDue.AddDate(0, i, 0)
		if !p.DueDate.Equal(wantDue) {
			t.Errorf("installment %d: expected due %s, got %s", i+1, wantDue, p.DueDate)
		}
		if p.Status != InstallmentPending {
			t.Errorf("installment %d: expected PENDING, got %s", i+1, p.Status)
		}
	}
}

func TestSplitInstallmentsResidueOnLast(t *testing.T) {
	tests := []struct {
		name  string
		total string
		n     int
		want  []string
	}{
		{"uneven cents", "100.00", 3, []string{"33.33", "33.33", "33.34"}},
		{"single", "49.99", 1, []string{"49.99"}},
		{"four way", "25.50", 4, []string{"6.37", "6.37", "6.37", "6.39"}},
		{"zero count clamps to one", "10.00", 0, []string{"10.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			parts := SplitInstallments("liab-1", total, tt.n, time.Now())
			if len(parts) != len(tt.want) {
				t.Fatalf("expected %d installments, got %d", len(tt.want), len(parts))
			}
			sum := decimal.Zero
			for i, p := range parts {
				if p.Amount.String() != decimal.RequireFromString(tt.want[i]).String() {
					t.Errorf("installment %d: expected %s, got %s", i+1, tt.want[i], p.Amount)
				}
				sum = sum.Add(p.Amount)
			}
			if !sum.Equal(total) {
				t.Errorf("installments sum to %s, expected %s", sum, total)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	base := Transaction{
		AccountID: "acc-1",
		Amount:    decimal.RequireFromString("10.00"),
		Direction: Debit,
		Date:      time.Now(),
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	negative := base
	negative.Amount = decimal.RequireFromString("-10.00")
	if err := negative.Validate(); err == nil {
		t.Error("negative amount accepted")
	}

	badDirection := base
	badDirection.Direction = "SIDEWAYS"
	if err := badDirection.Validate(); err == nil {
		t.Error("invalid direction accepted")
	}

	noDate := base
	noDate.Date = time.Time{}
	if err := noDate.Validate(); err == nil {
		t.Error("zero date accepted")
	}
}
