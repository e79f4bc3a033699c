package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus tracks whether a scheduled sub-payment has settled.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

// Installment is one dated sub-payment of a Liability.
type Installment struct {
	ID                   string            `json:"id"`
	LiabilityID          string            `json:"liability_id"`
	Sequence             int               `json:"sequence"`
	DueDate              time.Time         `json:"due_date"`
	Amount               decimal.Decimal   `json:"amount"`
	Status               InstallmentStatus `json:"status"`
	SettledTransactionID string            `json:"settled_transaction_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// SplitInstallments divides total into n monthly installments starting at
// firstDue. Rounding residue lands on the last installment so the sum of the
// parts always equals total exactly.
func SplitInstallments(liabilityID string, total decimal.Decimal, n int, firstDue time.Time) []*Installment {
	if n < 1 {
		n = 1
	}
	base := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	installments := make([]*Installment, 0, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		amount := base
		if i == n-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		installments = append(installments, &Installment{
			LiabilityID: liabilityID,
			Sequence:    i + 1,
			DueDate:     firstDue.AddDate(0, i, 0),
			Amount:      amount,
			Status:      InstallmentPending,
		})
	}
	return installments
}
