package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduledStatus tracks the lifecycle of a future-dated expectation.
type ScheduledStatus string

const (
	ScheduledUpcoming  ScheduledStatus = "UPCOMING"
	ScheduledRealized  ScheduledStatus = "REALIZED"
	ScheduledCancelled ScheduledStatus = "CANCELLED"
)

// ScheduledTransaction is a future-dated expectation (bill, installment,
// recurring income) materialized for calendar and forecast purposes. It never
// affects balances or spending until realized by a matching real transaction.
type ScheduledTransaction struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	AccountID     string          `json:"account_id,omitempty"`
	LiabilityID   string          `json:"liability_id,omitempty"`
	InstallmentID string          `json:"installment_id,omitempty"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
	Status        ScheduledStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
