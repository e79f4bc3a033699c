package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the raw debit/credit direction of a transaction as reported
// by the provider (or implied by the sign of a raw amount).
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// FlowType classifies a transaction's effect on spending, decoupled from its
// raw direction. Spending aggregation counts EXPENSE only; TRANSFER,
// LIABILITY_PAYMENT and REFUND never count as spending.
type FlowType string

const (
	FlowExpense          FlowType = "EXPENSE"
	FlowIncome           FlowType = "INCOME"
	FlowTransfer         FlowType = "TRANSFER"
	FlowLiabilityPayment FlowType = "LIABILITY_PAYMENT"
	FlowRefund           FlowType = "REFUND"
)

// DefaultFlowType maps a raw direction to the flow type a transaction gets
// before any classification pass has run.
func DefaultFlowType(d Direction) FlowType {
	if d == Credit {
		return FlowIncome
	}
	return FlowExpense
}

// TransferRole marks which side of an internal transfer a transaction is.
type TransferRole string

const (
	TransferSource      TransferRole = "SOURCE"
	TransferDestination TransferRole = "DESTINATION"
)

// Transaction is one economic event on one account. Amount is always a
// non-negative magnitude; the effect is carried by Direction and FlowType,
// never by a negative amount.
type Transaction struct {
	ID                    string          `json:"id"`
	AccountID             string          `json:"account_id"`
	Amount                decimal.Decimal `json:"amount"`
	Direction             Direction       `json:"direction"`
	Date                  time.Time       `json:"date"`
	Description           string          `json:"description"`
	CategoryID            string          `json:"category_id,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	FlowType              FlowType        `json:"flow_type"`
	FlowTypeOverridden    bool            `json:"flow_type_overridden,omitempty"`
	TransferGroupID       string          `json:"transfer_group_id,omitempty"`
	TransferRole          TransferRole    `json:"transfer_role,omitempty"`
	LiabilityID           string          `json:"liability_id,omitempty"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"` // dedupe key, unique per account
	IngestedAt            time.Time       `json:"ingested_at"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Validate checks the invariants every persisted transaction must satisfy.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("transaction account id is required")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount must be non-negative, got %s", t.Amount)
	}
	if t.Direction != Debit && t.Direction != Credit {
		return fmt.Errorf("invalid transaction direction: %q", t.Direction)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date is required")
	}
	return nil
}

// Grouped reports whether the transaction belongs to a transfer group.
func (t *Transaction) Grouped() bool {
	return t.TransferGroupID != ""
}
