package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LiabilityType distinguishes how an obligation came to exist.
type LiabilityType string

const (
	LiabilityCreditCardCycle LiabilityType = "CREDIT_CARD_CYCLE"
	LiabilityBNPL            LiabilityType = "BNPL"
	LiabilityLoan            LiabilityType = "LOAN"
)

// LiabilityStatus is OPEN while any balance remains; a liability whose
// balance reaches zero is CLOSED, never deleted.
type LiabilityStatus string

const (
	LiabilityOpen   LiabilityStatus = "OPEN"
	LiabilityClosed LiabilityStatus = "CLOSED"
)

// Liability is an obligation derived from or declared against transactions.
type Liability struct {
	ID                  string          `json:"id"`
	OwnerID             string          `json:"owner_id"`
	AccountID           string          `json:"account_id,omitempty"`
	Type                LiabilityType   `json:"type"`
	Description         string          `json:"description"`
	OriginalAmount      decimal.Decimal `json:"original_amount"`
	CurrentBalance      decimal.Decimal `json:"current_balance"`
	DueDate             time.Time       `json:"due_date"`
	SourceTransactionID string          `json:"source_transaction_id,omitempty"`
	CycleLabel          string          `json:"cycle_label,omitempty"` // YYYY-MM, set for credit-card cycles
	ProviderPattern     string          `json:"-"`                     // lexicon pattern that created a BNPL liability
	Status              LiabilityStatus `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
