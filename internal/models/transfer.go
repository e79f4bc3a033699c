package models

import "time"

// SuggestionStatus tracks what the user did with a suggested transfer link.
type SuggestionStatus string

const (
	SuggestionOpen      SuggestionStatus = "OPEN"
	SuggestionConfirmed SuggestionStatus = "CONFIRMED"
	SuggestionDismissed SuggestionStatus = "DISMISSED"
)

// TransferSuggestion is a medium-confidence transfer candidate pair surfaced
// to the user instead of being linked automatically.
type TransferSuggestion struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id"`
	DebitTransactionID  string           `json:"debit_transaction_id"`
	CreditTransactionID string           `json:"credit_transaction_id"`
	Reason              string           `json:"reason"`
	Status              SuggestionStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}
