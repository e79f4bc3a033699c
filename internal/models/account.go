package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountNature classifies what a positive balance means for an account.
type AccountNature string

const (
	NatureAsset     AccountNature = "ASSET"     // positive balance = user has money
	NatureLiability AccountNature = "LIABILITY" // positive balance = user owes money
)

// SyncStatus is the last known sync outcome for an account.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSynced  SyncStatus = "SYNCED"
	SyncError   SyncStatus = "ERROR"
)

// Account is a financial account exposed by a provider or entered manually.
// Provider accounts are owned by the connection that produced them; on revoke
// they are orphaned, never deleted, so history stays addressable.
type Account struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	ConnectionID      string          `json:"connection_id,omitempty"` // empty for manual accounts
	ExternalAccountID string          `json:"external_account_id,omitempty"`
	Name              string          `json:"name"`
	Currency          string          `json:"currency"`
	Nature            AccountNature   `json:"nature"`
	Balance           decimal.Decimal `json:"balance"` // canonical: signed per nature, positive = has/owes
	Manual            bool            `json:"manual"`
	StatementDay      int             `json:"statement_day,omitempty"` // day of month the billing cycle closes, 0 = none
	DueDay            int             `json:"due_day,omitempty"`       // day of month the statement is due, 0 = none
	LastSyncedAt      *time.Time      `json:"last_synced_at,omitempty"`
	SyncStatus        SyncStatus      `json:"sync_status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
