package models

import "time"

// AccountSyncError reports a per-account failure inside an otherwise
// successful sync run. Sibling accounts are unaffected.
type AccountSyncError struct {
	AccountID         string `json:"account_id,omitempty"`
	ExternalAccountID string `json:"external_account_id"`
	Message           string `json:"message"`
}

// SyncResult summarizes one sync run for a connection.
type SyncResult struct {
	ConnectionID        string             `json:"connection_id"`
	AccountsUpserted    int                `json:"accounts_upserted"`
	TransactionsSynced  int                `json:"transactions_synced"`
	BalanceUpdated      bool               `json:"balance_updated"`
	TransfersLinked     int                `json:"transfers_linked"`
	TransfersSuggested  int                `json:"transfers_suggested"`
	LiabilitiesCreated  int                `json:"liabilities_created"`
	InstallmentsSettled int                `json:"installments_settled"`
	AccountErrors       []AccountSyncError `json:"account_errors,omitempty"`
	Coalesced           bool               `json:"coalesced,omitempty"` // true when another sync was already in flight
	StartedAt           time.Time          `json:"started_at"`
	FinishedAt          time.Time          `json:"finished_at"`
}
