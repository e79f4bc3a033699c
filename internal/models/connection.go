package models

import "time"

// ConnectionState is the lifecycle state of a provider link.
type ConnectionState string

const (
	ConnectionPending    ConnectionState = "PENDING"
	ConnectionAuthorized ConnectionState = "AUTHORIZED"
	ConnectionRevoked    ConnectionState = "REVOKED"
	ConnectionFailed     ConnectionState = "FAILED"
)

// Connection represents one link session with one provider for one user.
// Rows are never hard-deleted; revoked connections are retained for audit.
type Connection struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	Provider             string          `json:"provider"`
	State                ConnectionState `json:"state"`
	SessionCipher        string          `json:"-"` // external session id, encrypted at rest
	SessionFingerprint   string          `json:"-"` // HMAC of the session id, webhook lookup key
	ExternalConnectionID string          `json:"external_connection_id,omitempty"`
	RedirectURL          string          `json:"redirect_url,omitempty"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	ExpiresAt            time.Time       `json:"expires_at"`
	AuthorizedAt         *time.Time      `json:"authorized_at,omitempty"`
	LastSyncAt           *time.Time      `json:"last_sync_at,omitempty"`
	NextSyncAt           time.Time       `json:"next_sync_at"`
	SyncFailures         int             `json:"-"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Terminal reports whether no further state transitions are possible.
func (c *Connection) Terminal() bool {
	return c.State == ConnectionRevoked || c.State == ConnectionFailed
}
