package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
	"github.com/lib/pq"
)

const connectionColumns = `id, user_id, provider, state, session_cipher, session_fingerprint,
	external_connection_id, redirect_url, failure_reason, expires_at, authorized_at,
	last_sync_at, next_sync_at, sync_failures, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*models.Connection, error) {
	c := &models.Connection{}
	var authorizedAt, lastSyncAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.State, &c.SessionCipher,
		&c.SessionFingerprint, &c.ExternalConnectionID, &c.RedirectURL, &c.FailureReason,
		&c.ExpiresAt, &authorizedAt, &lastSyncAt, &c.NextSyncAt, &c.SyncFailures,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.AuthorizedAt = timePtr(authorizedAt)
	c.LastSyncAt = timePtr(lastSyncAt)
	return c, nil
}

// CreateConnection inserts a new connection row
func (r *Repository) CreateConnection(ctx context.Context, c *models.Connection) error {
	query := `
		INSERT INTO finlink.connections (id, user_id, provider, state, session_cipher,
			session_fingerprint, external_connection_id, redirect_url, failure_reason,
			expires_at, next_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, c.ID, c.UserID, c.Provider, c.State,
		c.SessionCipher, c.SessionFingerprint, c.ExternalConnectionID, c.RedirectURL,
		c.FailureReason, c.ExpiresAt, c.NextSyncAt).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// GetConnection retrieves a connection by id
func (r *Repository) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM finlink.connections WHERE id = $1`
	c, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: connection %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// FindConnectionBySession retrieves a connection by its session fingerprint,
// the lookup key provider callbacks carry.
func (r *Repository) FindConnectionBySession(ctx context.Context, providerName, fingerprint string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM finlink.connections
		WHERE provider = $1 AND session_fingerprint = $2`
	c, err := scanConnection(r.db.QueryRowContext(ctx, query, providerName, fingerprint))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: connection for session", service.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find connection by session: %w", err)
	}
	return c, nil
}

// TransitionConnection runs fn against the connection row under SELECT ... FOR
// UPDATE, then writes back whatever fn produced. Racing transitions serialize
// on the row lock.
func (r *Repository) TransitionConnection(ctx context.Context, id string, fn func(*models.Connection) error) (*models.Connection, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + connectionColumns + ` FROM finlink.connections WHERE id = $1 FOR UPDATE`
	c, err := scanConnection(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: connection %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock connection: %w", err)
	}

	if err := fn(c); err != nil {
		return nil, err
	}

	update := `
		UPDATE finlink.connections
		SET state = $2, session_cipher = $3, session_fingerprint = $4,
			external_connection_id = $5, redirect_url = $6, failure_reason = $7,
			expires_at = $8, authorized_at = $9, last_sync_at = $10, next_sync_at = $11,
			sync_failures = $12, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err = tx.QueryRowContext(ctx, update, c.ID, c.State, c.SessionCipher,
		c.SessionFingerprint, c.ExternalConnectionID, c.RedirectURL, c.FailureReason,
		c.ExpiresAt, nullTime(c.AuthorizedAt), nullTime(c.LastSyncAt), c.NextSyncAt,
		c.SyncFailures).
		Scan(&c.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: external connection %s already linked",
				service.ErrConnectionConflict, c.ExternalConnectionID)
		}
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return c, nil
}

// ListConnectionsByUser retrieves all connections for a user, newest first
func (r *Repository) ListConnectionsByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM finlink.connections
		WHERE user_id = $1
		ORDER BY created_at DESC`
	return r.queryConnections(ctx, query, userID)
}

// ListExpiredPending retrieves pending connections whose link window lapsed
func (r *Repository) ListExpiredPending(ctx context.Context, asOf time.Time) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM finlink.connections
		WHERE state = $1 AND expires_at < $2`
	return r.queryConnections(ctx, query, models.ConnectionPending, asOf)
}

// ListConnectionsDueForSync retrieves authorized connections whose next sync
// time has passed
func (r *Repository) ListConnectionsDueForSync(ctx context.Context, asOf time.Time) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM finlink.connections
		WHERE state = $1 AND next_sync_at <= $2`
	return r.queryConnections(ctx, query, models.ConnectionAuthorized, asOf)
}

func (r *Repository) queryConnections(ctx context.Context, query string, args ...any) ([]*models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var out []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
