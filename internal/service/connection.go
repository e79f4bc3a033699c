package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/utils"
	"github.com/google/uuid"
)

// errIdempotentReplay marks a transition that was already applied with the
// same inputs. Callers treat it as success.
var errIdempotentReplay = errors.New("idempotent replay")

// InitiateLink starts a link session with a provider and creates the
// connection in PENDING.
func (s *Service) InitiateLink(ctx context.Context, userID, providerName string) (*models.Connection, error) {
	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	session, err := adapter.StartLinkSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to start link session with %s: %w", providerName, err)
	}

	cipher, err := utils.Encrypt(session.ExternalSessionID, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session id: %w", err)
	}

	now := time.Now()
	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(time.Duration(s.config.LinkSessionTTLMinutes) * time.Minute)
	}

	conn := &models.Connection{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Provider:           providerName,
		State:              models.ConnectionPending,
		SessionCipher:      cipher,
		SessionFingerprint: utils.GenerateHMAC(session.ExternalSessionID, s.key),
		RedirectURL:        session.RedirectURL,
		ExpiresAt:          expiresAt,
		NextSyncAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	s.log.Infof("Link initiated for user %s with provider %s: connection %s", userID, providerName, conn.ID)
	return conn, nil
}

// CompleteLink finishes the link flow for a connection the user owns: it
// exchanges the provider session for an external connection id and applies
// the PENDING -> AUTHORIZED transition, then runs the first sync.
func (s *Service) CompleteLink(ctx context.Context, userID, connectionID string) (*models.Connection, []*models.Account, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}
	if conn.UserID != userID {
		return nil, nil, fmt.Errorf("%w: connection %s", ErrForbidden, connectionID)
	}

	externalConnectionID := conn.ExternalConnectionID
	if externalConnectionID == "" {
		adapter, err := s.providers.Get(conn.Provider)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		sessionID, err := utils.Decrypt(conn.SessionCipher, s.key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt session id: %w", err)
		}
		externalConnectionID, err = adapter.ExchangeSession(ctx, sessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to exchange session: %w", err)
		}
	}

	conn, err = s.Complete(ctx, connectionID, externalConnectionID)
	if err != nil {
		return nil, nil, err
	}

	accounts, err := s.store.ListAccountsByConnection(ctx, conn.ID)
	if err != nil {
		return nil, nil, err
	}
	return conn, accounts, nil
}

// Complete applies the PENDING -> AUTHORIZED transition. It is idempotent:
// a second completion with the same external connection id is a successful
// replay; a different id on an already-authorized connection is a conflict.
// The first successful completion triggers an immediate sync.
func (s *Service) Complete(ctx context.Context, connectionID, externalConnectionID string) (*models.Connection, error) {
	if externalConnectionID == "" {
		return nil, fmt.Errorf("%w: external connection id is required", ErrValidation)
	}

	replay := false
	conn, err := s.store.TransitionConnection(ctx, connectionID, func(c *models.Connection) error {
		switch c.State {
		case models.ConnectionAuthorized:
			if c.ExternalConnectionID == externalConnectionID {
				return errIdempotentReplay
			}
			return fmt.Errorf("%w: connection %s already authorized with a different external id", ErrConnectionConflict, connectionID)
		case models.ConnectionPending:
			now := time.Now()
			c.State = models.ConnectionAuthorized
			c.ExternalConnectionID = externalConnectionID
			c.AuthorizedAt = &now
			c.NextSyncAt = now
			c.SyncFailures = 0
			return nil
		default:
			return fmt.Errorf("%w: cannot complete connection in state %s", ErrValidation, c.State)
		}
	})
	if errors.Is(err, errIdempotentReplay) {
		replay = true
		conn, err = s.store.GetConnection(ctx, connectionID)
	}
	if err != nil {
		return nil, err
	}

	if replay {
		s.log.Infof("Completion replay for connection %s ignored", connectionID)
		return conn, nil
	}

	s.log.Infof("Connection %s authorized (external id %s)", connectionID, externalConnectionID)

	// First sync runs in the same flow so accounts are available immediately.
	if _, err := s.Sync(ctx, connectionID); err != nil {
		s.log.Warnf("Initial sync for connection %s failed: %v", connectionID, err)
	}
	return conn, nil
}

// ObserveCallback handles a provider callback, whether it arrived as a
// webhook push or from the polling fallback. Both channels converge on the
// same transitions; duplicates are deduped by external connection id.
func (s *Service) ObserveCallback(ctx context.Context, providerName string, payload provider.CallbackPayload) error {
	if payload.ExternalSessionID == "" {
		return fmt.Errorf("%w: callback session id is required", ErrValidation)
	}
	fingerprint := utils.GenerateHMAC(payload.ExternalSessionID, s.key)
	conn, err := s.store.FindConnectionBySession(ctx, providerName, fingerprint)
	if err != nil {
		return err
	}

	switch payload.Stage {
	case "authorized":
		externalConnectionID := payload.ExternalConnectionID
		if externalConnectionID == "" {
			adapter, err := s.providers.Get(providerName)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			sessionID, err := utils.Decrypt(conn.SessionCipher, s.key)
			if err != nil {
				return fmt.Errorf("failed to decrypt session id: %w", err)
			}
			externalConnectionID, err = adapter.ExchangeSession(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to exchange session: %w", err)
			}
		}
		_, err = s.Complete(ctx, conn.ID, externalConnectionID)
		return err
	case "denied", "error":
		return s.Fail(ctx, conn.ID, "provider reported stage "+payload.Stage)
	default:
		return fmt.Errorf("%w: unknown callback stage %q", ErrValidation, payload.Stage)
	}
}

// Fail moves a connection to the terminal FAILED state.
func (s *Service) Fail(ctx context.Context, connectionID, reason string) error {
	_, err := s.store.TransitionConnection(ctx, connectionID, func(c *models.Connection) error {
		if c.Terminal() {
			return errIdempotentReplay
		}
		c.State = models.ConnectionFailed
		c.FailureReason = reason
		return nil
	})
	if errors.Is(err, errIdempotentReplay) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Warnf("Connection %s failed: %s", connectionID, reason)
	return nil
}

// Revoke terminates a connection. It is idempotent and always succeeds from
// the user's point of view: local state is authoritative for stopping future
// syncs even when the provider-side revoke call fails. Accounts and
// transactions are kept; accounts are marked ERROR so the UI can show them
// as stale.
func (s *Service) Revoke(ctx context.Context, userID, connectionID string) error {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if conn.UserID != userID {
		return fmt.Errorf("%w: connection %s", ErrForbidden, connectionID)
	}

	conn, err = s.store.TransitionConnection(ctx, connectionID, func(c *models.Connection) error {
		if c.Terminal() {
			return errIdempotentReplay
		}
		c.State = models.ConnectionRevoked
		return nil
	})
	if errors.Is(err, errIdempotentReplay) {
		return nil
	}
	if err != nil {
		return err
	}

	if conn.ExternalConnectionID != "" {
		if adapter, aerr := s.providers.Get(conn.Provider); aerr == nil {
			if rerr := adapter.Revoke(ctx, conn.ExternalConnectionID); rerr != nil {
				s.log.Warnf("Provider-side revoke failed for connection %s: %v", connectionID, rerr)
			}
		}
	}

	if err := s.store.MarkConnectionAccounts(ctx, connectionID, models.SyncError); err != nil {
		return fmt.Errorf("failed to mark accounts after revoke: %w", err)
	}

	s.log.Infof("Connection %s revoked by user %s", connectionID, userID)
	return nil
}

// ExpirePending sweeps PENDING connections past their expiry into FAILED.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredPending(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, conn := range expired {
		if err := s.Fail(ctx, conn.ID, "link session expired"); err != nil {
			s.log.Errorf("Failed to expire connection %s: %v", conn.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

// ListConnections returns the user's connections, newest first.
func (s *Service) ListConnections(ctx context.Context, userID string) ([]*models.Connection, error) {
	return s.store.ListConnectionsByUser(ctx, userID)
}
