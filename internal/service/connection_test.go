package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/provider/sandbox"
	"github.com/finlink/finlink/internal/service"
)

// sessionIDOf recovers the provider session id from the redirect URL the
// sandbox hands out.
func sessionIDOf(conn *models.Connection) string {
	return conn.RedirectURL[strings.LastIndex(conn.RedirectURL, "/")+1:]
}

func TestLinkLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conn := linkSandbox(t, svc, "user-1")
	if conn.AuthorizedAt == nil {
		t.Error("expected AuthorizedAt to be set")
	}

	conns, err := svc.ListConnections(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListConnections failed: %v", err)
	}
	if len(conns) != 1 || conns[0].ID != conn.ID {
		t.Fatalf("expected the one authorized connection, got %d", len(conns))
	}
}

func TestInitiateLinkUnknownProvider(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.InitiateLink(context.Background(), "user-1", "nope")
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInitiateLinkProviderDown(t *testing.T) {
	svc, _, sb := newTestService(t)
	sb.FailNext(provider.ErrProviderUnavailable)
	_, err := svc.InitiateLink(context.Background(), "user-1", sandbox.Name)
	if !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestCompleteIdempotentReplay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	replayed, err := svc.Complete(ctx, conn.ID, conn.ExternalConnectionID)
	if err != nil {
		t.Fatalf("replay completion failed: %v", err)
	}
	if replayed.State != models.ConnectionAuthorized {
		t.Fatalf("expected AUTHORIZED after replay, got %s", replayed.State)
	}
	if replayed.ExternalConnectionID != conn.ExternalConnectionID {
		t.Fatal("replay changed the external connection id")
	}
}

func TestCompleteConflictOnDifferentExternalID(t *testing.T) {
	svc, _, _ := newTestService(t)
	conn := linkSandbox(t, svc, "user-1")

	_, err := svc.Complete(context.Background(), conn.ID, "some-other-connection")
	if !errors.Is(err, service.ErrConnectionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCompleteAfterTerminalState(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conn, err := svc.InitiateLink(ctx, "user-1", sandbox.Name)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Fail(ctx, conn.ID, "test failure"); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Complete(ctx, conn.ID, "ext-1")
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected validation error completing a FAILED connection, got %v", err)
	}
}

func TestCompleteLinkWrongUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conn, err := svc.InitiateLink(ctx, "user-1", sandbox.Name)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = svc.CompleteLink(ctx, "user-2", conn.ID)
	if !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestWebhookAndRedirectConverge(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conn, err := svc.InitiateLink(ctx, "user-1", sandbox.Name)
	if err != nil {
		t.Fatal(err)
	}

	// Webhook lands first.
	err = svc.ObserveCallback(ctx, sandbox.Name, provider.CallbackPayload{
		ExternalSessionID: sessionIDOf(conn),
		Stage:             "authorized",
	})
	if err != nil {
		t.Fatalf("webhook completion failed: %v", err)
	}

	// Then the user returns through the redirect path.
	authorized, _, err := svc.CompleteLink(ctx, "user-1", conn.ID)
	if err != nil {
		t.Fatalf("redirect completion failed: %v", err)
	}
	if authorized.State != models.ConnectionAuthorized {
		t.Fatalf("expected AUTHORIZED, got %s", authorized.State)
	}

	// And a duplicate webhook delivery changes nothing.
	err = svc.ObserveCallback(ctx, sandbox.Name, provider.CallbackPayload{
		ExternalSessionID: sessionIDOf(conn),
		Stage:             "authorized",
	})
	if err != nil {
		t.Fatalf("duplicate webhook failed: %v", err)
	}
}

func TestWebhookDenied(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	conn, err := svc.InitiateLink(ctx, "user-1", sandbox.Name)
	if err != nil {
		t.Fatal(err)
	}
	err = svc.ObserveCallback(ctx, sandbox.Name, provider.CallbackPayload{
		ExternalSessionID: sessionIDOf(conn),
		Stage:             "denied",
	})
	if err != nil {
		t.Fatalf("denied callback failed: %v", err)
	}

	got, err := store.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.ConnectionFailed {
		t.Fatalf("expected FAILED after denial, got %s", got.State)
	}
	if got.FailureReason == "" {
		t.Error("expected a failure reason")
	}
}

func TestWebhookUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.ObserveCallback(context.Background(), sandbox.Name, provider.CallbackPayload{
		ExternalSessionID: "never-issued",
		Stage:             "authorized",
	})
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	svc, store, sb := newTestService(t)
	ctx := context.Background()
	conn := linkSandbox(t, svc, "user-1")

	sb.SeedAccounts(conn.ExternalConnectionID, []provider.Account{checkingAccount("chk-1", "100.00")})
	if _, err := svc.Sync(ctx, conn.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.Revoke(ctx, "user-1", conn.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	got, err := store.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.ConnectionRevoked {
		t.Fatalf("expected REVOKED, got %s", got.State)
	}
	if !sb.Revoked(conn.ExternalConnectionID) {
		t.Error("provider-side revoke was not called")
	}

	// Accounts survive revocation, marked stale.
	account := accountByExternalID(t, svc, "user-1", "chk-1")
	if account.SyncStatus != models.SyncError {
		t.Errorf("expected account marked ERROR after revoke, got %s", account.SyncStatus)
	}

	// Replay and unknown ids are silent successes.
	if err := svc.Revoke(ctx, "user-1", conn.ID); err != nil {
		t.Errorf("revoke replay failed: %v", err)
	}
	if err := svc.Revoke(ctx, "user-1", "no-such-connection"); err != nil {
		t.Errorf("revoking an unknown connection failed: %v", err)
	}

	// A revoked connection cannot sync.
	if _, err := svc.Sync(ctx, conn.ID); !errors.Is(err, service.ErrConnectionNotAuthorized) {
		t.Errorf("expected not-authorized syncing a revoked connection, got %v", err)
	}
}

func TestRevokeWrongUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	conn := linkSandbox(t, svc, "user-1")
	err := svc.Revoke(context.Background(), "user-2", conn.ID)
	if !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestExpirePending(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	conn, err := svc.InitiateLink(ctx, "user-1", sandbox.Name)
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.TransitionConnection(ctx, conn.ID, func(c *models.Connection) error {
		c.ExpiresAt = time.Now().Add(-time.Minute)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	expired, err := svc.ExpirePending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired connection, got %d", expired)
	}

	got, err := store.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.ConnectionFailed {
		t.Fatalf("expected FAILED after expiry, got %s", got.State)
	}

	// Second sweep finds nothing.
	expired, err = svc.ExpirePending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if expired != 0 {
		t.Fatalf("expected 0 on rerun, got %d", expired)
	}
}
