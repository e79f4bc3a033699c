package service_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/provider/sandbox"
	"github.com/finlink/finlink/internal/repository/inmemory"
	"github.com/finlink/finlink/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newTestService(t *testing.T) (*service.Service, *inmemory.Store, *sandbox.Adapter) {
	t.Helper()
	return newTestServiceNotify(t, nil)
}

func newTestServiceNotify(t *testing.T, notifier service.Notifier) (*service.Service, *inmemory.Store, *sandbox.Adapter) {
	t.Helper()
	store := inmemory.New()
	sb := sandbox.New()
	registry := provider.NewRegistry()
	registry.Register(sb)

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		EncryptionKey:         "test-encryption-key",
		JWTSecret:             "test-jwt-secret",
		SyncWindowDays:        90,
		LinkSessionTTLMinutes: 30,
	}
	return service.NewService(store, registry, notifier, log, cfg), store, sb
}

// linkSandbox walks a user through the full link flow and returns the
// authorized connection.
func linkSandbox(t *testing.T, svc *service.Service, userID string) *models.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := svc.InitiateLink(ctx, userID, sandbox.Name)
	if err != nil {
		t.Fatalf("InitiateLink failed: %v", err)
	}
	if conn.State != models.ConnectionPending {
		t.Fatalf("expected PENDING after initiate, got %s", conn.State)
	}
	if conn.RedirectURL == "" {
		t.Fatal("expected a redirect URL")
	}

	authorized, _, err := svc.CompleteLink(ctx, userID, conn.ID)
	if err != nil {
		t.Fatalf("CompleteLink failed: %v", err)
	}
	if authorized.State != models.ConnectionAuthorized {
		t.Fatalf("expected AUTHORIZED after complete, got %s", authorized.State)
	}
	if authorized.ExternalConnectionID == "" {
		t.Fatal("expected an external connection id")
	}
	return authorized
}

func daysAgo(n int) time.Time {
	return time.Now().AddDate(0, 0, -n).Truncate(time.Hour)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

func checkingAccount(externalID string, balance string) provider.Account {
	return provider.Account{
		ExternalID:     externalID,
		Name:           "Checking " + externalID,
		Currency:       "USD",
		Type:           "checking",
		RawBalance:     decimal.RequireFromString(balance),
		SignConvention: provider.SignAssetStyle,
	}
}

func cardAccount(externalID string, rawBalance string) provider.Account {
	return provider.Account{
		ExternalID:     externalID,
		Name:           "Card " + externalID,
		Currency:       "USD",
		Type:           "credit_card",
		RawBalance:     decimal.RequireFromString(rawBalance),
		SignConvention: provider.SignDebtNegative,
	}
}

func providerTx(externalID, amount, direction string, date time.Time, description string) provider.Transaction {
	return provider.Transaction{
		ExternalID:   externalID,
		RawAmount:    decimal.RequireFromString(amount),
		RawDirection: direction,
		Date:         date,
		Description:  description,
	}
}

// accountByExternalID resolves the stored account a provider account became.
func accountByExternalID(t *testing.T, svc *service.Service, userID, externalID string) *models.Account {
	t.Helper()
	accounts, err := svc.ListAccounts(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	for _, a := range accounts {
		if a.ExternalAccountID == externalID {
			return a
		}
	}
	t.Fatalf("no account with external id %s", externalID)
	return nil
}
