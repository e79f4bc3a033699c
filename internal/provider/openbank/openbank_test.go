package openbank

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/provider"
	"github.com/sirupsen/logrus"
)

func newTestClient(serverURL string) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewClient(&config.Config{OpenBankURL: serverURL}, log)
}

func TestParseLinkSession(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="utf-8"?>
<linkSession>
  <sessionId>sess-42</sessionId>
  <redirectUrl>https://openbank.example/link/sess-42</redirectUrl>
  <expiresAt>2026-04-01T12:00:00Z</expiresAt>
</linkSession>`)

	session, err := parseLinkSession(raw)
	if err != nil {
		t.Fatal(err)
	}
	if session.ExternalSessionID != "sess-42" {
		t.Errorf("session id %q, want sess-42", session.ExternalSessionID)
	}
	if session.RedirectURL != "https://openbank.example/link/sess-42" {
		t.Errorf("redirect url %q", session.RedirectURL)
	}
	want := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	if !session.ExpiresAt.Equal(want) {
		t.Errorf("expires at %s, want %s", session.ExpiresAt, want)
	}
}

func TestParseLinkSessionMissingID(t *testing.T) {
	raw := []byte(`<linkSession><redirectUrl>https://x</redirectUrl></linkSession>`)
	if _, err := parseLinkSession(raw); err == nil {
		t.Fatal("expected an error for a session without an id")
	}
}

func TestParseAccounts(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="utf-8"?>
<accounts>
  <account>
    <id>acc-1</id>
    <name>Everyday Checking</name>
    <currency>EUR</currency>
    <type>checking</type>
    <balance>1250.75</balance>
  </account>
  <account>
    <id>acc-2</id>
    <name>Platinum Card</name>
    <currency>EUR</currency>
    <type>credit_card</type>
    <balance>-431.17</balance>
  </account>
</accounts>`)

	accounts, err := parseAccounts(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].ExternalID != "acc-1" || accounts[0].Name != "Everyday Checking" {
		t.Errorf("first account parsed wrong: %+v", accounts[0])
	}
	if accounts[0].RawBalance.String() != "1250.75" {
		t.Errorf("balance %s, want 1250.75", accounts[0].RawBalance)
	}
	if accounts[1].Type != "credit_card" || accounts[1].RawBalance.String() != "-431.17" {
		t.Errorf("card account parsed wrong: %+v", accounts[1])
	}
	for i, account := range accounts {
		if account.SignConvention != provider.SignDebtNegative {
			t.Errorf("account %d sign convention %q", i, account.SignConvention)
		}
	}
}

func TestParseAccountsBadBalance(t *testing.T) {
	raw := []byte(`<accounts><account><id>a</id><balance>abc</balance></account></accounts>`)
	if _, err := parseAccounts(raw); err == nil {
		t.Fatal("expected an error for an unparseable balance")
	}
}

func TestParseTransactions(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="utf-8"?>
<transactions>
  <transaction>
    <id>tx-1</id>
    <amount>19.99</amount>
    <direction>DEBIT</direction>
    <date>2026-03-14</date>
    <description>COFFEE ROASTERS</description>
  </transaction>
  <transaction>
    <id>tx-2</id>
    <amount>-50.00</amount>
    <date>2026-03-15</date>
    <description>ATM</description>
  </transaction>
</transactions>`)

	transactions, err := parseTransactions(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(transactions))
	}
	if transactions[0].ExternalID != "tx-1" || transactions[0].RawDirection != "DEBIT" {
		t.Errorf("first transaction parsed wrong: %+v", transactions[0])
	}
	if transactions[0].RawAmount.String() != "19.99" {
		t.Errorf("amount %s, want 19.99", transactions[0].RawAmount)
	}
	wantDate := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	if !transactions[0].Date.Equal(wantDate) {
		t.Errorf("date %s, want %s", transactions[0].Date, wantDate)
	}
	// Direction missing, sign carries it.
	if transactions[1].RawDirection != "" || transactions[1].RawAmount.String() != "-50" {
		t.Errorf("second transaction parsed wrong: %+v", transactions[1])
	}
}

func TestParseTransactionsMissingID(t *testing.T) {
	raw := []byte(`<transactions><transaction><amount>1</amount></transaction></transactions>`)
	if _, err := parseTransactions(raw); err == nil {
		t.Fatal("expected an error for a transaction without an id")
	}
}

func TestStartLinkSessionRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/link-sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<linkSession><sessionId>sess-1</sessionId><redirectUrl>https://openbank.example/link/sess-1</redirectUrl></linkSession>`)
	}))
	defer server.Close()

	session, err := newTestClient(server.URL).StartLinkSession(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if session.ExternalSessionID != "sess-1" {
		t.Errorf("session id %q, want sess-1", session.ExternalSessionID)
	}
}

func TestServerErrorMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.StartLinkSession(context.Background(), "user-1"); !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Errorf("expected provider unavailable, got %v", err)
	}
	if _, err := client.ListAccounts(context.Background(), "conn-1"); !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Errorf("expected provider unavailable, got %v", err)
	}
}

func TestExchangeSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/link-sessions/sess-1/exchange" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `<connection><connectionId>conn-99</connectionId></connection>`)
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).ExchangeSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "conn-99" {
		t.Errorf("connection id %q, want conn-99", id)
	}
}

func TestRevoke(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).Revoke(context.Background(), "conn-1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/connections/conn-1" {
		t.Errorf("revoke sent %s %s", gotMethod, gotPath)
	}
}
