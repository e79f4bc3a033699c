package openbank

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/provider"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Name is the provider name this adapter registers under.
const Name = "openbank"

// Client implements the provider adapter against the OpenBank XML API.
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new OpenBank client.
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.OpenBankURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return Name
}

// sendRequest performs one HTTP exchange and returns the raw response body.
// Network failures and 5xx responses map to ErrProviderUnavailable.
func (c *Client) sendRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: unexpected status code %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Log the raw XML response for debugging
	c.log.Debugf("OpenBank XML response: %s", string(raw))

	return raw, nil
}

// buildLinkSessionRequest creates the XML body for a new link session.
func buildLinkSessionRequest(userID string) []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("linkSessionRequest")
	root.CreateElement("userId").SetText(userID)
	out, _ := doc.WriteToBytes()
	return out
}

// StartLinkSession opens a new link session and returns the redirect target.
func (c *Client) StartLinkSession(ctx context.Context, userID string) (*provider.LinkSession, error) {
	raw, err := c.sendRequest(ctx, http.MethodPost, "/link-sessions", buildLinkSessionRequest(userID))
	if err != nil {
		return nil, err
	}
	return parseLinkSession(raw)
}

func parseLinkSession(raw []byte) (*provider.LinkSession, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	root := doc.FindElement("//linkSession")
	if root == nil {
		return nil, fmt.Errorf("no link session data found in XML")
	}
	session := &provider.LinkSession{}
	if el := root.FindElement("./redirectUrl"); el != nil {
		session.RedirectURL = el.Text()
	}
	if el := root.FindElement("./sessionId"); el != nil {
		session.ExternalSessionID = el.Text()
	}
	if el := root.FindElement("./expiresAt"); el != nil {
		if ts, err := time.Parse(time.RFC3339, el.Text()); err == nil {
			session.ExpiresAt = ts
		}
	}
	if session.ExternalSessionID == "" {
		return nil, fmt.Errorf("link session id missing in XML")
	}
	return session, nil
}

// ExchangeSession trades a completed link session for a connection id.
func (c *Client) ExchangeSession(ctx context.Context, externalSessionID string) (string, error) {
	path := fmt.Sprintf("/link-sessions/%s/exchange", url.PathEscape(externalSessionID))
	raw, err := c.sendRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return "", err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return "", fmt.Errorf("failed to parse XML: %w", err)
	}
	el := doc.FindElement("//connection/connectionId")
	if el == nil || el.Text() == "" {
		return "", fmt.Errorf("connection id missing in XML")
	}
	return el.Text(), nil
}

// ListAccounts fetches the current account list for a connection.
func (c *Client) ListAccounts(ctx context.Context, externalConnectionID string) ([]provider.Account, error) {
	path := fmt.Sprintf("/connections/%s/accounts", url.PathEscape(externalConnectionID))
	raw, err := c.sendRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return parseAccounts(raw)
}

func parseAccounts(raw []byte) ([]provider.Account, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	elements := doc.FindElements("//accounts/account")
	accounts := make([]provider.Account, 0, len(elements))
	for _, el := range elements {
		account := provider.Account{
			// OpenBank reports credit-card debt as a negative number.
			SignConvention: provider.SignDebtNegative,
		}
		if id := el.FindElement("./id"); id != nil {
			account.ExternalID = id.Text()
		}
		if name := el.FindElement("./name"); name != nil {
			account.Name = name.Text()
		}
		if currency := el.FindElement("./currency"); currency != nil {
			account.Currency = currency.Text()
		}
		if typ := el.FindElement("./type"); typ != nil {
			account.Type = typ.Text()
		}
		if balance := el.FindElement("./balance"); balance != nil {
			value, err := decimal.NewFromString(balance.Text())
			if err != nil {
				return nil, fmt.Errorf("failed to parse balance %q: %w", balance.Text(), err)
			}
			account.RawBalance = value
		}
		if account.ExternalID == "" {
			return nil, fmt.Errorf("account id missing in XML")
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// ListTransactions fetches the transaction window for one account.
func (c *Client) ListTransactions(ctx context.Context, externalConnectionID, externalAccountID string, since time.Time) ([]provider.Transaction, error) {
	path := fmt.Sprintf("/connections/%s/accounts/%s/transactions?since=%s",
		url.PathEscape(externalConnectionID), url.PathEscape(externalAccountID), since.Format("2006-01-02"))
	raw, err := c.sendRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return parseTransactions(raw)
}

func parseTransactions(raw []byte) ([]provider.Transaction, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	elements := doc.FindElements("//transactions/transaction")
	transactions := make([]provider.Transaction, 0, len(elements))
	for _, el := range elements {
		tx := provider.Transaction{}
		if id := el.FindElement("./id"); id != nil {
			tx.ExternalID = id.Text()
		}
		if amount := el.FindElement("./amount"); amount != nil {
			value, err := decimal.NewFromString(amount.Text())
			if err != nil {
				return nil, fmt.Errorf("failed to parse amount %q: %w", amount.Text(), err)
			}
			tx.RawAmount = value
		}
		if direction := el.FindElement("./direction"); direction != nil {
			tx.RawDirection = direction.Text()
		}
		if date := el.FindElement("./date"); date != nil {
			ts, err := time.Parse("2006-01-02", date.Text())
			if err != nil {
				return nil, fmt.Errorf("failed to parse date %q: %w", date.Text(), err)
			}
			tx.Date = ts
		}
		if description := el.FindElement("./description"); description != nil {
			tx.Description = description.Text()
		}
		if tx.ExternalID == "" {
			return nil, fmt.Errorf("transaction id missing in XML")
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

// Revoke terminates the connection on the provider side.
func (c *Client) Revoke(ctx context.Context, externalConnectionID string) error {
	path := fmt.Sprintf("/connections/%s", url.PathEscape(externalConnectionID))
	_, err := c.sendRequest(ctx, http.MethodDelete, path, nil)
	return err
}
