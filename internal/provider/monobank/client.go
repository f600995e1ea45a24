// Package monobank implements the statement provider port against the
// Monobank personal API. The client owns the authentication header and
// request timeouts; failures are mapped onto the provider error taxonomy so
// the ingestion pipeline can tell "retry later" from "re-authenticate"
// from "bad response".
package monobank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finledger/internal/provider"
)

// DefaultBaseURL is the public Monobank API endpoint.
const DefaultBaseURL = "https://api.monobank.ua"

// ProviderName prefixes account source labels ("monobank:<id>").
const ProviderName = "monobank"

// Client talks to the Monobank personal API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ provider.Client = (*Client)(nil)

// New creates a client. An empty baseURL falls back to DefaultBaseURL; a
// zero timeout falls back to 30s.
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiAccount struct {
	ID        string   `json:"id"`
	Balance   int64    `json:"balance"`
	IBAN      string   `json:"iban"`
	Type      string   `json:"type"`
	MaskedPan []string `json:"maskedPan"`
}

type apiClientInfo struct {
	Name     string       `json:"name"`
	Accounts []apiAccount `json:"accounts"`
}

type apiStatementItem struct {
	ID          string `json:"id"`
	Time        int64  `json:"time"`
	Description string `json:"description"`
	Comment     string `json:"comment"`
	Amount      int64  `json:"amount"`
	CounterName string `json:"counterName"`
	CounterIban string `json:"counterIban"`
}

type apiRate struct {
	CurrencyCodeA int     `json:"currencyCodeA"`
	CurrencyCodeB int     `json:"currencyCodeB"`
	Date          int64   `json:"date"`
	RateBuy       float64 `json:"rateBuy"`
	RateSell      float64 `json:"rateSell"`
	RateCross     float64 `json:"rateCross"`
}

// ListAccounts fetches the client info and returns its account summaries.
func (c *Client) ListAccounts(ctx context.Context) ([]provider.AccountSummary, error) {
	var info apiClientInfo
	if err := c.get(ctx, "list accounts", "/personal/client-info", &info); err != nil {
		return nil, err
	}

	accounts := make([]provider.AccountSummary, len(info.Accounts))
	for i, a := range info.Accounts {
		name := a.Type
		if len(a.MaskedPan) > 0 {
			name = a.MaskedPan[0]
		}
		accounts[i] = provider.AccountSummary{
			ID:           a.ID,
			Name:         name,
			IBAN:         a.IBAN,
			Type:         a.Type,
			BalanceMinor: a.Balance,
		}
	}
	return accounts, nil
}

// ListTransactions fetches the statement for one account over [from, to].
// The provider returns entries newest first; order is preserved as-is.
func (c *Client) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]provider.StatementEntry, error) {
	path := fmt.Sprintf("/personal/statement/%s/%d/%d", accountID, from.Unix(), to.Unix())

	var items []apiStatementItem
	if err := c.get(ctx, "list transactions", path, &items); err != nil {
		return nil, err
	}

	entries := make([]provider.StatementEntry, len(items))
	for i, it := range items {
		entries[i] = provider.StatementEntry{
			ExternalID:          it.ID,
			TimestampSeconds:    it.Time,
			AmountMinor:         it.Amount,
			Description:         it.Description,
			Comment:             it.Comment,
			CounterpartyName:    it.CounterName,
			CounterpartyAccount: it.CounterIban,
		}
	}
	return entries, nil
}

// ListCurrencyRates fetches the published rates. No authentication needed,
// but the same failure mapping applies.
func (c *Client) ListCurrencyRates(ctx context.Context) ([]provider.RatePair, error) {
	var rates []apiRate
	if err := c.get(ctx, "list currency rates", "/bank/currency", &rates); err != nil {
		return nil, err
	}

	pairs := make([]provider.RatePair, len(rates))
	for i, r := range rates {
		pairs[i] = provider.RatePair{
			CurrencyCodeA: r.CurrencyCodeA,
			CurrencyCodeB: r.CurrencyCodeB,
			RateBuy:       r.RateBuy,
			RateSell:      r.RateSell,
			RateCross:     r.RateCross,
			Date:          time.Unix(r.Date, 0).UTC(),
		}
	}
	return pairs, nil
}

// get performs an authenticated GET and decodes the JSON body into out.
// HTTP status and transport failures map onto the provider taxonomy:
// 429 -> rate limited, 401/403 -> unauthorized, 5xx and network errors ->
// transient, everything else (bad request, undecodable body) -> malformed.
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &provider.Error{Kind: provider.KindMalformed, Op: op, Err: err}
	}
	if c.token != "" {
		req.Header.Set("X-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provider.Error{Kind: provider.KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return &provider.Error{Kind: provider.KindRateLimited, Op: op,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &provider.Error{Kind: provider.KindUnauthorized, Op: op,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return &provider.Error{Kind: provider.KindTransient, Op: op,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return &provider.Error{Kind: provider.KindMalformed, Op: op,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.Error{Kind: provider.KindMalformed, Op: op, Err: err}
	}
	return nil
}
