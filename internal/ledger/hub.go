package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const appNamePrefix = "lncurl"

var appScopes = []string{
	"get_info",
	"pay_invoice",
	"get_balance",
	"make_invoice",
	"lookup_invoice",
	"list_transactions",
	"notifications",
}

// HubConfig configures the HTTP custody hub client.
type HubConfig struct {
	BaseURL       string
	AuthToken     string
	HubName       string
	HubRegion     string
	AddressDomain string
	Timeout       time.Duration
}

// HubClient talks to the custody hub's JSON API. Each wallet maps to an
// isolated hub app; the app id is the account reference.
type HubClient struct {
	cfg  HubConfig
	base *url.URL
	http *http.Client
}

// NewHubClient builds a hub client. A nil httpClient gets a default with the
// configured timeout.
func NewHubClient(cfg HubConfig, httpClient *http.Client) (*HubClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hub url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	if cfg.AddressDomain == "" {
		cfg.AddressDomain = "getalby.com"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HubClient{cfg: cfg, base: base, http: httpClient}, nil
}

type createAppRequest struct {
	Name          string            `json:"name"`
	Pubkey        string            `json:"pubkey"`
	BudgetRenewal string            `json:"budgetRenewal"`
	MaxAmount     int64             `json:"maxAmount"`
	Scopes        []string          `json:"scopes"`
	ReturnTo      string            `json:"returnTo"`
	Isolated      bool              `json:"isolated"`
	Metadata      map[string]string `json:"metadata"`
}

type createAppResponse struct {
	ID         json.RawMessage `json:"id"`
	Name       string          `json:"name"`
	PairingURI string          `json:"pairingUri"`
}

// CreateAccount provisions an isolated app and registers name as its
// lightning address. If the address is rejected the app is removed again
// and ErrNameConflict is returned.
func (c *HubClient) CreateAccount(ctx context.Context, name string) (Account, error) {
	req := createAppRequest{
		Name:          fmt.Sprintf("%s-%s", appNamePrefix, uuid.NewString()[:8]),
		BudgetRenewal: "monthly",
		Scopes:        appScopes,
		Isolated:      true,
		Metadata:      map[string]string{"app_store_app_id": "uncle-jim"},
	}
	var app createAppResponse
	if err := c.do(ctx, "create app", http.MethodPost, "/api/apps", req, &app); err != nil {
		return Account{}, err
	}
	if app.PairingURI == "" {
		return Account{}, fmt.Errorf("create app: no pairing uri in response")
	}
	ref := strings.Trim(string(app.ID), `"`)
	if ref == "" {
		return Account{}, fmt.Errorf("create app: no id in response")
	}

	addrReq := map[string]string{"address": name, "appId": ref}
	if err := c.do(ctx, "create lightning address", http.MethodPost, "/api/lightning-addresses", addrReq, nil); err != nil {
		_ = c.DeleteAccount(ctx, ref)
		if isConflict(err) {
			return Account{}, fmt.Errorf("%w: %s", ErrNameConflict, name)
		}
		return Account{}, err
	}

	address := fmt.Sprintf("%s@%s", name, c.cfg.AddressDomain)
	return Account{
		Ref:        ref,
		PairingURI: fmt.Sprintf("%s&lud16=%s", app.PairingURI, address),
		Address:    address,
	}, nil
}

// Balance returns the app balance in sats.
func (c *HubClient) Balance(ctx context.Context, ref string) (int64, error) {
	var app struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, "get app balance", http.MethodGet, "/api/apps/"+url.PathEscape(ref), nil, &app); err != nil {
		return 0, err
	}
	return app.Balance, nil
}

// Transfer moves amount sats out of the app into the node's main balance.
func (c *HubClient) Transfer(ctx context.Context, ref string, amount int64) error {
	body := map[string]any{"fromAppId": jsonRef(ref), "amountSat": amount}
	return c.do(ctx, "transfer from app", http.MethodPost, "/api/transfers", body, nil)
}

// DeleteAccount removes the app from the hub.
func (c *HubClient) DeleteAccount(ctx context.Context, ref string) error {
	return c.do(ctx, "delete app", http.MethodDelete, "/api/apps/"+url.PathEscape(ref), nil, nil)
}

// NodeLiquidity sums channel balances: remote balance is inbound capacity
// available to wallets, local balance is already used.
func (c *HubClient) NodeLiquidity(ctx context.Context) (Liquidity, error) {
	var resp struct {
		Channels []struct {
			LocalBalance  int64 `json:"localBalance"`
			RemoteBalance int64 `json:"remoteBalance"`
		} `json:"channels"`
	}
	if err := c.do(ctx, "list channels", http.MethodGet, "/api/channels", nil, &resp); err != nil {
		return Liquidity{}, err
	}
	liq := Liquidity{Channels: len(resp.Channels)}
	for _, ch := range resp.Channels {
		liq.Available += ch.RemoteBalance
		liq.Used += ch.LocalBalance
	}
	return liq, nil
}

// NodeBalances reads lightning spendable (reported in msat) and on-chain totals.
func (c *HubClient) NodeBalances(ctx context.Context) (NodeBalances, error) {
	var resp struct {
		Lightning struct {
			TotalSpendable int64 `json:"totalSpendable"`
		} `json:"lightning"`
		Onchain struct {
			Total int64 `json:"total"`
		} `json:"onchain"`
	}
	if err := c.do(ctx, "get node balances", http.MethodGet, "/api/balances", nil, &resp); err != nil {
		return NodeBalances{}, err
	}
	return NodeBalances{Spendable: resp.Lightning.TotalSpendable / 1000, Onchain: resp.Onchain.Total}, nil
}

// NodeInfo returns the node alias and pubkey.
func (c *HubClient) NodeInfo(ctx context.Context) (NodeInfo, error) {
	var resp struct {
		Alias  string `json:"alias"`
		Pubkey string `json:"pubkey"`
	}
	if err := c.do(ctx, "get node info", http.MethodGet, "/api/node", nil, &resp); err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{Alias: resp.Alias, Pubkey: resp.Pubkey}, nil
}

func (c *HubClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	req.Header.Set("AlbyHub-Name", c.cfg.HubName)
	req.Header.Set("AlbyHub-Region", c.cfg.HubRegion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}
		return &RemoteError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// isConflict recognises the hub's ways of refusing a duplicate address.
func isConflict(err error) bool {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	if remote.Status == http.StatusConflict {
		return true
	}
	body := strings.ToLower(remote.Body)
	return strings.Contains(body, "already") || strings.Contains(body, "exists") || strings.Contains(body, "taken")
}

// jsonRef sends numeric app ids as numbers, which is what the hub expects.
func jsonRef(ref string) any {
	n := json.Number(ref)
	if _, err := n.Int64(); err == nil {
		return n
	}
	return ref
}
