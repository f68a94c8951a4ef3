package saxo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/tokens"
)

// TokenProvider supplies the current access token. Implemented by
// tokens.Manager; the client re-reads it on every request so a refresh
// completed elsewhere is picked up immediately.
type TokenProvider interface {
	Token() (*tokens.TokenRecord, error)
}

// ClientConfig wires a Client
type ClientConfig struct {
	Environment Environment
	BaseURL     string // overrides the environment gateway; used by tests
}

// Client is the typed Saxo OpenAPI REST client
type Client struct {
	http   *resty.Client
	tokens TokenProvider
	log    zerolog.Logger

	mu         sync.RWMutex
	clientInfo map[string]*clientInfo // keyed by token hash
}

// NewClient creates a broker REST client
func NewClient(cfg ClientConfig, tokenSrc TokenProvider, log zerolog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = GatewayBase(cfg.Environment)
	}
	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:       httpClient,
		tokens:     tokenSrc,
		log:        log.With().Str("component", "saxo_client").Logger(),
		clientInfo: make(map[string]*clientInfo),
	}
}

// do executes one authenticated request and applies the response policy
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	rec, err := c.tokens.Token()
	if err != nil {
		return &APIError{Message: fmt.Sprintf("failed to load token: %v", err)}
	}
	if rec == nil {
		return &AuthenticationError{Message: "no token stored"}
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(rec.AccessToken)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("network: %v", err)}
	}
	return checkResponse(resp)
}

// checkResponse maps status codes to the error taxonomy
func checkResponse(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusOK, code == http.StatusCreated, code == http.StatusAccepted, code == http.StatusNoContent:
		return nil
	case code == http.StatusUnauthorized:
		return &AuthenticationError{Message: truncateBody(resp.String())}
	case code == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	default:
		return &APIError{StatusCode: code, Message: parseErrorMessage(resp)}
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// parseErrorMessage extracts Message or ErrorInfo.Message, falling back to
// the truncated raw body
func parseErrorMessage(resp *resty.Response) string {
	var body errorBody
	if err := jsonUnmarshal(resp.Body(), &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.ErrorInfo != nil && body.ErrorInfo.Message != "" {
			return body.ErrorInfo.Message
		}
	}
	return truncateBody(resp.String())
}

// tokenHash keys per-token caches without retaining the token itself
func tokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:8])
}

// clientInfoForToken fetches /port/v1/clients/me once per access token
func (c *Client) clientInfoForToken(ctx context.Context) (*clientInfo, error) {
	rec, err := c.tokens.Token()
	if err != nil || rec == nil {
		return nil, &AuthenticationError{Message: "no token stored"}
	}
	key := tokenHash(rec.AccessToken)

	c.mu.RLock()
	cached, ok := c.clientInfo[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var info clientInfo
	if err := c.do(ctx, http.MethodGet, "/port/v1/clients/me", nil, nil, &info); err != nil {
		return nil, err
	}

	c.mu.Lock()
	// One identity per token is plenty; drop stale entries from prior tokens.
	if len(c.clientInfo) > 8 {
		c.clientInfo = make(map[string]*clientInfo)
	}
	c.clientInfo[key] = &info
	c.mu.Unlock()

	c.log.Debug().Str("token", key).Msg("Client identity cached")
	return &info, nil
}

// ClientKey returns the broker client key for the active token
func (c *Client) ClientKey(ctx context.Context) (string, error) {
	info, err := c.clientInfoForToken(ctx)
	if err != nil {
		return "", err
	}
	return info.ClientKey, nil
}

// DefaultAccountKey returns the default trading account key
func (c *Client) DefaultAccountKey(ctx context.Context) (string, error) {
	info, err := c.clientInfoForToken(ctx)
	if err != nil {
		return "", err
	}
	return info.DefaultAccountKey, nil
}

// Accounts lists the user's trading accounts
func (c *Client) Accounts(ctx context.Context) ([]domain.BrokerAccount, error) {
	var resp listResponse[account]
	if err := c.do(ctx, http.MethodGet, "/port/v1/accounts/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.BrokerAccount, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, mapAccount(a))
	}
	return out, nil
}

// Positions lists open positions with price, P&L and symbol field groups
func (c *Client) Positions(ctx context.Context) ([]domain.BrokerPosition, error) {
	q := url.Values{}
	q.Set("FieldGroups", "PositionBase,PositionView,DisplayAndFormat")

	var resp listResponse[position]
	if err := c.do(ctx, http.MethodGet, "/port/v1/positions/me", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.BrokerPosition, 0, len(resp.Data))
	for _, p := range resp.Data {
		out = append(out, mapPosition(p))
	}
	return out, nil
}

// Balances returns the account cash state
func (c *Client) Balances(ctx context.Context) (*domain.BrokerBalance, error) {
	var resp balance
	if err := c.do(ctx, http.MethodGet, "/port/v1/balances/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	mapped := mapBalance(resp)
	return &mapped, nil
}

// Orders lists orders, optionally filtered by status
func (c *Client) Orders(ctx context.Context, status string) ([]domain.BrokerOrder, error) {
	q := url.Values{}
	q.Set("FieldGroups", "DisplayAndFormat")

	var resp listResponse[order]
	if err := c.do(ctx, http.MethodGet, "/port/v1/orders/me", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.BrokerOrder, 0, len(resp.Data))
	for _, o := range resp.Data {
		if status != "" && !strings.EqualFold(o.Status, status) {
			continue
		}
		out = append(out, mapOrder(o))
	}
	return out, nil
}

// PlaceOrder submits an order and returns the broker order ID
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if req.AccountKey == "" {
		key, err := c.DefaultAccountKey(ctx)
		if err != nil {
			return "", err
		}
		req.AccountKey = key
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/trade/v2/orders", nil, req, &resp); err != nil {
		return "", err
	}
	c.log.Info().
		Str("order_id", resp.OrderID).
		Str("side", req.BuySell).
		Int64("uic", req.Uic).
		Float64("amount", req.Amount).
		Msg("Order placed")
	return resp.OrderID, nil
}

// CancelOrder cancels one order on the default account
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	accountKey, err := c.DefaultAccountKey(ctx)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("AccountKey", accountKey)

	if err := c.do(ctx, http.MethodDelete, "/trade/v2/orders/"+url.PathEscape(orderID), q, nil, nil); err != nil {
		return err
	}
	c.log.Info().Str("order_id", orderID).Msg("Order cancelled")
	return nil
}

// CreatePriceSubscription opens a streaming info-price subscription tied
// to a WebSocket context. Updates arrive on the streaming connection that
// carries the same context ID.
func (c *Client) CreatePriceSubscription(ctx context.Context, contextID, referenceID string, uic int64, assetType string) error {
	body := map[string]any{
		"ContextId":   contextID,
		"ReferenceId": referenceID,
		"RefreshRate": 1000,
		"Arguments": map[string]any{
			"Uic":       uic,
			"AssetType": assetType,
		},
	}
	if err := c.do(ctx, http.MethodPost, "/trade/v1/infoprices/subscriptions", nil, body, nil); err != nil {
		return err
	}
	c.log.Debug().
		Str("reference_id", referenceID).
		Int64("uic", uic).
		Msg("Price subscription created")
	return nil
}

// DeletePriceSubscription tears down one streaming subscription
func (c *Client) DeletePriceSubscription(ctx context.Context, contextID, referenceID string) error {
	path := "/trade/v1/infoprices/subscriptions/" + url.PathEscape(contextID) + "/" + url.PathEscape(referenceID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// SearchInstruments resolves instruments by keyword
func (c *Client) SearchInstruments(ctx context.Context, keywords string, assetTypes []string) ([]domain.Instrument, error) {
	q := url.Values{}
	q.Set("Keywords", keywords)
	if len(assetTypes) > 0 {
		q.Set("AssetTypes", strings.Join(assetTypes, ","))
	}
	q.Set("$top", "50")

	var resp listResponse[instrument]
	if err := c.do(ctx, http.MethodGet, "/ref/v1/instruments", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Instrument, 0, len(resp.Data))
	for _, in := range resp.Data {
		out = append(out, mapInstrument(in))
	}
	return out, nil
}

// TradeHistory fetches executed trades in the date range
func (c *Client) TradeHistory(ctx context.Context, from, to time.Time) ([]domain.BrokerTrade, error) {
	clientKey, err := c.ClientKey(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("FromDate", from.Format("2006-01-02"))
	q.Set("ToDate", to.Format("2006-01-02"))

	var resp listResponse[historicTrade]
	path := "/cs/v1/reports/trades/" + url.PathEscape(clientKey)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.BrokerTrade, 0, len(resp.Data))
	for _, tr := range resp.Data {
		out = append(out, mapTrade(tr))
	}
	return out, nil
}
