// Package saxo implements the Saxo OpenAPI broker session: the OAuth2 code
// flow, typed REST access to portfolio and trading endpoints, and the
// mapping from broker wire types to domain types.
package saxo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vantage/internal/tokens"
)

// BrokerName keys Saxo token records in the secret store
const BrokerName = "saxo"

// Environment selects the Saxo gateway
type Environment string

const (
	EnvironmentSim  Environment = "SIM"
	EnvironmentLive Environment = "LIVE"
)

// endpoints per environment
const (
	simAuthBase    = "https://sim.logonvalidation.net"
	liveAuthBase   = "https://live.logonvalidation.net"
	simGatewayBase = "https://gateway.saxobank.com/sim/openapi"
	liveGateway    = "https://gateway.saxobank.com/openapi"

	simStreamingURL  = "wss://streaming.saxobank.com/sim/openapi/streamingws/connect"
	liveStreamingURL = "wss://streaming.saxobank.com/openapi/streamingws/connect"
)

// pendingStateTTL bounds how long an issued OAuth state stays acceptable
const pendingStateTTL = 10 * time.Minute

// AuthConfig wires an AuthClient
type AuthConfig struct {
	AppKey      string
	AppSecret   string
	RedirectURI string
	Environment Environment
}

// AuthClient drives the OAuth2 authorization-code flow against the Saxo
// logon service. It satisfies tokens.Refresher.
type AuthClient struct {
	cfg  AuthConfig
	http *resty.Client
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[string]time.Time // state -> issued-at
}

// NewAuthClient creates the OAuth client for the configured environment
func NewAuthClient(cfg AuthConfig, log zerolog.Logger) *AuthClient {
	httpClient := resty.New().
		SetBaseURL(authBase(cfg.Environment)).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &AuthClient{
		cfg:     cfg,
		http:    httpClient,
		log:     log.With().Str("component", "saxo_auth").Str("env", string(cfg.Environment)).Logger(),
		pending: make(map[string]time.Time),
	}
}

func authBase(env Environment) string {
	if env == EnvironmentLive {
		return liveAuthBase
	}
	return simAuthBase
}

// GatewayBase returns the REST gateway base URL for the environment
func GatewayBase(env Environment) string {
	if env == EnvironmentLive {
		return liveGateway
	}
	return simGatewayBase
}

// StreamingURL returns the streaming WebSocket endpoint for the environment
func StreamingURL(env Environment) string {
	if env == EnvironmentLive {
		return liveStreamingURL
	}
	return simStreamingURL
}

// AuthorizationURL constructs the code-flow URL the user must visit. When
// state is empty a random one is generated; either way it is recorded and
// later validated by ExchangeCode.
func (a *AuthClient) AuthorizationURL(userID, state string) (string, string) {
	if state == "" {
		state = uuid.NewString()
	}

	a.mu.Lock()
	a.pending[state] = time.Now()
	for s, issued := range a.pending {
		if time.Since(issued) > pendingStateTTL {
			delete(a.pending, s)
		}
	}
	a.mu.Unlock()

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.cfg.AppKey)
	q.Set("redirect_uri", a.cfg.RedirectURI)
	q.Set("state", state)

	a.log.Debug().Str("user", userID).Msg("Authorization URL issued")
	return authBase(a.cfg.Environment) + "/authorize?" + q.Encode(), state
}

// ExchangeCode trades the authorization code for a token pair. The state
// must match one previously issued by AuthorizationURL.
func (a *AuthClient) ExchangeCode(ctx context.Context, code, state string) (*tokens.TokenPair, error) {
	a.mu.Lock()
	issued, ok := a.pending[state]
	if ok {
		delete(a.pending, state)
	}
	a.mu.Unlock()
	if !ok || time.Since(issued) > pendingStateTTL {
		return nil, fmt.Errorf("oauth state mismatch")
	}

	return a.tokenGrant(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {a.cfg.RedirectURI},
	})
}

// Refresh trades a refresh token for a new token pair
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*tokens.TokenPair, error) {
	return a.tokenGrant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// tokenGrant posts to the token endpoint with client credentials attached.
// OAuth error codes (invalid_grant and friends) are kept in the error text
// so the retry policy can classify them.
func (a *AuthClient) tokenGrant(ctx context.Context, form url.Values) (*tokens.TokenPair, error) {
	form.Set("client_id", a.cfg.AppKey)
	form.Set("client_secret", a.cfg.AppSecret)

	var pair tokens.TokenPair
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormDataFromValues(form).
		SetResult(&pair).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("token endpoint: network: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode(), truncateBody(resp.String()))
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	a.log.Info().Str("grant", form.Get("grant_type")).Msg("Token grant succeeded")
	return &pair, nil
}

// truncateBody bounds error text taken from response bodies
func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
