package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/secrets"
)

// DefaultUser is the single-user identity used across the service
const DefaultUser = "default"

// tokenScope namespaces token records inside the secret store
const tokenScope = "tokens"

// Status classifies the credential state after a check
type Status string

const (
	StatusValid         Status = "valid"
	StatusExpiringSoon  Status = "expiring_soon"
	StatusExpired       Status = "expired"
	StatusMissing       Status = "missing"
	StatusRefreshFailed Status = "refresh_failed"
)

// ErrNoRefreshToken is returned when a refresh is due but no refresh token
// is available; the user must re-authenticate.
var ErrNoRefreshToken = errors.New("no refresh token available")

// Refresher exchanges a refresh token for a new token pair upstream
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// SecretStore is the persistence contract the manager needs
type SecretStore interface {
	Save(user, scope string, payload any) error
	Get(user, scope string, out any) error
	Delete(user, scope string) error
}

// RetryPolicy bounds refresh attempts
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the production retry bounds
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// nonRetryable are OAuth error markers where retrying cannot help
var nonRetryable = []string{"invalid_grant", "unauthorized", "invalid_client"}

func isNonRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range nonRetryable {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RefreshResult reports the outcome of one check-and-refresh cycle
type RefreshResult struct {
	Err        error         `json:"-"`
	Status     Status        `json:"status"`
	AccessTTL  time.Duration `json:"access_ttl"`
	RefreshTTL time.Duration `json:"refresh_ttl"`
	Attempts   int           `json:"attempts"`
	Success    bool          `json:"success"`
}

// Health is the derived observability view of the credential state.
// Computed on demand, never stored.
type Health struct {
	ExpiresAt           *time.Time    `json:"expires_at,omitempty"`
	LastRefresh         *time.Time    `json:"last_refresh,omitempty"`
	Status              Status        `json:"status"`
	AccessTTL           time.Duration `json:"access_ttl"`
	RefreshTTL          time.Duration `json:"refresh_ttl"`
	NextCheckIn         time.Duration `json:"next_check_in"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	HasToken            bool          `json:"has_token"`
}

// Manager owns the token lifecycle for one broker: it is the single writer
// of the persisted record and serialises refresh against readers.
type Manager struct {
	store     SecretStore
	refresher Refresher
	strategy  ProactiveRefreshStrategy
	retry     RetryPolicy
	user      string
	broker    string
	onFailure func(broker string, err error)
	now       func() time.Time
	log       zerolog.Logger

	mu                  sync.Mutex
	consecutiveFailures int
}

// ManagerConfig wires a Manager
type ManagerConfig struct {
	Store     SecretStore
	Refresher Refresher
	Strategy  ProactiveRefreshStrategy
	Retry     RetryPolicy
	Broker    string
	User      string
	OnFailure func(broker string, err error)
	Log       zerolog.Logger
}

// NewManager creates a token lifecycle manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Strategy.AccessThreshold == 0 {
		cfg.Strategy = DefaultStrategy()
	}
	return &Manager{
		store:     cfg.Store,
		refresher: cfg.Refresher,
		strategy:  cfg.Strategy,
		retry:     cfg.Retry,
		user:      cfg.User,
		broker:    cfg.Broker,
		onFailure: cfg.OnFailure,
		now:       time.Now,
		log:       cfg.Log.With().Str("component", "token_manager").Str("broker", cfg.Broker).Logger(),
	}
}

// Token returns the current persisted record. Callers re-read on every API
// request so a completed refresh is always visible. Returns nil when no
// token is stored.
func (m *Manager) Token() (*TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked()
}

func (m *Manager) readLocked() (*TokenRecord, error) {
	var byBroker map[string]*TokenRecord
	err := m.store.Get(m.user, tokenScope, &byBroker)
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	return byBroker[m.broker], nil
}

// SaveToken persists a record, replacing any existing one for the broker
func (m *Manager) SaveToken(rec *TokenRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid token record: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(rec)
}

func (m *Manager) saveLocked(rec *TokenRecord) error {
	var byBroker map[string]*TokenRecord
	err := m.store.Get(m.user, tokenScope, &byBroker)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return fmt.Errorf("failed to read token records: %w", err)
	}
	if byBroker == nil {
		byBroker = make(map[string]*TokenRecord)
	}
	byBroker[m.broker] = rec
	if err := m.store.Save(m.user, tokenScope, byBroker); err != nil {
		return fmt.Errorf("failed to persist token record: %w", err)
	}
	return nil
}

// DeleteToken revokes the stored credentials for the broker
func (m *Manager) DeleteToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var byBroker map[string]*TokenRecord
	err := m.store.Get(m.user, tokenScope, &byBroker)
	if errors.Is(err, secrets.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token records: %w", err)
	}
	if _, ok := byBroker[m.broker]; !ok {
		return nil
	}
	delete(byBroker, m.broker)
	if err := m.store.Save(m.user, tokenScope, byBroker); err != nil {
		return fmt.Errorf("failed to persist token records: %w", err)
	}
	m.log.Info().Msg("Token revoked")
	return nil
}

// CheckAndRefresh evaluates the strategy and refreshes if due. The whole
// cycle is atomic with respect to Token readers.
func (m *Manager) CheckAndRefresh(ctx context.Context) RefreshResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, err := m.readLocked()
	if err != nil {
		return RefreshResult{Status: StatusMissing, Err: err}
	}
	if rec == nil {
		m.log.Debug().Msg("No token stored")
		return RefreshResult{Status: StatusMissing}
	}

	accessTTL := rec.AccessTTL(now)
	refreshTTL := rec.RefreshTTL(now)

	due, reason := m.strategy.ShouldRefresh(accessTTL, refreshTTL)
	if !due {
		status := StatusValid
		if rec.ExpiresSoon(now) {
			status = StatusExpiringSoon
		}
		return RefreshResult{
			Success:    true,
			Status:     status,
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		}
	}

	if rec.RefreshToken == "" {
		status := StatusExpiringSoon
		if rec.IsExpired(now) {
			status = StatusExpired
		}
		m.failLocked(ErrNoRefreshToken)
		return RefreshResult{
			Status:     status,
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
			Err:        ErrNoRefreshToken,
		}
	}

	m.log.Info().Str("reason", reason).Msg("Refreshing token")

	pair, attempts, err := m.refreshWithRetry(ctx, rec.RefreshToken)
	if err != nil {
		m.failLocked(err)
		return RefreshResult{
			Status:     StatusRefreshFailed,
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
			Attempts:   attempts,
			Err:        err,
		}
	}

	now = m.now()
	updated := NewRecordFromPair(pair, m.broker, now)
	if updated.RefreshToken == "" {
		// Some providers omit the refresh token on rotation; keep the old one.
		updated.RefreshToken = rec.RefreshToken
		updated.RefreshExpiresAt = rec.RefreshExpiresAt
	}
	updated.LastRefresh = &now

	if err := m.saveLocked(updated); err != nil {
		m.failLocked(err)
		return RefreshResult{
			Status:   StatusRefreshFailed,
			Attempts: attempts,
			Err:      err,
		}
	}

	m.consecutiveFailures = 0
	m.log.Info().
		Int("attempts", attempts).
		Dur("access_ttl", updated.AccessTTL(now)).
		Msg("Token refreshed")

	return RefreshResult{
		Success:    true,
		Status:     StatusValid,
		AccessTTL:  updated.AccessTTL(now),
		RefreshTTL: updated.RefreshTTL(now),
		Attempts:   attempts,
	}
}

// refreshWithRetry attempts the upstream refresh with exponential backoff
func (m *Manager) refreshWithRetry(ctx context.Context, refreshToken string) (*TokenPair, int, error) {
	var lastErr error
	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		pair, err := m.refresher.Refresh(ctx, refreshToken)
		if err == nil {
			return pair, attempt, nil
		}
		lastErr = err

		if isNonRetryable(err) {
			m.log.Warn().Err(err).Msg("Refresh failed with non-retryable error")
			return nil, attempt, err
		}
		if attempt == m.retry.MaxAttempts {
			break
		}

		delay := m.retry.BaseDelay << (attempt - 1)
		if delay > m.retry.MaxDelay {
			delay = m.retry.MaxDelay
		}
		m.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Refresh attempt failed, backing off")

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, m.retry.MaxAttempts, fmt.Errorf("refresh failed after %d attempts: %w", m.retry.MaxAttempts, lastErr)
}

func (m *Manager) failLocked(err error) {
	m.consecutiveFailures++
	m.log.Error().
		Err(err).
		Int("consecutive_failures", m.consecutiveFailures).
		Msg("Token refresh failure")
	if m.onFailure != nil {
		m.onFailure(m.broker, err)
	}
}

// Health derives the current observability snapshot
func (m *Manager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, err := m.readLocked()
	if err != nil || rec == nil {
		return Health{
			Status:              StatusMissing,
			ConsecutiveFailures: m.consecutiveFailures,
			NextCheckIn:         m.strategy.MinCheckInterval,
		}
	}

	accessTTL := rec.AccessTTL(now)
	refreshTTL := rec.RefreshTTL(now)
	status := StatusValid
	switch {
	case rec.IsExpired(now):
		status = StatusExpired
	case rec.ExpiresSoon(now):
		status = StatusExpiringSoon
	}

	return Health{
		HasToken:            true,
		Status:              status,
		AccessTTL:           accessTTL,
		RefreshTTL:          refreshTTL,
		ExpiresAt:           &rec.ExpiresAt,
		LastRefresh:         rec.LastRefresh,
		ConsecutiveFailures: m.consecutiveFailures,
		NextCheckIn:         m.strategy.NextCheckInterval(accessTTL, refreshTTL),
	}
}

// Run drives the proactive refresh loop until ctx is cancelled. The delay
// to the next check is re-derived from the strategy after every cycle.
func (m *Manager) Run(ctx context.Context) {
	m.log.Info().Msg("Token refresh loop started")
	timer := time.NewTimer(m.strategy.MinCheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Token refresh loop stopped")
			return
		case <-timer.C:
		}

		result := m.CheckAndRefresh(ctx)

		delay := m.strategy.MinCheckInterval
		if result.Status != StatusMissing {
			delay = m.strategy.NextCheckInterval(result.AccessTTL, result.RefreshTTL)
		}
		m.log.Debug().
			Str("status", string(result.Status)).
			Dur("next_check", delay).
			Msg("Token check complete")
		timer.Reset(delay)
	}
}
