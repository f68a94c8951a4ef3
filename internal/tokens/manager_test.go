package tokens

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/secrets"
)

type fakeRefresher struct {
	pairs []*TokenPair
	errs  []error
	calls int
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*TokenPair, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.pairs) {
		return f.pairs[i], nil
	}
	return nil, errors.New("no scripted response")
}

func newTestManager(t *testing.T, refresher Refresher) *Manager {
	t.Helper()
	key, err := secrets.LoadKey("manager-test")
	require.NoError(t, err)
	store, err := secrets.NewStore(filepath.Join(t.TempDir(), "tokens.json"), key, zerolog.Nop())
	require.NoError(t, err)

	return NewManager(ManagerConfig{
		Store:     store,
		Refresher: refresher,
		Broker:    "saxo",
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
		Log: zerolog.Nop(),
	})
}

func seedToken(t *testing.T, m *Manager, accessTTL, refreshTTL time.Duration) {
	t.Helper()
	now := time.Now()
	refreshExp := now.Add(refreshTTL)
	require.NoError(t, m.SaveToken(&TokenRecord{
		AccessToken:      "seed-access",
		RefreshToken:     "seed-refresh",
		Broker:           "saxo",
		CreatedAt:        now,
		ExpiresAt:        now.Add(accessTTL),
		RefreshExpiresAt: &refreshExp,
	}))
}

// Access TTL under the 600s threshold forces one upstream refresh and the
// persisted record carries the new lifetime.
func TestCheckAndRefreshProactive(t *testing.T) {
	refresher := &fakeRefresher{pairs: []*TokenPair{{
		AccessToken:      "new-access",
		RefreshToken:     "new-refresh",
		ExpiresIn:        1200,
		RefreshExpiresIn: 3600,
	}}}
	m := newTestManager(t, refresher)
	seedToken(t, m, 400*time.Second, 2400*time.Second)

	result := m.CheckAndRefresh(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, refresher.calls, "exactly one upstream refresh call")
	assert.InDelta(t, (1200 * time.Second).Seconds(), result.AccessTTL.Seconds(), 5)

	rec, err := m.Token()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "new-access", rec.AccessToken)
	assert.Equal(t, "new-refresh", rec.RefreshToken)
	assert.NotNil(t, rec.LastRefresh)
	assert.InDelta(t, (1200 * time.Second).Seconds(), rec.AccessTTL(time.Now()).Seconds(), 5)
}

func TestCheckAndRefreshHealthyTokenUntouched(t *testing.T) {
	refresher := &fakeRefresher{}
	m := newTestManager(t, refresher)
	seedToken(t, m, 2*time.Hour, 48*time.Hour)

	result := m.CheckAndRefresh(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, 0, refresher.calls, "healthy token must not hit upstream")

	rec, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "seed-access", rec.AccessToken)
}

func TestCheckAndRefreshExpiringSoonStillValid(t *testing.T) {
	m := newTestManager(t, &fakeRefresher{})
	// Above the 600s refresh threshold but inside the 1h expiring-soon window.
	seedToken(t, m, 30*time.Minute, 48*time.Hour)

	result := m.CheckAndRefresh(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, StatusExpiringSoon, result.Status)
}

func TestCheckAndRefreshMissingToken(t *testing.T) {
	m := newTestManager(t, &fakeRefresher{})
	result := m.CheckAndRefresh(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, StatusMissing, result.Status)
}

func TestCheckAndRefreshRetriesTransientErrors(t *testing.T) {
	refresher := &fakeRefresher{
		errs: []error{
			errors.New("connection reset"),
			errors.New("gateway timeout"),
		},
		pairs: []*TokenPair{nil, nil, {
			AccessToken: "after-retries",
			ExpiresIn:   1200,
		}},
	}
	m := newTestManager(t, refresher)
	seedToken(t, m, 100*time.Second, 2400*time.Second)

	result := m.CheckAndRefresh(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, refresher.calls)

	rec, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "after-retries", rec.AccessToken)
	// Provider omitted the rotated refresh token; the old one is kept.
	assert.Equal(t, "seed-refresh", rec.RefreshToken)
}

func TestCheckAndRefreshNonRetryableStopsImmediately(t *testing.T) {
	var notified error
	refresher := &fakeRefresher{errs: []error{errors.New(`400: {"error":"invalid_grant"}`)}}
	m := newTestManager(t, refresher)
	m.onFailure = func(_ string, err error) { notified = err }
	seedToken(t, m, 100*time.Second, 2400*time.Second)

	result := m.CheckAndRefresh(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, StatusRefreshFailed, result.Status)
	assert.Equal(t, 1, result.Attempts, "non-retryable error must not be retried")
	assert.Equal(t, 1, refresher.calls)
	assert.Error(t, notified)

	// The stale record survives for inspection; nothing was overwritten.
	rec, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "seed-access", rec.AccessToken)
}

func TestCheckAndRefreshExhaustsRetries(t *testing.T) {
	refresher := &fakeRefresher{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	m := newTestManager(t, refresher)
	seedToken(t, m, 100*time.Second, 2400*time.Second)

	result := m.CheckAndRefresh(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, StatusRefreshFailed, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Error(t, result.Err)

	// Failures accumulate until a success resets the counter.
	health := m.Health()
	assert.Equal(t, 1, health.ConsecutiveFailures)

	m.CheckAndRefresh(context.Background())
	assert.Equal(t, 2, m.Health().ConsecutiveFailures)
}

func TestCheckAndRefreshNoRefreshToken(t *testing.T) {
	m := newTestManager(t, &fakeRefresher{})
	now := time.Now()
	require.NoError(t, m.SaveToken(&TokenRecord{
		AccessToken: "only-access",
		Broker:      "saxo",
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(100 * time.Second),
	}))

	result := m.CheckAndRefresh(context.Background())
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrNoRefreshToken)
	assert.Equal(t, StatusExpiringSoon, result.Status)
}

func TestDeleteToken(t *testing.T) {
	m := newTestManager(t, &fakeRefresher{})
	seedToken(t, m, time.Hour, 24*time.Hour)

	require.NoError(t, m.DeleteToken())
	rec, err := m.Token()
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Revoking twice is harmless.
	require.NoError(t, m.DeleteToken())
}

func TestHealthDerived(t *testing.T) {
	m := newTestManager(t, &fakeRefresher{})

	h := m.Health()
	assert.False(t, h.HasToken)
	assert.Equal(t, StatusMissing, h.Status)

	seedToken(t, m, 40*time.Minute, 48*time.Hour)
	h = m.Health()
	assert.True(t, h.HasToken)
	assert.Equal(t, StatusExpiringSoon, h.Status)
	assert.Greater(t, h.AccessTTL, 39*time.Minute)
	assert.Equal(t, 0, h.ConsecutiveFailures)
	// Next check is half the nearest TTL.
	assert.InDelta(t, (20 * time.Minute).Seconds(), h.NextCheckIn.Seconds(), 60)
}
