package tokens

import (
	"testing"
	"time"
)

func TestShouldRefreshThresholds(t *testing.T) {
	s := DefaultStrategy()

	tests := []struct {
		name       string
		accessTTL  time.Duration
		refreshTTL time.Duration
		want       bool
	}{
		{"both healthy", time.Hour, 24 * time.Hour, false},
		{"access under threshold", 400 * time.Second, 24 * time.Hour, true},
		{"access exactly at threshold", 600 * time.Second, 24 * time.Hour, false},
		{"access just under threshold", 600*time.Second - time.Nanosecond, 24 * time.Hour, true},
		{"refresh under threshold", time.Hour, 1000 * time.Second, true},
		{"refresh exactly at threshold", time.Hour, 1200 * time.Second, false},
		{"both under", 10 * time.Second, 10 * time.Second, true},
		{"access zero", 0, 24 * time.Hour, true},
		{"no refresh expiry", time.Hour, NoExpiry, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := s.ShouldRefresh(tt.accessTTL, tt.refreshTTL)
			if got != tt.want {
				t.Errorf("ShouldRefresh(%v, %v) = %v, want %v", tt.accessTTL, tt.refreshTTL, got, tt.want)
			}
		})
	}
}

// Monotone in both arguments: once a refresh is due, shrinking either TTL
// keeps it due.
func TestShouldRefreshMonotone(t *testing.T) {
	s := DefaultStrategy()
	deltas := []time.Duration{0, time.Second, time.Minute, time.Hour}

	ttls := []time.Duration{
		0,
		30 * time.Second,
		599 * time.Second,
		600 * time.Second,
		1199 * time.Second,
		1200 * time.Second,
		time.Hour,
	}

	for _, a := range ttls {
		for _, r := range ttls {
			due, _ := s.ShouldRefresh(a, r)
			if !due {
				continue
			}
			for _, d := range deltas {
				aLess := a - d
				if aLess < 0 {
					aLess = 0
				}
				rLess := r - d
				if rLess < 0 {
					rLess = 0
				}
				if got, _ := s.ShouldRefresh(aLess, r); !got {
					t.Errorf("ShouldRefresh(%v, %v) true but (%v, %v) false", a, r, aLess, r)
				}
				if got, _ := s.ShouldRefresh(a, rLess); !got {
					t.Errorf("ShouldRefresh(%v, %v) true but (%v, %v) false", a, r, a, rLess)
				}
			}
		}
	}
}

func TestNextCheckInterval(t *testing.T) {
	s := DefaultStrategy()

	tests := []struct {
		name       string
		accessTTL  time.Duration
		refreshTTL time.Duration
		want       time.Duration
	}{
		{"half of nearest", 20 * time.Minute, 24 * time.Hour, 10 * time.Minute},
		{"refresh is nearest", 24 * time.Hour, 30 * time.Minute, 15 * time.Minute},
		{"floored at minimum", 90 * time.Second, 24 * time.Hour, time.Minute},
		{"zero ttl floors", 0, 0, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NextCheckInterval(tt.accessTTL, tt.refreshTTL); got != tt.want {
				t.Errorf("NextCheckInterval(%v, %v) = %v, want %v", tt.accessTTL, tt.refreshTTL, got, tt.want)
			}
		})
	}
}

func TestRecordTTLs(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	refreshExp := now.Add(2400 * time.Second)
	rec := &TokenRecord{
		AccessToken:      "a",
		RefreshToken:     "r",
		CreatedAt:        now.Add(-time.Hour),
		ExpiresAt:        now.Add(400 * time.Second),
		RefreshExpiresAt: &refreshExp,
	}

	if got := rec.AccessTTL(now); got != 400*time.Second {
		t.Errorf("AccessTTL = %v, want 400s", got)
	}
	if got := rec.RefreshTTL(now); got != 2400*time.Second {
		t.Errorf("RefreshTTL = %v, want 2400s", got)
	}
	if rec.IsExpired(now) {
		t.Error("token should not be expired yet")
	}
	if !rec.ExpiresSoon(now) {
		t.Error("token expiring in 400s should report ExpiresSoon")
	}
	if !rec.IsExpired(now.Add(400 * time.Second)) {
		t.Error("token should be expired at its expiry instant")
	}

	// TTLs floor at zero after expiry.
	later := now.Add(time.Hour)
	if got := rec.AccessTTL(later); got != 0 {
		t.Errorf("AccessTTL after expiry = %v, want 0", got)
	}

	rec.RefreshExpiresAt = nil
	if got := rec.RefreshTTL(now); got != NoExpiry {
		t.Errorf("RefreshTTL without expiry = %v, want NoExpiry", got)
	}
}

func TestRecordValidate(t *testing.T) {
	now := time.Now()
	valid := &TokenRecord{AccessToken: "a", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	noAccess := &TokenRecord{CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := noAccess.Validate(); err == nil {
		t.Error("record without access token accepted")
	}

	backwards := &TokenRecord{AccessToken: "a", CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}
	if err := backwards.Validate(); err == nil {
		t.Error("record with expires_at before created_at accepted")
	}
}
