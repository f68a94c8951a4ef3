// Package tokens keeps OAuth credentials valid and observable.
//
// A TokenRecord is the persisted shape of one broker's credentials; the
// Manager owns all mutation of it and drives proactive refresh through a
// pluggable strategy.
package tokens

import (
	"fmt"
	"math"
	"time"
)

// NoExpiry is the TTL reported for tokens without a known expiry
const NoExpiry = time.Duration(math.MaxInt64)

// expiresSoonWindow is the lookahead for the ExpiresSoon flag
const expiresSoonWindow = time.Hour

// TokenRecord holds one broker's OAuth credential set. Mutated only by the
// Manager; destroyed on explicit revoke.
type TokenRecord struct {
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	LastRefresh      *time.Time `json:"last_refresh,omitempty"`
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	Broker           string     `json:"broker"`
}

// Validate checks record invariants
func (r *TokenRecord) Validate() error {
	if r.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return fmt.Errorf("expires_at must be after created_at")
	}
	return nil
}

// IsExpired reports whether the access token has expired at now
func (r *TokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ExpiresSoon reports whether the access token expires within the hour
func (r *TokenRecord) ExpiresSoon(now time.Time) bool {
	return !now.Add(expiresSoonWindow).Before(r.ExpiresAt)
}

// AccessTTL returns the remaining access-token lifetime, floored at zero
func (r *TokenRecord) AccessTTL(now time.Time) time.Duration {
	ttl := r.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// RefreshTTL returns the remaining refresh-token lifetime. Records without
// a known refresh expiry report NoExpiry.
func (r *TokenRecord) RefreshTTL(now time.Time) time.Duration {
	if r.RefreshExpiresAt == nil {
		return NoExpiry
	}
	ttl := r.RefreshExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// TokenPair is the result of an upstream token grant (code exchange or
// refresh). Lifetimes are in seconds as delivered on the wire.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_token_expires_in"`
	TokenType        string `json:"token_type"`
}

// NewRecordFromPair builds a TokenRecord from a fresh grant
func NewRecordFromPair(pair *TokenPair, broker string, now time.Time) *TokenRecord {
	rec := &TokenRecord{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Broker:       broker,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(pair.ExpiresIn) * time.Second),
	}
	if pair.RefreshExpiresIn > 0 {
		t := now.Add(time.Duration(pair.RefreshExpiresIn) * time.Second)
		rec.RefreshExpiresAt = &t
	}
	return rec
}
