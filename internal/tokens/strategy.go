package tokens

import (
	"fmt"
	"time"
)

// ProactiveRefreshStrategy decides when to refresh ahead of expiry.
// The refresh-token threshold is the more critical one: losing the refresh
// token means a full re-authentication through the browser.
type ProactiveRefreshStrategy struct {
	AccessThreshold  time.Duration // refresh when access TTL drops below this
	RefreshThreshold time.Duration // refresh when refresh TTL drops below this
	MinCheckInterval time.Duration // floor for the next-check delay
}

// DefaultStrategy returns the production thresholds
func DefaultStrategy() ProactiveRefreshStrategy {
	return ProactiveRefreshStrategy{
		AccessThreshold:  10 * time.Minute,
		RefreshThreshold: 20 * time.Minute,
		MinCheckInterval: time.Minute,
	}
}

// ShouldRefresh reports whether a refresh is due, with the deciding reason.
// Monotone: shrinking either TTL never turns a true decision false.
func (s ProactiveRefreshStrategy) ShouldRefresh(accessTTL, refreshTTL time.Duration) (bool, string) {
	if refreshTTL < s.RefreshThreshold {
		return true, fmt.Sprintf("refresh token expires in %s", refreshTTL.Round(time.Second))
	}
	if accessTTL < s.AccessThreshold {
		return true, fmt.Sprintf("access token expires in %s", accessTTL.Round(time.Second))
	}
	return false, ""
}

// NextCheckInterval returns how long to wait before the next check:
// half the nearest expiry, floored at MinCheckInterval.
func (s ProactiveRefreshStrategy) NextCheckInterval(accessTTL, refreshTTL time.Duration) time.Duration {
	nearest := accessTTL
	if refreshTTL < nearest {
		nearest = refreshTTL
	}
	interval := nearest / 2
	if interval < s.MinCheckInterval {
		return s.MinCheckInterval
	}
	return interval
}
