// Package stream provides live price distribution. A registry of price
// sources (one polling, zero or more real-time) feeds a hybrid streamer
// that schedules polls per trading mode and fans quotes out to WebSocket
// subscribers.
package stream

import (
	"context"
	"time"

	"vantage/internal/domain"
)

// QuoteCallback receives a quote pushed by a source
type QuoteCallback func(quote *domain.Quote)

// Source is the capability surface every price source exposes. Polling
// sources answer CurrentPrice on demand; real-time sources additionally
// push quotes through the callback registered via Subscribe.
type Source interface {
	// Name identifies the source in the registry and in quote payloads
	Name() string

	// Realtime reports whether the source pushes quotes on its own
	Realtime() bool

	// Available reports whether the source could be used right now
	// (credentials present, endpoint configured)
	Available() bool

	// Connected reports whether a live session is established
	Connected() bool

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// Subscribe registers interest in a ticker. Real-time sources begin
	// pushing quotes into cb; hints carry source-specific extras such as
	// an instrument identifier. Subscribing twice replaces the callback.
	Subscribe(ctx context.Context, ticker domain.Ticker, cb QuoteCallback, hints map[string]string) error

	Unsubscribe(ctx context.Context, ticker domain.Ticker) error

	// CurrentPrice fetches the latest quote on demand
	CurrentPrice(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error)
}

// TradingMode selects the streamer's poll cadences and whether real-time
// sources are active
type TradingMode string

const (
	ModeLongTerm TradingMode = "long_term"
	ModeSwing    TradingMode = "swing"
	ModeScalping TradingMode = "scalping"
)

// Valid reports whether the mode is one of the three known modes
func (m TradingMode) Valid() bool {
	switch m {
	case ModeLongTerm, ModeSwing, ModeScalping:
		return true
	}
	return false
}

// UsesWebsocket reports whether real-time sources run in this mode
func (m TradingMode) UsesWebsocket() bool {
	return m == ModeScalping
}

// Subscription priorities. Priority 1 tickers ride the normal poll loop,
// 2 and above the faster priority loop.
const (
	PriorityNormal = 1
	PriorityHigh   = 2
	PriorityUrgent = 3
)

// SubscriptionState records the desired streaming state for one ticker
type SubscriptionState struct {
	Ticker       domain.Ticker `json:"ticker"`
	Priority     int           `json:"priority"`
	SourceHint   string        `json:"source_hint,omitempty"`
	SubscribedAt time.Time     `json:"subscribed_at"`
}

// SourceStatus is a point-in-time view of one registered source
type SourceStatus struct {
	Name      string `json:"name"`
	Realtime  bool   `json:"realtime"`
	Available bool   `json:"available"`
	Connected bool   `json:"connected"`
}

// Status is a point-in-time view of the streamer
type Status struct {
	Mode            TradingMode         `json:"mode"`
	PollSeconds     int                 `json:"poll_seconds"`
	PrioritySeconds int                 `json:"priority_seconds"`
	RealtimeActive  bool                `json:"realtime_active"`
	Sources         []SourceStatus      `json:"sources"`
	Subscriptions   []SubscriptionState `json:"subscriptions"`
	Clients         int                 `json:"clients"`
}
