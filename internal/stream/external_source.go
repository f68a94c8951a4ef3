package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

const (
	feedDialTimeout  = 15 * time.Second
	feedWriteWait    = 10 * time.Second
	feedPingInterval = 30 * time.Second

	// ~3 missed pings before the read loop gives up and reconnects
	feedReadTimeout = 90 * time.Second

	feedInitialBackoff = time.Second
	feedMaxBackoff     = 30 * time.Second
)

// feedCommand is the outbound subscribe/unsubscribe frame
type feedCommand struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers"`
}

// feedQuote is the inbound quote frame
type feedQuote struct {
	Type          string   `json:"type"`
	Ticker        string   `json:"ticker"`
	Price         float64  `json:"price"`
	Bid           *float64 `json:"bid,omitempty"`
	Ask           *float64 `json:"ask,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	Volume        *int64   `json:"volume,omitempty"`
	Timestamp     string   `json:"timestamp"`
}

// ExternalFeedSource consumes a market-data WebSocket feed. The connection
// auto-reconnects with exponential backoff (1s doubling to 30s) and
// re-subscribes every tracked ticker after each reconnect.
type ExternalFeedSource struct {
	name string
	url  string
	log  zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	mu        sync.RWMutex
	subs      map[domain.Ticker]QuoteCallback
	last      map[domain.Ticker]*domain.Quote
	connected bool
	stopped   bool
	cancelRun context.CancelFunc
}

// NewExternalFeedSource creates a feed client for the given WebSocket URL
func NewExternalFeedSource(name, url string, log zerolog.Logger) *ExternalFeedSource {
	return &ExternalFeedSource{
		name: name,
		url:  url,
		log:  log.With().Str("source", name).Logger(),
		subs: make(map[domain.Ticker]QuoteCallback),
		last: make(map[domain.Ticker]*domain.Quote),
	}
}

func (f *ExternalFeedSource) Name() string    { return f.name }
func (f *ExternalFeedSource) Realtime() bool  { return true }
func (f *ExternalFeedSource) Available() bool { return f.url != "" }

func (f *ExternalFeedSource) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Connect dials the feed and starts the read loop. A failed dial returns
// the error; once connected the source keeps itself alive until Disconnect.
func (f *ExternalFeedSource) Connect(ctx context.Context) error {
	if f.url == "" {
		return fmt.Errorf("no feed URL configured")
	}

	f.mu.Lock()
	if f.connected {
		f.mu.Unlock()
		return nil
	}
	f.stopped = false
	f.mu.Unlock()

	if err := f.dial(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.cancelRun = cancel
	f.mu.Unlock()

	go f.run(runCtx)
	return nil
}

// Disconnect stops the read loop and closes the connection
func (f *ExternalFeedSource) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.connected = false
	cancel := f.cancelRun
	f.cancelRun = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

// Subscribe tracks a ticker and, when connected, sends the subscribe frame
func (f *ExternalFeedSource) Subscribe(ctx context.Context, ticker domain.Ticker, cb QuoteCallback, hints map[string]string) error {
	f.mu.Lock()
	f.subs[ticker] = cb
	connected := f.connected
	f.mu.Unlock()

	if !connected {
		return nil
	}
	return f.writeJSON(feedCommand{Action: "subscribe", Tickers: []string{ticker.String()}})
}

func (f *ExternalFeedSource) Unsubscribe(ctx context.Context, ticker domain.Ticker) error {
	f.mu.Lock()
	delete(f.subs, ticker)
	delete(f.last, ticker)
	connected := f.connected
	f.mu.Unlock()

	if !connected {
		return nil
	}
	return f.writeJSON(feedCommand{Action: "unsubscribe", Tickers: []string{ticker.String()}})
}

// CurrentPrice returns the last quote pushed for the ticker. The feed has
// no request/response channel, so an unseen ticker is an error.
func (f *ExternalFeedSource) CurrentPrice(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if q, ok := f.last[ticker]; ok {
		return q, nil
	}
	return nil, fmt.Errorf("no quote received yet for %s", ticker)
}

// dial establishes the connection and replays the subscribe frame for
// every tracked ticker
func (f *ExternalFeedSource) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, feedDialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.mu.Lock()
	f.connected = true
	tickers := make([]string, 0, len(f.subs))
	for t := range f.subs {
		tickers = append(tickers, t.String())
	}
	f.mu.Unlock()

	if len(tickers) > 0 {
		if err := f.writeJSON(feedCommand{Action: "subscribe", Tickers: tickers}); err != nil {
			f.closeConn()
			return fmt.Errorf("failed to subscribe after connect: %w", err)
		}
	}

	f.log.Info().Int("tickers", len(tickers)).Msg("Feed connected")
	return nil
}

// run reads until the connection dies, then reconnects with backoff until
// Disconnect is called
func (f *ExternalFeedSource) run(ctx context.Context) {
	backoff := feedInitialBackoff

	for {
		err := f.readLoop(ctx)
		f.closeConn()

		f.mu.Lock()
		f.connected = false
		stopped := f.stopped
		f.mu.Unlock()

		if stopped || ctx.Err() != nil {
			return
		}

		f.log.Warn().Err(err).Dur("backoff", backoff).Msg("Feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > feedMaxBackoff {
			backoff = feedMaxBackoff
		}

		if err := f.dial(ctx); err != nil {
			f.log.Error().Err(err).Msg("Feed reconnect failed")
			continue
		}
		backoff = feedInitialBackoff
	}
}

func (f *ExternalFeedSource) readLoop(ctx context.Context) error {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection closed")
		}

		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		f.handleMessage(msg)
	}
}

func (f *ExternalFeedSource) handleMessage(data []byte) {
	var frame feedQuote
	if err := json.Unmarshal(data, &frame); err != nil {
		f.log.Debug().Str("data", string(data)).Msg("Ignoring malformed feed message")
		return
	}
	if frame.Type != "quote" || frame.Ticker == "" {
		return
	}

	ticker, err := domain.ParseTicker(frame.Ticker)
	if err != nil {
		f.log.Debug().Str("ticker", frame.Ticker).Msg("Ignoring quote for invalid ticker")
		return
	}

	ts := time.Now().UTC()
	if frame.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, frame.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}

	quote := &domain.Quote{
		Timestamp:     ts,
		Ticker:        ticker,
		Source:        f.name,
		Price:         frame.Price,
		Bid:           frame.Bid,
		Ask:           frame.Ask,
		Change:        frame.Change,
		ChangePercent: frame.ChangePercent,
		Volume:        frame.Volume,
	}

	f.mu.Lock()
	cb := f.subs[ticker]
	if cb != nil {
		f.last[ticker] = quote
	}
	f.mu.Unlock()

	if cb != nil {
		cb(quote)
	}
}

func (f *ExternalFeedSource) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.log.Debug().Err(err).Msg("Feed ping failed")
				return
			}
		}
	}
}

func (f *ExternalFeedSource) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return f.conn.WriteJSON(v)
}

func (f *ExternalFeedSource) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return f.conn.WriteMessage(msgType, data)
}

func (f *ExternalFeedSource) closeConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
