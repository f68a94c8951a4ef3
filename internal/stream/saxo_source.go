package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"vantage/internal/broker/saxo"
	"vantage/internal/domain"
)

const (
	saxoDialTimeout   = 15 * time.Second
	saxoReconnectBase = 2 * time.Second
	saxoReconnectMax  = time.Minute
)

// saxoSubscription tracks one streaming instrument subscription. The last
// snapshot persists across delta updates so partial payloads still yield a
// complete quote.
type saxoSubscription struct {
	referenceID string
	uic         int64
	assetType   string
	callback    QuoteCallback
	last        saxoInfoPrice
}

// SaxoStreamingSource receives broker-native price pushes. Subscriptions
// are created over REST against a context ID; updates arrive as binary
// envelopes on the WebSocket connection opened with that same context ID.
// Tickers without a resolvable broker instrument are skipped with a
// warning rather than failing the subscribe.
type SaxoStreamingSource struct {
	client *saxo.Client
	tokens saxo.TokenProvider
	wsURL  string
	http   *http.Client
	log    zerolog.Logger

	mu           sync.RWMutex
	conn         *websocket.Conn
	cancel       context.CancelFunc
	stop         chan struct{}
	connected    bool
	stopped      bool
	reconnecting bool
	contextID    string
	subs         map[domain.Ticker]*saxoSubscription
	refs         map[string]domain.Ticker
	uics         map[domain.Ticker]int64
}

// newHTTP1Client forces HTTP/1.1. The streaming gateway negotiates HTTP/2
// via TLS ALPN, but the WebSocket upgrade handshake requires HTTP/1.1.
func newHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewSaxoStreamingSource creates the broker streaming source. wsURL is the
// environment's streaming connect endpoint.
func NewSaxoStreamingSource(client *saxo.Client, tokens saxo.TokenProvider, wsURL string, log zerolog.Logger) *SaxoStreamingSource {
	return &SaxoStreamingSource{
		client: client,
		tokens: tokens,
		wsURL:  wsURL,
		http:   newHTTP1Client(),
		log:    log.With().Str("source", "saxo").Logger(),
		subs:   make(map[domain.Ticker]*saxoSubscription),
		refs:   make(map[string]domain.Ticker),
		uics:   make(map[domain.Ticker]int64),
	}
}

func (s *SaxoStreamingSource) Name() string   { return "saxo" }
func (s *SaxoStreamingSource) Realtime() bool { return true }

// Available reports whether a usable access token exists
func (s *SaxoStreamingSource) Available() bool {
	rec, err := s.tokens.Token()
	return err == nil && rec != nil && !rec.IsExpired(time.Now())
}

func (s *SaxoStreamingSource) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Connect opens the streaming WebSocket under a fresh context ID and
// re-creates subscriptions for every recorded ticker
func (s *SaxoStreamingSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.stopped = false
	s.stop = make(chan struct{})
	s.mu.Unlock()

	rec, err := s.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to load broker token: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no broker token stored")
	}

	contextID := newStreamContextID()
	dialCtx, dialCancel := context.WithTimeout(ctx, saxoDialTimeout)
	defer dialCancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+rec.AccessToken)

	conn, _, err := websocket.Dial(dialCtx, s.wsURL+"?contextId="+contextID, &websocket.DialOptions{
		HTTPClient: s.http,
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to dial streaming endpoint: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = connCancel
	s.connected = true
	s.contextID = contextID
	s.mu.Unlock()

	go s.readLoop(connCtx, conn)

	s.resubscribeAll(ctx)
	s.log.Info().Str("context_id", contextID).Msg("Saxo streaming connected")
	return nil
}

// Disconnect removes the REST subscriptions best effort and closes the
// WebSocket. Recorded tickers survive so the next Connect restores them.
func (s *SaxoStreamingSource) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	conn := s.conn
	cancel := s.cancel
	contextID := s.contextID
	refIDs := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		refIDs = append(refIDs, sub.referenceID)
	}
	s.conn = nil
	s.cancel = nil
	s.connected = false
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	for _, refID := range refIDs {
		if err := s.client.DeletePriceSubscription(ctx, contextID, refID); err != nil {
			s.log.Debug().Err(err).Str("reference_id", refID).Msg("Failed to delete price subscription")
		}
	}

	if cancel != nil {
		cancel()
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		return fmt.Errorf("error closing streaming connection: %w", err)
	}
	return nil
}

// Subscribe resolves the ticker to a broker UIC and opens a streaming
// subscription. An unresolvable ticker is recorded nowhere and returns
// nil; streaming simply stays dark for it.
func (s *SaxoStreamingSource) Subscribe(ctx context.Context, ticker domain.Ticker, cb QuoteCallback, hints map[string]string) error {
	uic, ok := s.uicFromHints(hints)
	if !ok {
		uic, ok = s.resolveUIC(ctx, ticker)
	}
	if !ok {
		s.log.Warn().Str("ticker", ticker.String()).Msg("No broker instrument found, streaming subscription skipped")
		return nil
	}

	assetType := hints["asset_type"]
	if assetType == "" {
		assetType = "Stock"
	}

	s.mu.Lock()
	sub, exists := s.subs[ticker]
	if exists {
		sub.callback = cb
		sub.uic = uic
		sub.assetType = assetType
	} else {
		sub = &saxoSubscription{
			referenceID: "ip-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
			uic:         uic,
			assetType:   assetType,
			callback:    cb,
		}
		s.subs[ticker] = sub
		s.refs[sub.referenceID] = ticker
	}
	connected := s.connected
	contextID := s.contextID
	refID := sub.referenceID
	s.mu.Unlock()

	if !connected {
		return nil
	}
	if err := s.client.CreatePriceSubscription(ctx, contextID, refID, uic, assetType); err != nil {
		return fmt.Errorf("failed to create price subscription for %s: %w", ticker, err)
	}
	return nil
}

func (s *SaxoStreamingSource) Unsubscribe(ctx context.Context, ticker domain.Ticker) error {
	s.mu.Lock()
	sub, exists := s.subs[ticker]
	if !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.subs, ticker)
	delete(s.refs, sub.referenceID)
	connected := s.connected
	contextID := s.contextID
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.client.DeletePriceSubscription(ctx, contextID, sub.referenceID)
}

// CurrentPrice returns the last streamed quote for the ticker
func (s *SaxoStreamingSource) CurrentPrice(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.subs[ticker]; ok {
		if q := sub.last.quote(ticker); q != nil {
			return q, nil
		}
	}
	return nil, fmt.Errorf("no streamed quote yet for %s", ticker)
}

// uicFromHints reads an explicit UIC hint
func (s *SaxoStreamingSource) uicFromHints(hints map[string]string) (int64, bool) {
	raw := hints["uic"]
	if raw == "" {
		return 0, false
	}
	uic, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uic <= 0 {
		return 0, false
	}
	return uic, true
}

// resolveUIC finds the broker instrument whose symbol matches the ticker.
// Resolutions are cached; a miss is reported but not cached so a later
// listing can still resolve.
func (s *SaxoStreamingSource) resolveUIC(ctx context.Context, ticker domain.Ticker) (int64, bool) {
	s.mu.RLock()
	uic, ok := s.uics[ticker]
	s.mu.RUnlock()
	if ok {
		return uic, true
	}

	instruments, err := s.client.SearchInstruments(ctx, ticker.String(), []string{"Stock", "Etf"})
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Instrument lookup failed")
		return 0, false
	}

	for _, in := range instruments {
		symbol, _, _ := strings.Cut(in.Symbol, ":")
		if strings.EqualFold(symbol, ticker.String()) {
			s.mu.Lock()
			s.uics[ticker] = in.UIC
			s.mu.Unlock()
			return in.UIC, true
		}
	}
	return 0, false
}

// resubscribeAll re-creates the REST subscription for every recorded
// ticker, best effort
func (s *SaxoStreamingSource) resubscribeAll(ctx context.Context) {
	s.mu.RLock()
	contextID := s.contextID
	type pending struct {
		ticker    domain.Ticker
		refID     string
		uic       int64
		assetType string
	}
	subs := make([]pending, 0, len(s.subs))
	for ticker, sub := range s.subs {
		subs = append(subs, pending{ticker, sub.referenceID, sub.uic, sub.assetType})
	}
	s.mu.RUnlock()

	for _, p := range subs {
		if err := s.client.CreatePriceSubscription(ctx, contextID, p.refID, p.uic, p.assetType); err != nil {
			s.log.Warn().Err(err).Str("ticker", p.ticker.String()).Msg("Failed to restore price subscription")
		}
	}
}

// readLoop consumes binary envelopes until the connection dies, then hands
// off to the reconnect loop unless the source was stopped
func (s *SaxoStreamingSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		wasStopped := s.stopped
		if s.conn == conn {
			s.conn = nil
			s.connected = false
		}
		s.mu.Unlock()
		if !wasStopped {
			go s.reconnectLoop()
		}
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			switch {
			case ctx.Err() != nil:
				s.log.Debug().Msg("Streaming read cancelled")
			case closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway:
				s.log.Info().Int("status", int(closeStatus)).Msg("Streaming connection closed")
			default:
				s.log.Error().Err(err).Msg("Streaming read failed")
			}
			return
		}

		if msgType != websocket.MessageBinary {
			s.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-binary streaming message")
			continue
		}

		msgs, err := parseStreamMessages(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to parse streaming envelope")
			continue
		}
		for _, m := range msgs {
			s.dispatch(ctx, m)
		}
	}
}

func (s *SaxoStreamingSource) dispatch(ctx context.Context, m saxoStreamMessage) {
	if strings.HasPrefix(m.ReferenceID, "_") {
		s.handleControl(ctx, m)
		return
	}

	items, err := parseInfoPricePayload(m.Payload)
	if err != nil {
		s.log.Warn().Err(err).Str("reference_id", m.ReferenceID).Msg("Failed to parse price payload")
		return
	}

	for _, item := range items {
		s.mu.Lock()
		ticker, ok := s.refs[m.ReferenceID]
		if !ok {
			s.mu.Unlock()
			s.log.Debug().Str("reference_id", m.ReferenceID).Msg("Update for unknown subscription")
			return
		}
		sub := s.subs[ticker]
		sub.last.merge(item)
		quote := sub.last.quote(ticker)
		cb := sub.callback
		s.mu.Unlock()

		if quote != nil && cb != nil {
			cb(quote)
		}
	}
}

// handleControl reacts to the server's control messages. A reset request
// re-creates subscriptions; a disconnect notice just logs, the server
// closes the connection right after and the read loop takes it from there.
func (s *SaxoStreamingSource) handleControl(ctx context.Context, m saxoStreamMessage) {
	switch m.ReferenceID {
	case "_heartbeat":
		s.log.Debug().Msg("Streaming heartbeat")
	case "_resetsubscriptions":
		s.log.Warn().Msg("Server requested subscription reset")
		s.resubscribeAll(ctx)
	case "_disconnect":
		s.log.Warn().Msg("Server requested disconnect")
	default:
		s.log.Debug().Str("reference_id", m.ReferenceID).Msg("Unhandled control message")
	}
}

// reconnectLoop re-dials with exponential backoff until stopped or
// connected again
func (s *SaxoStreamingSource) reconnectLoop() {
	s.mu.Lock()
	if s.reconnecting || s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	stop := s.stop
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	backoff := saxoReconnectBase
	for attempt := 1; ; attempt++ {
		s.log.Info().Int("attempt", attempt).Dur("delay", backoff).Msg("Reconnecting to streaming endpoint")

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}

		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if stopped {
			return
		}

		if err := s.Connect(context.Background()); err != nil {
			s.log.Error().Err(err).Int("attempt", attempt).Msg("Streaming reconnect failed")
			backoff *= 2
			if backoff > saxoReconnectMax {
				backoff = saxoReconnectMax
			}
			continue
		}

		s.log.Info().Int("attempt", attempt).Msg("Streaming reconnected")
		return
	}
}

func newStreamContextID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// saxoStreamMessage is one decoded streaming envelope
type saxoStreamMessage struct {
	MessageID   uint64
	ReferenceID string
	Format      byte
	Payload     []byte
}

// parseStreamMessages decodes the binary streaming framing. Each message
// carries an 8-byte message ID, 2 reserved bytes, a length-prefixed
// reference ID, a 1-byte payload format and a length-prefixed payload.
// Frames may pack several messages back to back.
func parseStreamMessages(data []byte) ([]saxoStreamMessage, error) {
	var out []saxoStreamMessage
	off := 0
	for off < len(data) {
		if len(data)-off < 11 {
			return nil, fmt.Errorf("truncated envelope header at offset %d", off)
		}
		msgID := binary.LittleEndian.Uint64(data[off : off+8])
		refLen := int(data[off+10])
		off += 11

		if len(data)-off < refLen+5 {
			return nil, fmt.Errorf("truncated reference id at offset %d", off)
		}
		refID := string(data[off : off+refLen])
		format := data[off+refLen]
		payloadLen := int(binary.LittleEndian.Uint32(data[off+refLen+1 : off+refLen+5]))
		off += refLen + 5

		if len(data)-off < payloadLen {
			return nil, fmt.Errorf("truncated payload at offset %d", off)
		}
		out = append(out, saxoStreamMessage{
			MessageID:   msgID,
			ReferenceID: refID,
			Format:      format,
			Payload:     data[off : off+payloadLen],
		})
		off += payloadLen
	}
	return out, nil
}

type saxoQuoteFields struct {
	Bid *float64 `json:"Bid,omitempty"`
	Ask *float64 `json:"Ask,omitempty"`
	Mid *float64 `json:"Mid,omitempty"`
}

type saxoPriceInfo struct {
	NetChange     *float64 `json:"NetChange,omitempty"`
	PercentChange *float64 `json:"PercentChange,omitempty"`
}

type saxoPriceDetails struct {
	LastTraded *float64 `json:"LastTraded,omitempty"`
	Volume     *float64 `json:"Volume,omitempty"`
}

// saxoInfoPrice is the JSON payload of an info-price update. The server
// sends a full snapshot first, then deltas carrying only changed fields.
type saxoInfoPrice struct {
	LastUpdated      string            `json:"LastUpdated,omitempty"`
	Quote            *saxoQuoteFields  `json:"Quote,omitempty"`
	PriceInfo        *saxoPriceInfo    `json:"PriceInfo,omitempty"`
	PriceInfoDetails *saxoPriceDetails `json:"PriceInfoDetails,omitempty"`
}

// parseInfoPricePayload accepts both a single update object and a batched
// array of updates
func parseInfoPricePayload(payload []byte) ([]saxoInfoPrice, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []saxoInfoPrice
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var item saxoInfoPrice
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return nil, err
	}
	return []saxoInfoPrice{item}, nil
}

// merge overlays non-empty delta fields onto the snapshot
func (p *saxoInfoPrice) merge(delta saxoInfoPrice) {
	if delta.LastUpdated != "" {
		p.LastUpdated = delta.LastUpdated
	}
	if delta.Quote != nil {
		if p.Quote == nil {
			p.Quote = &saxoQuoteFields{}
		}
		if delta.Quote.Bid != nil {
			p.Quote.Bid = delta.Quote.Bid
		}
		if delta.Quote.Ask != nil {
			p.Quote.Ask = delta.Quote.Ask
		}
		if delta.Quote.Mid != nil {
			p.Quote.Mid = delta.Quote.Mid
		}
	}
	if delta.PriceInfo != nil {
		if p.PriceInfo == nil {
			p.PriceInfo = &saxoPriceInfo{}
		}
		if delta.PriceInfo.NetChange != nil {
			p.PriceInfo.NetChange = delta.PriceInfo.NetChange
		}
		if delta.PriceInfo.PercentChange != nil {
			p.PriceInfo.PercentChange = delta.PriceInfo.PercentChange
		}
	}
	if delta.PriceInfoDetails != nil {
		if p.PriceInfoDetails == nil {
			p.PriceInfoDetails = &saxoPriceDetails{}
		}
		if delta.PriceInfoDetails.LastTraded != nil {
			p.PriceInfoDetails.LastTraded = delta.PriceInfoDetails.LastTraded
		}
		if delta.PriceInfoDetails.Volume != nil {
			p.PriceInfoDetails.Volume = delta.PriceInfoDetails.Volume
		}
	}
}

// quote builds a domain quote from the merged snapshot. Last traded price
// wins, then mid, then the bid/ask midpoint; a snapshot with no usable
// price yields nil.
func (p *saxoInfoPrice) quote(ticker domain.Ticker) *domain.Quote {
	var price float64
	switch {
	case p.PriceInfoDetails != nil && p.PriceInfoDetails.LastTraded != nil && *p.PriceInfoDetails.LastTraded > 0:
		price = *p.PriceInfoDetails.LastTraded
	case p.Quote != nil && p.Quote.Mid != nil:
		price = *p.Quote.Mid
	case p.Quote != nil && p.Quote.Bid != nil && p.Quote.Ask != nil:
		price = (*p.Quote.Bid + *p.Quote.Ask) / 2
	default:
		return nil
	}

	ts := time.Now().UTC()
	if p.LastUpdated != "" {
		if at, err := time.Parse(time.RFC3339, p.LastUpdated); err == nil {
			ts = at.UTC()
		}
	}

	q := &domain.Quote{
		Timestamp: ts,
		Ticker:    ticker,
		Source:    "saxo",
		Price:     price,
	}
	if p.Quote != nil {
		q.Bid = p.Quote.Bid
		q.Ask = p.Quote.Ask
	}
	if p.PriceInfo != nil {
		q.Change = p.PriceInfo.NetChange
		q.ChangePercent = p.PriceInfo.PercentChange
	}
	if p.PriceInfoDetails != nil && p.PriceInfoDetails.Volume != nil {
		v := int64(*p.PriceInfoDetails.Volume)
		q.Volume = &v
	}
	return q
}
