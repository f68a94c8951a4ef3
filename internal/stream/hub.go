package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"vantage/internal/domain"
)

const (
	// clientSendBuffer bounds each client's outbound queue. When a client
	// cannot keep up the oldest queued payload is dropped, so a slow
	// consumer only ever lags, never stalls the fan-out.
	clientSendBuffer = 64

	clientWriteWait = 10 * time.Second
)

// Hub fans quote payloads out to connected WebSocket clients, each holding
// its own ticker subscription set. Payloads enqueued by sequential Broadcast
// calls reach every subscribed client in that order.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// Client is one connected WebSocket consumer. A non-empty ticker set
// restricts delivery to those tickers; an empty set receives everything.
type Client struct {
	ID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	tickers map[domain.Ticker]struct{}
}

// NewHub creates an empty hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "stream_hub").Logger(),
		clients: make(map[string]*Client),
	}
}

// Register wraps an accepted WebSocket connection and starts serving it.
// tickers names the quotes the client wants; nil or empty subscribes it to
// every broadcast. Returns nil when the hub is already closed.
func (h *Hub) Register(conn *websocket.Conn, tickers []domain.Ticker) *Client {
	client := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	if len(tickers) > 0 {
		client.tickers = make(map[domain.Ticker]struct{}, len(tickers))
		for _, t := range tickers {
			client.tickers[t] = struct{}{}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return nil
	}
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Str("client_id", client.ID).Int("clients", count).Int("tickers", len(client.tickers)).Msg("Stream client connected")

	go client.serve()
	return client
}

// Broadcast enqueues a ticker's payload for every client subscribed to it,
// dropping the oldest queued payload per client when its buffer is full
func (h *Hub) Broadcast(ticker domain.Ticker, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(ticker) {
			continue
		}
		c.enqueue(payload)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects further registrations
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "shutting down")
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Str("client_id", id).Int("clients", count).Msg("Stream client disconnected")
}

// serve pumps queued payloads to the connection until the peer goes away.
// CloseRead keeps consuming control frames and cancels the context once
// the connection dies, so a vanished client unblocks the loop.
func (c *Client) serve() {
	defer c.hub.remove(c.ID)

	ctx := c.conn.CloseRead(context.Background())

	for {
		select {
		case <-ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		case payload := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, clientWriteWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusPolicyViolation, "write failed")
				return
			}
		}
	}
}

// wants reports whether the client's ticker set covers the ticker
func (c *Client) wants(ticker domain.Ticker) bool {
	if len(c.tickers) == 0 {
		return true
	}
	_, ok := c.tickers[ticker]
	return ok
}

// enqueue adds a payload to the client's queue. On a full queue the oldest
// payload is discarded first; the relative order of survivors is kept.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
		return
	default:
	}

	select {
	case <-c.send:
	default:
	}

	select {
	case c.send <- payload:
	default:
	}
}
