package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
)

// feedServer fakes the external market-data feed. It records every dial,
// decodes inbound command frames and lets tests push quote frames.
type feedServer struct {
	srv  *httptest.Server
	cmds chan feedCommand

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{cmds: make(chan feedCommand, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.dials++
		fs.mu.Unlock()

		for {
			var cmd feedCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			fs.cmds <- cmd
		}
	}))
	t.Cleanup(fs.close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *feedServer) dialCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dials
}

func (fs *feedServer) push(t *testing.T, frame map[string]any) {
	t.Helper()
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	require.NoError(t, conn.WriteJSON(frame))
}

func (fs *feedServer) dropClients() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		c.Close()
	}
	fs.conns = nil
}

func (fs *feedServer) close() {
	fs.dropClients()
	fs.srv.Close()
}

func (fs *feedServer) waitCommand(t *testing.T, action string) feedCommand {
	t.Helper()
	for {
		select {
		case cmd := <-fs.cmds:
			if cmd.Action == action {
				return cmd
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q command", action)
		}
	}
}

func TestFeedSubscribeAndQuote(t *testing.T) {
	fs := newFeedServer(t)
	src := NewExternalFeedSource("feed", fs.url(), zerolog.Nop())

	got := make(chan *domain.Quote, 4)
	ticker := domain.MustTicker("AAPL")
	require.NoError(t, src.Subscribe(context.Background(), ticker, func(q *domain.Quote) { got <- q }, nil))

	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect(context.Background())

	cmd := fs.waitCommand(t, "subscribe")
	assert.Equal(t, []string{"AAPL"}, cmd.Tickers, "tracked tickers replayed on connect")
	assert.True(t, src.Connected())

	fs.push(t, map[string]any{
		"type":      "quote",
		"ticker":    "AAPL",
		"price":     178.5,
		"bid":       178.4,
		"ask":       178.6,
		"volume":    int64(9000),
		"timestamp": "2024-03-01T14:30:00Z",
	})

	select {
	case q := <-got:
		assert.Equal(t, ticker, q.Ticker)
		assert.Equal(t, "feed", q.Source)
		assert.InDelta(t, 178.5, q.Price, 1e-9)
		require.NotNil(t, q.Bid)
		assert.InDelta(t, 178.4, *q.Bid, 1e-9)
		require.NotNil(t, q.Volume)
		assert.Equal(t, int64(9000), *q.Volume)
		assert.Equal(t, time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC), q.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("quote never delivered")
	}

	cached, err := src.CurrentPrice(context.Background(), ticker)
	require.NoError(t, err)
	assert.InDelta(t, 178.5, cached.Price, 1e-9)
}

func TestFeedSubscribeWhileConnectedSendsFrame(t *testing.T) {
	fs := newFeedServer(t)
	src := NewExternalFeedSource("feed", fs.url(), zerolog.Nop())

	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect(context.Background())

	require.NoError(t, src.Subscribe(context.Background(), domain.MustTicker("MSFT"), func(*domain.Quote) {}, nil))
	cmd := fs.waitCommand(t, "subscribe")
	assert.Equal(t, []string{"MSFT"}, cmd.Tickers)

	require.NoError(t, src.Unsubscribe(context.Background(), domain.MustTicker("MSFT")))
	cmd = fs.waitCommand(t, "unsubscribe")
	assert.Equal(t, []string{"MSFT"}, cmd.Tickers)

	_, err := src.CurrentPrice(context.Background(), domain.MustTicker("MSFT"))
	assert.Error(t, err, "cache cleared on unsubscribe")
}

func TestFeedReconnectResubscribes(t *testing.T) {
	fs := newFeedServer(t)
	src := NewExternalFeedSource("feed", fs.url(), zerolog.Nop())

	require.NoError(t, src.Subscribe(context.Background(), domain.MustTicker("AAPL"), func(*domain.Quote) {}, nil))
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect(context.Background())

	fs.waitCommand(t, "subscribe")
	fs.dropClients()

	require.Eventually(t, func() bool { return fs.dialCount() >= 2 }, 5*time.Second, 50*time.Millisecond,
		"feed should redial after the server drops the connection")

	cmd := fs.waitCommand(t, "subscribe")
	assert.Equal(t, []string{"AAPL"}, cmd.Tickers, "subscription replayed on the new connection")
	require.Eventually(t, src.Connected, 5*time.Second, 50*time.Millisecond)
}

func TestFeedDisconnectStopsReconnect(t *testing.T) {
	fs := newFeedServer(t)
	src := NewExternalFeedSource("feed", fs.url(), zerolog.Nop())

	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, src.Disconnect(context.Background()))
	assert.False(t, src.Connected())

	require.Never(t, func() bool { return fs.dialCount() > 1 }, 1500*time.Millisecond, 100*time.Millisecond,
		"no redial after an explicit disconnect")
}

func TestFeedIgnoresUnusableFrames(t *testing.T) {
	fs := newFeedServer(t)
	src := NewExternalFeedSource("feed", fs.url(), zerolog.Nop())

	got := make(chan *domain.Quote, 4)
	require.NoError(t, src.Subscribe(context.Background(), domain.MustTicker("AAPL"), func(q *domain.Quote) { got <- q }, nil))
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect(context.Background())
	fs.waitCommand(t, "subscribe")

	// None of these frames should reach the callback
	fs.mu.Lock()
	conn := fs.conns[0]
	fs.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	fs.push(t, map[string]any{"type": "heartbeat"})
	fs.push(t, map[string]any{"type": "quote", "ticker": "bad ticker!", "price": 1.0})
	fs.push(t, map[string]any{"type": "quote", "ticker": "MSFT", "price": 2.0})

	fs.push(t, map[string]any{"type": "quote", "ticker": "AAPL", "price": 180.0})

	select {
	case q := <-got:
		assert.InDelta(t, 180.0, q.Price, 1e-9, "only the subscribed, well-formed quote arrives")
	case <-time.After(5 * time.Second):
		t.Fatal("valid quote never delivered")
	}
	select {
	case q := <-got:
		t.Fatalf("unexpected extra quote %v", q)
	default:
	}

	_, err := src.CurrentPrice(context.Background(), domain.MustTicker("MSFT"))
	assert.Error(t, err, "unsubscribed tickers are not cached")
}

func TestFeedRequiresURL(t *testing.T) {
	src := NewExternalFeedSource("feed", "", zerolog.Nop())
	assert.False(t, src.Available())
	assert.Error(t, src.Connect(context.Background()))
}
