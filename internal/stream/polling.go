package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/quotes"
)

// PollingSource answers price requests from a quote provider. It never
// pushes on its own; the streamer's poll loops drive it by calling
// CurrentPrice on whatever tickers are subscribed.
type PollingSource struct {
	provider quotes.Provider
	log      zerolog.Logger

	mu   sync.RWMutex
	subs map[domain.Ticker]QuoteCallback
}

// NewPollingSource creates the default polling source over a quote provider
func NewPollingSource(provider quotes.Provider, log zerolog.Logger) *PollingSource {
	return &PollingSource{
		provider: provider,
		log:      log.With().Str("source", "polling").Logger(),
		subs:     make(map[domain.Ticker]QuoteCallback),
	}
}

func (p *PollingSource) Name() string    { return "polling" }
func (p *PollingSource) Realtime() bool  { return false }
func (p *PollingSource) Available() bool { return true }
func (p *PollingSource) Connected() bool { return true }

func (p *PollingSource) Connect(ctx context.Context) error    { return nil }
func (p *PollingSource) Disconnect(ctx context.Context) error { return nil }

// Subscribe records the ticker so status listings can report it. The
// callback is kept but never invoked; delivery happens through the
// streamer's poll loops.
func (p *PollingSource) Subscribe(ctx context.Context, ticker domain.Ticker, cb QuoteCallback, hints map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[ticker] = cb
	return nil
}

func (p *PollingSource) Unsubscribe(ctx context.Context, ticker domain.Ticker) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, ticker)
	return nil
}

// CurrentPrice fetches the latest quote from the provider
func (p *PollingSource) CurrentPrice(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	return p.provider.CurrentQuote(ctx, ticker)
}

// Subscribed returns the tickers currently recorded, in no defined order
func (p *PollingSource) Subscribed() []domain.Ticker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Ticker, 0, len(p.subs))
	for t := range p.subs {
		out = append(out, t)
	}
	return out
}
