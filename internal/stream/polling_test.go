package stream

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
	"vantage/internal/quotes"
)

type quoteProvider struct {
	quotes map[domain.Ticker]*domain.Quote
	calls  int
}

func (p *quoteProvider) CurrentQuote(_ context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	p.calls++
	if q, ok := p.quotes[ticker]; ok {
		return q, nil
	}
	return nil, &quotes.TickerNotFoundError{Ticker: ticker}
}

func (p *quoteProvider) Historical(context.Context, domain.Ticker, int) ([]domain.HistoricalBar, error) {
	return nil, nil
}

func (p *quoteProvider) Metadata(context.Context, domain.Ticker) (*domain.StockMetadata, error) {
	return nil, nil
}

func (p *quoteProvider) Volatility(context.Context, domain.Ticker, int) (*domain.Percentage, error) {
	return nil, nil
}

func (p *quoteProvider) IsValid(context.Context, domain.Ticker) bool { return true }

func (p *quoteProvider) Search(context.Context, string, int) ([]domain.StockMetadata, error) {
	return nil, nil
}

func testQuote(ticker string, price float64) *domain.Quote {
	return &domain.Quote{
		Timestamp: time.Now().UTC(),
		Ticker:    domain.MustTicker(ticker),
		Source:    "test",
		Price:     price,
	}
}

func TestPollingSourceDelegatesToProvider(t *testing.T) {
	provider := &quoteProvider{quotes: map[domain.Ticker]*domain.Quote{
		domain.MustTicker("AAPL"): testQuote("AAPL", 178.5),
	}}
	src := NewPollingSource(provider, zerolog.Nop())

	assert.Equal(t, "polling", src.Name())
	assert.False(t, src.Realtime())
	assert.True(t, src.Available())
	assert.True(t, src.Connected())
	require.NoError(t, src.Connect(context.Background()))

	q, err := src.CurrentPrice(context.Background(), domain.MustTicker("AAPL"))
	require.NoError(t, err)
	assert.InDelta(t, 178.5, q.Price, 1e-9)

	_, err = src.CurrentPrice(context.Background(), domain.MustTicker("MISSING"))
	require.Error(t, err)
}

func TestPollingSourceTracksSubscriptions(t *testing.T) {
	src := NewPollingSource(&quoteProvider{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, src.Subscribe(ctx, domain.MustTicker("AAPL"), nil, nil))
	require.NoError(t, src.Subscribe(ctx, domain.MustTicker("MSFT"), nil, nil))
	assert.Len(t, src.Subscribed(), 2)

	require.NoError(t, src.Unsubscribe(ctx, domain.MustTicker("AAPL")))
	subscribed := src.Subscribed()
	require.Len(t, subscribed, 1)
	assert.Equal(t, domain.MustTicker("MSFT"), subscribed[0])
}
