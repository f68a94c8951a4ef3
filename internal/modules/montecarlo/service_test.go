package montecarlo

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

type stubProvider struct {
	bars map[domain.Ticker][]domain.HistoricalBar
	fail bool
}

func (s *stubProvider) Historical(_ context.Context, ticker domain.Ticker, _ int) ([]domain.HistoricalBar, error) {
	if s.fail {
		return nil, &quotes.DataFetchError{Ticker: ticker, Op: "historical"}
	}
	bars, ok := s.bars[ticker]
	if !ok {
		return nil, &quotes.TickerNotFoundError{Ticker: ticker}
	}
	return bars, nil
}

func (s *stubProvider) CurrentQuote(context.Context, domain.Ticker) (*domain.Quote, error) {
	return nil, nil
}

func (s *stubProvider) Metadata(context.Context, domain.Ticker) (*domain.StockMetadata, error) {
	return nil, nil
}

func (s *stubProvider) Volatility(context.Context, domain.Ticker, int) (*domain.Percentage, error) {
	return nil, nil
}

func (s *stubProvider) IsValid(context.Context, domain.Ticker) bool { return true }

func (s *stubProvider) Search(context.Context, string, int) ([]domain.StockMetadata, error) {
	return nil, nil
}

func noisyBars(n int, seed uint64) []domain.HistoricalBar {
	returns := syntheticReturns(n, 0.012, seed)
	bars := make([]domain.HistoricalBar, n)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range bars {
		price *= 1 + returns[i]
		bars[i] = domain.HistoricalBar{Date: base.AddDate(0, 0, i), Close: price}
	}
	return bars
}

func TestServiceSimulateTickerUsesLatestClose(t *testing.T) {
	ticker := domain.MustTicker("AAPL")
	bars := noisyBars(252, 4)
	provider := &stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{ticker: bars}}
	svc := NewService(NewEngine(zerolog.Nop()), provider, zerolog.Nop())

	result, err := svc.SimulateTicker(context.Background(), SimulationRequest{
		Ticker:         ticker,
		Days:           30,
		NumSimulations: 200,
		Seed:           seedPtr(1),
	})
	require.NoError(t, err)

	assert.Equal(t, bars[len(bars)-1].Close, result.InitialPrice)
	assert.Greater(t, result.Params.Volatility, 0.0)
}

func TestServiceSimulateTickerPropagatesFetchError(t *testing.T) {
	svc := NewService(NewEngine(zerolog.Nop()), &stubProvider{fail: true}, zerolog.Nop())

	_, err := svc.SimulateTicker(context.Background(), SimulationRequest{
		Ticker:         domain.MustTicker("AAPL"),
		Days:           30,
		NumSimulations: 200,
	})
	require.Error(t, err)

	var fetchErr *quotes.DataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestServicePortfolioRisk(t *testing.T) {
	aaa, bbb := domain.MustTicker("AAA"), domain.MustTicker("BBB")
	provider := &stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{
		aaa: noisyBars(252, 5),
		bbb: noisyBars(252, 6),
	}}
	svc := NewService(NewEngine(zerolog.Nop()), provider, zerolog.Nop())

	result, err := svc.PortfolioRisk(context.Background(), PortfolioRiskRequest{
		Positions: []PortfolioPosition{
			{Ticker: aaa, MarketValue: 70000},
			{Ticker: bbb, MarketValue: 30000},
		},
		HorizonDays:    10,
		NumSimulations: 1000,
		Seed:           seedPtr(8),
	})
	require.NoError(t, err)

	assert.InDelta(t, 100000, result.TotalValue, 1e-9)
	assert.Greater(t, result.VaR["99"], 0.0)
}
