package portfolio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
	"vantage/internal/modules/indicators"
	"vantage/internal/quotes"
)

type stubProvider struct {
	bars map[domain.Ticker][]domain.HistoricalBar
}

func (s *stubProvider) Historical(_ context.Context, ticker domain.Ticker, _ int) ([]domain.HistoricalBar, error) {
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

type stubSentiment struct {
	failFor domain.Ticker

	mu    sync.Mutex
	calls int
}

func (s *stubSentiment) Analyze(_ context.Context, ticker domain.Ticker) (*SentimentSummary, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if ticker == s.failFor {
		return nil, fmt.Errorf("news feed unavailable for %s", ticker)
	}
	return &SentimentSummary{Label: "positive", Score: 0.4, Articles: 6}, nil
}

func (s *stubSentiment) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// trendBars builds an OHLCV series long enough for the full indicator set
func trendBars(n int, start, step float64) []domain.HistoricalBar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.HistoricalBar, n)
	price := start
	for i := range bars {
		bars[i] = domain.HistoricalBar{
			Date:   base.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1_000_000,
		}
		price += step
	}
	return bars
}

func testPositions() []RawPosition {
	return []RawPosition{
		{Ticker: "AAPL", Shares: 10, AvgCost: 150, CurrentPrice: 180},
		{Ticker: "MSFT", Shares: 5, AvgCost: 300, CurrentPrice: 330},
		{Ticker: "FAIL", Shares: 2, AvgCost: 50, CurrentPrice: 40},
	}
}

func newTestEnricher(sentiment SentimentProvider) *Enricher {
	provider := &stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{
		"AAPL": trendBars(220, 100, 0.4),
		"MSFT": trendBars(220, 250, 0.3),
		"FAIL": trendBars(220, 60, -0.1),
	}}
	return NewEnricher(provider, indicators.NewEngine(zerolog.Nop()), sentiment, zerolog.Nop())
}

func TestEnrichSentimentFailureDegradesOnePosition(t *testing.T) {
	sentiment := &stubSentiment{failFor: "FAIL"}
	enricher := newTestEnricher(sentiment)

	positions := testPositions()
	total := 0.0
	for _, p := range positions {
		total += p.MarketValue()
	}

	results := enricher.Enrich(context.Background(), positions, total)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, positions[i].Ticker, res.Ticker, "input order preserved")
		assert.NotNil(t, res.Technical, "%s technical", res.Ticker)
		assert.NotNil(t, res.Risk, "%s risk", res.Ticker)
		assert.NotNil(t, res.Recommendation, "%s recommendation", res.Ticker)
	}

	assert.NotNil(t, results[0].Sentiment)
	assert.NotNil(t, results[1].Sentiment)
	assert.Nil(t, results[2].Sentiment, "failed sentiment leg must degrade to nil")
	assert.Equal(t, 3, sentiment.callCount())
}

func TestEnrichWithoutHistoryKeepsPosition(t *testing.T) {
	enricher := NewEnricher(
		&stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{}},
		indicators.NewEngine(zerolog.Nop()),
		nil,
		zerolog.Nop(),
	)

	pos := RawPosition{Ticker: "NEW", Shares: 4, AvgCost: 100, CurrentPrice: 140}
	results := enricher.Enrich(context.Background(), []RawPosition{pos}, pos.MarketValue())
	require.Len(t, results, 1)

	res := results[0]
	assert.Nil(t, res.Technical)
	assert.Nil(t, res.Sentiment)
	require.NotNil(t, res.Risk)
	require.NotNil(t, res.Recommendation)

	// P&L-only verdict: +40% triggers the take-profit clip
	assert.InDelta(t, -10, res.Recommendation.Score, 1e-9)
	assert.Equal(t, ActionHold, res.Recommendation.Action)
}

func TestEnrichDerivedFields(t *testing.T) {
	enricher := newTestEnricher(nil)

	pos := RawPosition{Ticker: "AAPL", Shares: 10, AvgCost: 150, CurrentPrice: 180}
	results := enricher.Enrich(context.Background(), []RawPosition{pos}, 3600)
	require.Len(t, results, 1)

	res := results[0]
	assert.InDelta(t, 1800, res.Value, 1e-9)
	assert.InDelta(t, 300, res.PnLValue, 1e-9)
	assert.InDelta(t, 20, res.PnLPct, 1e-9)
	require.NotNil(t, res.Risk)
	assert.InDelta(t, 0.5, res.Risk.Weight, 1e-9)
	assert.Equal(t, ConcentrationHigh, res.Risk.ConcentrationRisk)
}

func TestEnrichEmptyPortfolio(t *testing.T) {
	enricher := newTestEnricher(nil)

	results := enricher.Enrich(context.Background(), nil, 0)
	assert.Empty(t, results)
}

func TestComputeRisk(t *testing.T) {
	pos := RawPosition{Ticker: "AAPL", Shares: 10, AvgCost: 100, CurrentPrice: 120}

	risk := computeRisk(pos, 12_000)
	assert.InDelta(t, 0.1, risk.Weight, 1e-9)
	assert.Equal(t, ConcentrationLow, risk.ConcentrationRisk)
	assert.InDelta(t, 92, risk.SuggestedStop, 1e-9)
	assert.InDelta(t, 124, risk.SuggestedTarget, 1e-9)
	assert.InDelta(t, 80, risk.MaxLoss, 1e-9)

	risk = computeRisk(pos, 6_000)
	assert.Equal(t, ConcentrationMedium, risk.ConcentrationRisk)

	risk = computeRisk(pos, 4_000)
	assert.Equal(t, ConcentrationHigh, risk.ConcentrationRisk)

	// Degenerate total value must not divide by zero
	risk = computeRisk(pos, 0)
	assert.Zero(t, risk.Weight)
	assert.Equal(t, ConcentrationLow, risk.ConcentrationRisk)
}
