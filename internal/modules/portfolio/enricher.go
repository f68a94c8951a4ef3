package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vantage/internal/modules/indicators"
	"vantage/internal/quotes"
)

const (
	// historyDays is the calendar depth fetched per position, enough
	// trading bars for the SMA200
	historyDays = 365

	// positionTimeout bounds the analyses of a single position
	positionTimeout = 10 * time.Second

	// maxConcurrentPositions caps the position fan-out
	maxConcurrentPositions = 8
)

// Enricher runs the per-position analyses. Every leg degrades to nil on
// failure; the enricher itself never returns an error.
type Enricher struct {
	quotes     quotes.Provider
	indicators *indicators.Engine
	sentiment  SentimentProvider
	log        zerolog.Logger
}

// NewEnricher creates an enricher. sentiment may be nil, which disables
// that leg.
func NewEnricher(provider quotes.Provider, engine *indicators.Engine, sentiment SentimentProvider, log zerolog.Logger) *Enricher {
	return &Enricher{
		quotes:     provider,
		indicators: engine,
		sentiment:  sentiment,
		log:        log.With().Str("component", "enricher").Logger(),
	}
}

// Enrich analyses every position in parallel and returns one enriched
// result per input, in input order
func (e *Enricher) Enrich(ctx context.Context, positions []RawPosition, totalValue float64) []EnrichedPosition {
	results := make([]EnrichedPosition, len(positions))

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentPositions)
	for i, pos := range positions {
		g.Go(func() error {
			results[i] = e.enrichOne(ctx, pos, totalValue)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// enrichOne runs the analyses for a single position. Technical and
// sentiment go out concurrently; risk is pure geometry and the
// recommendation is derived once the technical result is in.
func (e *Enricher) enrichOne(ctx context.Context, pos RawPosition, totalValue float64) EnrichedPosition {
	ctx, cancel := context.WithTimeout(ctx, positionTimeout)
	defer cancel()

	enriched := EnrichedPosition{
		RawPosition: pos,
		Value:       pos.MarketValue(),
		PnLValue:    pos.PnL(),
		PnLPct:      pos.PnLPercent(),
		Risk:        computeRisk(pos, totalValue),
	}

	var g errgroup.Group
	g.Go(func() error {
		tech, err := e.technical(ctx, pos)
		if err != nil {
			e.log.Warn().Err(err).Str("ticker", string(pos.Ticker)).Msg("Technical analysis unavailable")
			return nil
		}
		enriched.Technical = tech
		return nil
	})
	g.Go(func() error {
		if e.sentiment == nil {
			return nil
		}
		summary, err := e.sentiment.Analyze(ctx, pos.Ticker)
		if err != nil {
			e.log.Warn().Err(err).Str("ticker", string(pos.Ticker)).Msg("Sentiment analysis unavailable")
			return nil
		}
		enriched.Sentiment = summary
		return nil
	})
	_ = g.Wait()

	enriched.Recommendation = recommend(enriched.Technical, pos.PnLPercent())
	return enriched
}

func (e *Enricher) technical(ctx context.Context, pos RawPosition) (*indicators.TechnicalIndicators, error) {
	bars, err := e.quotes.Historical(ctx, pos.Ticker, historyDays)
	if err != nil {
		return nil, err
	}
	return e.indicators.Calculate(pos.Ticker, bars)
}
