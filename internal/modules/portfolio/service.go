package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

// PositionSource supplies the raw holdings, normally the broker session
type PositionSource interface {
	Positions(ctx context.Context) ([]domain.BrokerPosition, error)
}

// Service fetches positions from the broker and runs them through the
// enricher
type Service struct {
	source   PositionSource
	enricher *Enricher
	log      zerolog.Logger
}

// NewService creates a portfolio service
func NewService(source PositionSource, enricher *Enricher, log zerolog.Logger) *Service {
	return &Service{
		source:   source,
		enricher: enricher,
		log:      log.With().Str("component", "portfolio").Logger(),
	}
}

// EnrichedPortfolio fetches the current holdings and enriches every
// position. Only the broker fetch can fail; analysis failures degrade to
// nil fields on the affected positions.
func (s *Service) EnrichedPortfolio(ctx context.Context) (*EnrichedPortfolio, error) {
	brokerPositions, err := s.source.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}

	positions := make([]RawPosition, 0, len(brokerPositions))
	total := 0.0
	for _, bp := range brokerPositions {
		if bp.Quantity == 0 {
			continue
		}
		pos := RawPosition{
			Ticker:       domain.Ticker(bp.Symbol),
			Shares:       bp.Quantity,
			AvgCost:      bp.AverageOpenPrice,
			CurrentPrice: bp.CurrentPrice,
		}
		total += pos.MarketValue()
		positions = append(positions, pos)
	}

	enriched := s.enricher.Enrich(ctx, positions, total)
	s.log.Debug().
		Int("positions", len(enriched)).
		Float64("total_value", total).
		Msg("Portfolio enriched")

	return &EnrichedPortfolio{
		AsOf:       time.Now().UTC(),
		TotalValue: total,
		Positions:  enriched,
	}, nil
}
