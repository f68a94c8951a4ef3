// Package portfolio enriches broker positions with technical, sentiment,
// risk and recommendation analyses, fanning the work out per position.
package portfolio

import (
	"context"
	"time"

	"vantage/internal/domain"
	"vantage/internal/modules/indicators"
)

// RawPosition is one holding before enrichment
type RawPosition struct {
	Ticker       domain.Ticker `json:"ticker"`
	Shares       float64       `json:"shares"`
	AvgCost      float64       `json:"avg_cost"`
	CurrentPrice float64       `json:"current_price"`
}

// MarketValue is the position's current worth
func (p RawPosition) MarketValue() float64 {
	return p.Shares * p.CurrentPrice
}

// CostBasis is what the position cost to open
func (p RawPosition) CostBasis() float64 {
	return p.Shares * p.AvgCost
}

// PnL is the unrealised profit or loss
func (p RawPosition) PnL() float64 {
	return p.MarketValue() - p.CostBasis()
}

// PnLPercent is the unrealised return on cost, 0 when there is no basis
func (p RawPosition) PnLPercent() float64 {
	basis := p.CostBasis()
	if basis == 0 {
		return 0
	}
	return p.PnL() / basis * 100
}

// SentimentSummary is the news sentiment verdict for one ticker
type SentimentSummary struct {
	Label     string   `json:"label"`
	Score     float64  `json:"score"`
	Articles  int      `json:"articles"`
	Headlines []string `json:"headlines,omitempty"`
}

// SentimentProvider summarises recent news for a ticker. Implementations
// live outside this package; a nil provider disables the sentiment leg.
type SentimentProvider interface {
	Analyze(ctx context.Context, ticker domain.Ticker) (*SentimentSummary, error)
}

// Concentration labels for the position weight
const (
	ConcentrationLow    = "low"
	ConcentrationMedium = "medium"
	ConcentrationHigh   = "high"
)

// Default risk geometry relative to the entry price: stop 8% below,
// target 24% above (3:1 reward to risk)
const (
	defaultStopFactor   = 0.92
	defaultTargetFactor = 1.24
)

// RiskMetrics is the per-position risk view
type RiskMetrics struct {
	Weight            float64 `json:"weight"`
	ConcentrationRisk string  `json:"concentration_risk"`
	SuggestedStop     float64 `json:"suggested_stop"`
	SuggestedTarget   float64 `json:"suggested_target"`
	MaxLoss           float64 `json:"max_loss"`
}

// Recommendation actions ordered from strongest accumulate to strongest exit
const (
	ActionBuy    = "BUY"
	ActionAdd    = "ADD"
	ActionHold   = "HOLD"
	ActionReduce = "REDUCE"
	ActionSell   = "SELL"
)

// Recommendation is the scored action for one position
type Recommendation struct {
	Action     string   `json:"action"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// EnrichedPosition is a holding with every analysis that succeeded. A nil
// analysis field means that leg failed or was not configured; the position
// itself is always present.
type EnrichedPosition struct {
	RawPosition
	Value          float64                         `json:"value"`
	PnLValue       float64                         `json:"pnl"`
	PnLPct         float64                         `json:"pnl_percent"`
	Technical      *indicators.TechnicalIndicators `json:"technical,omitempty"`
	Sentiment      *SentimentSummary               `json:"sentiment,omitempty"`
	Risk           *RiskMetrics                    `json:"risk,omitempty"`
	Recommendation *Recommendation                 `json:"recommendation,omitempty"`
}

// EnrichedPortfolio is the full enriched holdings snapshot
type EnrichedPortfolio struct {
	AsOf       time.Time          `json:"as_of"`
	TotalValue float64            `json:"total_value"`
	Positions  []EnrichedPosition `json:"positions"`
}

// computeRisk derives the risk metrics from position geometry alone
func computeRisk(pos RawPosition, totalValue float64) *RiskMetrics {
	weight := 0.0
	if totalValue > 0 {
		weight = pos.MarketValue() / totalValue
	}

	concentration := ConcentrationLow
	switch {
	case weight > 0.25:
		concentration = ConcentrationHigh
	case weight > 0.15:
		concentration = ConcentrationMedium
	}

	stop := pos.AvgCost * defaultStopFactor
	target := pos.AvgCost * defaultTargetFactor
	maxLoss := pos.Shares * (pos.AvgCost - stop)
	if maxLoss < 0 {
		maxLoss = -maxLoss
	}

	return &RiskMetrics{
		Weight:            weight,
		ConcentrationRisk: concentration,
		SuggestedStop:     stop,
		SuggestedTarget:   target,
		MaxLoss:           maxLoss,
	}
}
