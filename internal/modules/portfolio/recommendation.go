package portfolio

import (
	"fmt"
	"math"

	"vantage/internal/modules/indicators"
)

// Action thresholds on the additive score
const (
	buyThreshold    = 40.0
	addThreshold    = 20.0
	reduceThreshold = -20.0
	sellThreshold   = -40.0
)

// recommend scores a position from its technical picture and unrealised
// P&L. Contributions are additive; missing indicator groups contribute
// nothing, so a position without history still gets a P&L-only verdict.
func recommend(tech *indicators.TechnicalIndicators, pnlPercent float64) *Recommendation {
	score := 0.0
	var reasons []string

	if tech != nil {
		if tech.RSI != nil {
			switch {
			case tech.RSI.Value > 80:
				score -= 30
				reasons = append(reasons, fmt.Sprintf("RSI %.1f strongly overbought", tech.RSI.Value))
			case tech.RSI.Value > 70:
				score -= 15
				reasons = append(reasons, fmt.Sprintf("RSI %.1f overbought", tech.RSI.Value))
			case tech.RSI.Value < 20:
				score += 30
				reasons = append(reasons, fmt.Sprintf("RSI %.1f strongly oversold", tech.RSI.Value))
			case tech.RSI.Value < 30:
				score += 15
				reasons = append(reasons, fmt.Sprintf("RSI %.1f oversold", tech.RSI.Value))
			}
		}

		if tech.MACD != nil {
			switch tech.MACD.Trend {
			case indicators.TrendBullish:
				score += 20
				reasons = append(reasons, "MACD bullish alignment")
			case indicators.TrendBearish:
				score -= 20
				reasons = append(reasons, "MACD bearish alignment")
			}
		}

		if tech.MovingAverages != nil {
			switch tech.MovingAverages.Trend {
			case indicators.TrendUptrend, indicators.TrendStrongUptrend:
				score += 25
				reasons = append(reasons, "moving averages stacked upward")
			case indicators.TrendDowntrend, indicators.TrendStrongDowntrend:
				score -= 25
				reasons = append(reasons, "moving averages stacked downward")
			}
		}

		if tech.Bollinger != nil {
			switch tech.Bollinger.Position {
			case indicators.BandBelowLower:
				score += 15
				reasons = append(reasons, "close below the lower Bollinger band")
			case indicators.BandAboveUpper:
				score -= 15
				reasons = append(reasons, "close above the upper Bollinger band")
			}
		}
	}

	if pnlPercent > 30 {
		score -= 10
		reasons = append(reasons, fmt.Sprintf("up %.1f%% from cost, consider taking profits", pnlPercent))
	} else if pnlPercent < -15 {
		score -= 5
		reasons = append(reasons, fmt.Sprintf("down %.1f%% from cost, check the stop", pnlPercent))
	}

	return &Recommendation{
		Action:     actionFor(score),
		Score:      score,
		Confidence: math.Min(math.Abs(score), 100),
		Reasons:    reasons,
	}
}

func actionFor(score float64) string {
	switch {
	case score > buyThreshold:
		return ActionBuy
	case score > addThreshold:
		return ActionAdd
	case score < sellThreshold:
		return ActionSell
	case score < reduceThreshold:
		return ActionReduce
	default:
		return ActionHold
	}
}
