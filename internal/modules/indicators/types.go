package indicators

import (
	"time"

	"vantage/internal/domain"
)

// Signal labels for the RSI reading
const (
	RSIStrongOverbought = "strong_overbought"
	RSIOverbought       = "overbought"
	RSINeutral          = "neutral"
	RSIOversold         = "oversold"
	RSIStrongOversold   = "strong_oversold"
)

// Trend labels shared by MACD and the moving-average stack
const (
	TrendBullish         = "bullish"
	TrendBearish         = "bearish"
	TrendNeutral         = "neutral"
	TrendUptrend         = "uptrend"
	TrendStrongUptrend   = "strong_uptrend"
	TrendDowntrend       = "downtrend"
	TrendStrongDowntrend = "strong_downtrend"
	TrendSideways        = "sideways"
)

// Bollinger position labels
const (
	BandAboveUpper = "above_upper"
	BandNearUpper  = "near_upper"
	BandMiddle     = "middle"
	BandNearLower  = "near_lower"
	BandBelowLower = "below_lower"
)

// Aggregate signal labels
const (
	SignalStrongBuy  = "STRONG_BUY"
	SignalBuy        = "BUY"
	SignalNeutral    = "NEUTRAL"
	SignalSell       = "SELL"
	SignalStrongSell = "STRONG_SELL"
)

// OBV direction labels
const (
	OBVRising  = "rising"
	OBVFalling = "falling"
	OBVFlat    = "flat"
)

// RSIResult is the Wilder RSI reading with its label
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"`
}

// MACDResult holds the MACD line, signal line and histogram
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Trend     string  `json:"trend"`
}

// BollingerResult holds the 20-period bands plus derived measures.
// PercentB is (price − lower) / (upper − lower), unclamped: values outside
// [0,1] mean the close sits outside the bands.
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
	PercentB  float64 `json:"percent_b"`
	Position  string  `json:"position"`
}

// MovingAveragesResult holds the MA stack. Longer averages are nil when the
// series is too short for them.
type MovingAveragesResult struct {
	SMA20       *float64 `json:"sma20,omitempty"`
	SMA50       *float64 `json:"sma50,omitempty"`
	SMA200      *float64 `json:"sma200,omitempty"`
	EMA12       *float64 `json:"ema12,omitempty"`
	EMA26       *float64 `json:"ema26,omitempty"`
	Trend       string   `json:"trend"`
	GoldenCross bool     `json:"golden_cross"`
}

// ATRResult is the average true range in absolute and relative terms
type ATRResult struct {
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
}

// VolumeResult compares current volume against its moving averages and
// tracks on-balance volume direction
type VolumeResult struct {
	Current       int64   `json:"current"`
	SMA20         float64 `json:"sma20"`
	SMA50         float64 `json:"sma50"`
	ChangePercent float64 `json:"change_percent"`
	OBVDirection  string  `json:"obv_direction"`
	Confirmation  bool    `json:"confirmation"`
}

// SignalResult is the weighted aggregate of all indicator groups.
// Score is in [−2, +2]; Components holds each group's unweighted vote.
type SignalResult struct {
	Components map[string]float64 `json:"components"`
	Label      string             `json:"label"`
	Score      float64            `json:"score"`
}

// TechnicalIndicators is the full indicator set for one ticker at one point
// in time
type TechnicalIndicators struct {
	CalculatedAt   time.Time             `json:"calculated_at"`
	Ticker         domain.Ticker         `json:"ticker"`
	RSI            *RSIResult            `json:"rsi,omitempty"`
	MACD           *MACDResult           `json:"macd,omitempty"`
	Bollinger      *BollingerResult      `json:"bollinger,omitempty"`
	MovingAverages *MovingAveragesResult `json:"moving_averages,omitempty"`
	ATR            *ATRResult            `json:"atr,omitempty"`
	Volume         *VolumeResult         `json:"volume,omitempty"`
	Signal         SignalResult          `json:"signal"`
	Close          float64               `json:"close"`
	BarCount       int                   `json:"bar_count"`
}
