// Package regime derives a market risk regime from macro indicator series.
package regime

import (
	"time"
)

// Regime labels the overall market stance
type Regime string

const (
	// RegimeRiskOn - no stress signals active
	RegimeRiskOn Regime = "risk_on"
	// RegimeNeutral - one or two stress signals active
	RegimeNeutral Regime = "neutral"
	// RegimeRiskOff - three stress signals active
	RegimeRiskOff Regime = "risk_off"
	// RegimeHighUncertainty - four or more signals, or a VIX spike
	RegimeHighUncertainty Regime = "high_uncertainty"
)

// Signals holds the boolean stress signals
type Signals struct {
	CreditStress       bool `json:"credit_stress"`
	VIXElevated        bool `json:"vix_elevated"`
	VIXSpike           bool `json:"vix_spike"`
	SPYBelowSMA200     bool `json:"spy_below_sma200"`
	SPYDrawdownAlert   bool `json:"spy_drawdown_alert"`
	YieldCurveInverted bool `json:"yield_curve_inverted"`
}

// Count returns the number of active signals
func (s Signals) Count() int {
	count := 0
	for _, active := range []bool{
		s.CreditStress, s.VIXElevated, s.VIXSpike,
		s.SPYBelowSMA200, s.SPYDrawdownAlert, s.YieldCurveInverted,
	} {
		if active {
			count++
		}
	}
	return count
}

// Readings carries the raw observations behind the signals
type Readings struct {
	VIX         float64 `json:"vix"`
	VIXSMA20    float64 `json:"vix_sma20"`
	HYGLQDRatio float64 `json:"hyg_lqd_ratio"`
	HYGLQDSMA50 float64 `json:"hyg_lqd_sma50"`
	SPYClose    float64 `json:"spy_close"`
	SPYSMA200   float64 `json:"spy_sma200"`
	SPYDrawdown float64 `json:"spy_drawdown"`
	YieldSpread float64 `json:"yield_spread"`
}

// Allocation is the recommended portfolio split for a regime, in percent
type Allocation struct {
	Growth    int `json:"growth"`
	Income    int `json:"income"`
	Defensive int `json:"defensive"`
	Cash      int `json:"cash"`
}

// Snapshot is one full regime assessment
type Snapshot struct {
	AsOf          time.Time  `json:"as_of"`
	Regime        Regime     `json:"regime"`
	StressCount   int        `json:"stress_count"`
	Signals       Signals    `json:"signals"`
	Readings      Readings   `json:"readings"`
	Allocation    Allocation `json:"allocation"`
	MissingSeries []string   `json:"missing_series,omitempty"`
}

// allocations maps each regime to its recommended split
var allocations = map[Regime]Allocation{
	RegimeRiskOn:          {Growth: 70, Income: 15, Defensive: 10, Cash: 5},
	RegimeNeutral:         {Growth: 50, Income: 20, Defensive: 20, Cash: 10},
	RegimeRiskOff:         {Growth: 25, Income: 25, Defensive: 30, Cash: 20},
	RegimeHighUncertainty: {Growth: 10, Income: 20, Defensive: 35, Cash: 35},
}

// RecommendedAllocation returns the fixed allocation for a regime
func RecommendedAllocation(r Regime) Allocation {
	if alloc, ok := allocations[r]; ok {
		return alloc
	}
	return allocations[RegimeNeutral]
}

// Classify maps the signal set to a regime label
func Classify(s Signals) Regime {
	count := s.Count()
	switch {
	case s.VIXSpike || count >= 4:
		return RegimeHighUncertainty
	case count == 3:
		return RegimeRiskOff
	case count >= 1:
		return RegimeNeutral
	default:
		return RegimeRiskOn
	}
}
