package backtest

import (
	"time"

	"vantage/internal/domain"
)

// Rebalance cadences
const (
	CadenceMonthly   = "monthly"
	CadenceQuarterly = "quarterly"
	CadenceAnnual    = "annual"
)

// Risk-off triggers
const (
	TriggerHYGLQDBelowSMA50 = "hyg_lqd_below_sma50"
	TriggerVIXAbove25       = "vix_above_25"
	TriggerSPYBelowSMA200   = "spy_below_sma200"
	TriggerCombined         = "combined"
)

// DustShares is the threshold below which a position is deleted after a sell
const DustShares = 1e-4

// MinTradeValue skips rebalance trades smaller than this to avoid dust
const MinTradeValue = 1.0

// FeeModel prices a single trade: amount×slippage + amount×fx + fixed
type FeeModel struct {
	SlippageRate    float64 `json:"slippage_rate"`
	FXFeeRate       float64 `json:"fx_fee_rate"`
	FixedCommission float64 `json:"fixed_commission"`
}

// Cost returns the fee for trading amount currency units
func (f FeeModel) Cost(amount float64) float64 {
	return amount*f.SlippageRate + amount*f.FXFeeRate + f.FixedCommission
}

// Config describes one backtest run. Allocations are percent weights that
// should sum to 100.
type Config struct {
	StartDate           time.Time                 `json:"start_date"`
	EndDate             time.Time                 `json:"end_date"`
	Allocation          map[domain.Ticker]float64 `json:"allocation"`
	RiskOffAllocation   map[domain.Ticker]float64 `json:"risk_off_allocation,omitempty"`
	RebalanceCadence    string                    `json:"rebalance_cadence"`
	Trigger             string                    `json:"trigger,omitempty"`
	Fees                FeeModel                  `json:"fees"`
	InitialCash         float64                   `json:"initial_cash"`
	MonthlyContribution float64                   `json:"monthly_contribution"`
	EntryDays           int                       `json:"entry_days"`
	ExitDays            int                       `json:"exit_days"`
	RiskOffEnabled      bool                      `json:"risk_off_enabled"`
	DividendsEnabled    bool                      `json:"dividends_enabled"`
}

// Validate checks the configuration before a run
func (c Config) Validate() error {
	if !c.EndDate.After(c.StartDate) {
		return domain.NewValidationError("end_date", "must be after start_date")
	}
	if c.InitialCash <= 0 {
		return domain.NewValidationError("initial_cash", "must be positive, got %v", c.InitialCash)
	}
	if len(c.Allocation) == 0 {
		return domain.NewValidationError("allocation", "at least one ticker required")
	}
	switch c.RebalanceCadence {
	case CadenceMonthly, CadenceQuarterly, CadenceAnnual:
	default:
		return domain.NewValidationError("rebalance_cadence", "must be monthly, quarterly or annual, got %q", c.RebalanceCadence)
	}
	if c.RiskOffEnabled {
		switch c.Trigger {
		case TriggerHYGLQDBelowSMA50, TriggerVIXAbove25, TriggerSPYBelowSMA200, TriggerCombined:
		default:
			return domain.NewValidationError("trigger", "unknown trigger %q", c.Trigger)
		}
		if len(c.RiskOffAllocation) == 0 {
			return domain.NewValidationError("risk_off_allocation", "required when risk_off_enabled")
		}
		if c.EntryDays < 1 || c.ExitDays < 1 {
			return domain.NewValidationError("entry_days", "entry_days and exit_days must be at least 1")
		}
	}
	return nil
}

// SignalSnapshot is one day of macro observations feeding the risk-off
// trigger. YieldSpread is the 10Y−3M proxy.
type SignalSnapshot struct {
	Date        time.Time `json:"date"`
	HYGLQDRatio float64   `json:"hyg_lqd_ratio"`
	HYGLQDSMA50 float64   `json:"hyg_lqd_sma50"`
	VIX         float64   `json:"vix"`
	VIXSMA20    float64   `json:"vix_sma20"`
	SPYClose    float64   `json:"spy_close"`
	SPYSMA200   float64   `json:"spy_sma200"`
	SPYDrawdown float64   `json:"spy_drawdown"`
	YieldSpread float64   `json:"yield_spread"`
	HasHYGLQD   bool      `json:"-"`
	HasVIX      bool      `json:"-"`
	HasSPY      bool      `json:"-"`
	HasDrawdown bool      `json:"-"`
}

// MarketData is the full input set for a run
type MarketData struct {
	Bars    map[domain.Ticker][]domain.HistoricalBar
	Signals []SignalSnapshot
}

// Position is one open holding during the replay
type Position struct {
	Shares       float64 `json:"shares"`
	AvgCost      float64 `json:"avg_cost"`
	CurrentPrice float64 `json:"current_price"`
}

// Value marks the position at its current price
func (p Position) Value() float64 {
	return p.Shares * p.CurrentPrice
}

// TradeSide labels replay trades
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TradeRecord is one executed rebalance trade
type TradeRecord struct {
	Date   time.Time     `json:"date"`
	Ticker domain.Ticker `json:"ticker"`
	Side   string        `json:"side"`
	Shares float64       `json:"shares"`
	Price  float64       `json:"price"`
	Amount float64       `json:"amount"`
	Fees   float64       `json:"fees"`
}

// EquityPoint is one day of the equity curve. Value must equal
// Cash + PositionsValue.
type EquityPoint struct {
	Date           time.Time `json:"date"`
	Value          float64   `json:"value"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	RiskOff        bool      `json:"risk_off"`
}

// RiskOffPeriod records one confirmed risk-off stretch. End is nil while
// the period is still open at the end of the run.
type RiskOffPeriod struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// MonthlyValue is the portfolio value at a month boundary
type MonthlyValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Metrics summarises a finished run
type Metrics struct {
	FinalValue          float64 `json:"final_value"`
	TotalReturn         float64 `json:"total_return"`
	CAGR                float64 `json:"cagr"`
	Volatility          float64 `json:"volatility"`
	Sharpe              float64 `json:"sharpe"`
	Sortino             float64 `json:"sortino"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDays     int     `json:"max_drawdown_days"`
	TimeInRiskOff       float64 `json:"time_in_risk_off"`
	TotalFees           float64 `json:"total_fees"`
	TotalContributions  float64 `json:"total_contributions"`
	TotalDividends      float64 `json:"total_dividends"`
	TradeCount          int     `json:"trade_count"`
	RiskOffPeriodsCount int     `json:"risk_off_periods_count"`
}

// Result is the full output of a run
type Result struct {
	Config         Config          `json:"config"`
	Metrics        Metrics         `json:"metrics"`
	EquityCurve    []EquityPoint   `json:"equity_curve"`
	MonthlyValues  []MonthlyValue  `json:"monthly_values"`
	Trades         []TradeRecord   `json:"trades"`
	RiskOffPeriods []RiskOffPeriod `json:"risk_off_periods"`
}
