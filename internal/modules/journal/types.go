// Package journal stores trades and their journal entries, enforcing the
// trade lifecycle and deriving performance statistics from closed trades.
package journal

import (
	"time"

	"vantage/internal/domain"
)

// Direction is the trade side
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Status is the trade lifecycle state. Trades move planned -> active ->
// closed, or from any state to cancelled.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Trade is one journaled trade. Optional fields stay nil until the
// lifecycle step that sets them; closing freezes the P&L fields.
type Trade struct {
	ID           string        `json:"id"`
	Ticker       domain.Ticker `json:"ticker"`
	Direction    Direction     `json:"direction"`
	Status       Status        `json:"status"`
	EntryPrice   *float64      `json:"entry_price,omitempty"`
	ExitPrice    *float64      `json:"exit_price,omitempty"`
	StopLoss     *float64      `json:"stop_loss,omitempty"`
	TakeProfit   *float64      `json:"take_profit,omitempty"`
	PositionSize *float64      `json:"position_size,omitempty"`
	EntryTime    *time.Time    `json:"entry_time,omitempty"`
	ExitTime     *time.Time    `json:"exit_time,omitempty"`
	GrossPnL     *float64      `json:"gross_pnl,omitempty"`
	NetPnL       *float64      `json:"net_pnl,omitempty"`
	Fees         float64       `json:"fees"`
	RMultiple    *float64      `json:"r_multiple,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Entry is the journal record paired one-to-one with a trade. The
// pre-trade fields arrive at creation, the post-trade analysis at close.
// It is deleted with its trade.
type Entry struct {
	TradeID           string    `json:"trade_id"`
	SetupType         string    `json:"setup_type,omitempty"`
	Thesis            string    `json:"thesis,omitempty"`
	ExecutionQuality  string    `json:"execution_quality,omitempty"`
	EmotionalState    string    `json:"emotional_state,omitempty"`
	ProcessCompliance *bool     `json:"process_compliance,omitempty"`
	QualityScore      *int      `json:"quality_score,omitempty"`
	Mistakes          string    `json:"mistakes,omitempty"`
	Lessons           string    `json:"lessons,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TradeWithEntry bundles a trade with its journal entry, nil when the
// trade was created without one
type TradeWithEntry struct {
	Trade Trade  `json:"trade"`
	Entry *Entry `json:"entry,omitempty"`
}

// CreateTradeInput is the payload for opening a new journal trade
type CreateTradeInput struct {
	Ticker       string      `json:"ticker"`
	Direction    Direction   `json:"direction"`
	Status       Status      `json:"status,omitempty"`
	EntryPrice   *float64    `json:"entry_price,omitempty"`
	StopLoss     *float64    `json:"stop_loss,omitempty"`
	TakeProfit   *float64    `json:"take_profit,omitempty"`
	PositionSize *float64    `json:"position_size,omitempty"`
	Journal      *EntryInput `json:"journal,omitempty"`
}

// EntryInput carries the pre-trade journal fields
type EntryInput struct {
	SetupType string `json:"setup_type,omitempty"`
	Thesis    string `json:"thesis,omitempty"`
}

// AnalysisInput carries the post-trade journal fields, applied when the
// trade closes
type AnalysisInput struct {
	ExecutionQuality  string `json:"execution_quality,omitempty"`
	EmotionalState    string `json:"emotional_state,omitempty"`
	ProcessCompliance *bool  `json:"process_compliance,omitempty"`
	QualityScore      *int   `json:"quality_score,omitempty"`
	Mistakes          string `json:"mistakes,omitempty"`
	Lessons           string `json:"lessons,omitempty"`
}

// Validate checks a create payload. An omitted status defaults to planned;
// a trade created directly in the active state needs its entry price.
func (in *CreateTradeInput) Validate() error {
	if in.Ticker == "" {
		return domain.NewValidationError("ticker", "must not be empty")
	}
	if in.Direction != DirectionLong && in.Direction != DirectionShort {
		return domain.NewValidationError("direction", "must be long or short, got %q", in.Direction)
	}
	switch in.Status {
	case "", StatusPlanned, StatusActive:
	default:
		return domain.NewValidationError("status", "new trades start planned or active, got %q", in.Status)
	}
	if in.Status == StatusActive && (in.EntryPrice == nil || *in.EntryPrice <= 0) {
		return domain.NewValidationError("entry_price", "required for an active trade")
	}
	positives := []struct {
		field string
		value *float64
	}{
		{"entry_price", in.EntryPrice},
		{"stop_loss", in.StopLoss},
		{"take_profit", in.TakeProfit},
		{"position_size", in.PositionSize},
	}
	for _, p := range positives {
		if p.value != nil && *p.value <= 0 {
			return domain.NewValidationError(p.field, "must be positive")
		}
	}
	return nil
}

// Validate checks the post-trade analysis fields
func (in *AnalysisInput) Validate() error {
	if in.QualityScore != nil && (*in.QualityScore < 1 || *in.QualityScore > 10) {
		return domain.NewValidationError("quality_score", "must be between 1 and 10, got %d", *in.QualityScore)
	}
	return nil
}

// Stats aggregates performance over closed trades
type Stats struct {
	ClosedTrades int     `json:"closed_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	TotalNetPnL  float64 `json:"total_net_pnl"`
	TotalFees    float64 `json:"total_fees"`
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	AvgRMultiple float64 `json:"avg_r_multiple"`

	BySetup   []BreakdownRow `json:"by_setup,omitempty"`
	ByEmotion []BreakdownRow `json:"by_emotion,omitempty"`
}

// BreakdownRow is one group of the per-setup or per-emotion stats
type BreakdownRow struct {
	Key          string  `json:"key"`
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
	TotalNetPnL  float64 `json:"total_net_pnl"`
	AvgRMultiple float64 `json:"avg_r_multiple"`
}
