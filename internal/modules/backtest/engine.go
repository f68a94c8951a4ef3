// Package backtest replays an allocation strategy day by day over
// historical bars, with optional risk-off switching driven by macro
// signals.
package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

// Engine runs backtests
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a backtest engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "backtest").Logger(),
	}
}

// runState is the mutable portfolio state during a replay
type runState struct {
	positions map[domain.Ticker]*Position
	cash      float64
	riskOn    bool
	offStreak int
	onStreak  int

	trades         []TradeRecord
	riskOffPeriods []RiskOffPeriod
	totalFees      float64
	totalDividends float64
	contributions  float64
}

// positionsValue sums open positions at their marked prices
func (s *runState) positionsValue() float64 {
	total := 0.0
	for _, p := range s.positions {
		total += p.Value()
	}
	return total
}

// Run executes the replay. Cancellable at day boundaries.
func (e *Engine) Run(ctx context.Context, cfg Config, market MarketData) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	days := tradingDays(market.Bars, cfg.StartDate, cfg.EndDate)
	if len(days) == 0 {
		return nil, domain.NewValidationError("market_data", "no trading days in range")
	}

	prices := newPriceTable(market.Bars)
	signalsByDay := make(map[int64]SignalSnapshot, len(market.Signals))
	for _, s := range market.Signals {
		signalsByDay[dateKey(s.Date)] = s
	}

	state := &runState{
		positions: make(map[domain.Ticker]*Position),
		cash:      cfg.InitialCash,
		riskOn:    true,
	}

	equity := make([]EquityPoint, 0, len(days))
	monthly := make([]MonthlyValue, 0, len(days)/20+1)

	for i, date := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := dateKey(date)

		// 1. Mark positions to current close
		for ticker, pos := range state.positions {
			if price, ok := prices.at(ticker, day); ok {
				pos.CurrentPrice = price
			}
		}

		// 2. Dividends on their effective date
		if cfg.DividendsEnabled {
			for ticker, pos := range state.positions {
				if div, ok := prices.dividend(ticker, day); ok && pos.Shares > 0 {
					credit := div * pos.Shares
					state.cash += credit
					state.totalDividends += credit
				}
			}
		}

		// 3. Monthly contribution on the first trading day of a new month
		if cfg.MonthlyContribution > 0 && i > 0 && newMonth(days[i-1], date) {
			state.cash += cfg.MonthlyContribution
			state.contributions += cfg.MonthlyContribution
		}

		// 4. Risk-off trigger with anti-whipsaw confirmation
		if cfg.RiskOffEnabled {
			if snap, ok := signalsByDay[day]; ok {
				e.updateRiskOff(state, cfg, snap, date, prices, day)
			}
		}

		// 5. Cadence rebalance; the very first day always rebalances
		if i == 0 || cadenceBoundary(cfg.RebalanceCadence, days[i-1], date) {
			e.rebalance(state, activeAllocation(cfg, state), cfg.Fees, prices, day, date)
		}

		// 6. Equity curve
		positionsValue := state.positionsValue()
		value := state.cash + positionsValue
		equity = append(equity, EquityPoint{
			Date:           date,
			Value:          value,
			Cash:           state.cash,
			PositionsValue: positionsValue,
			RiskOff:        !state.riskOn,
		})
		if i == len(days)-1 || newMonth(date, days[i+1]) {
			monthly = append(monthly, MonthlyValue{Date: date, Value: value})
		}
	}

	result := &Result{
		Config:         cfg,
		EquityCurve:    equity,
		MonthlyValues:  monthly,
		Trades:         state.trades,
		RiskOffPeriods: state.riskOffPeriods,
	}
	result.Metrics = computeMetrics(cfg, state, equity, monthly)

	e.log.Info().
		Time("start", days[0]).
		Time("end", days[len(days)-1]).
		Int("days", len(days)).
		Int("trades", len(state.trades)).
		Float64("final_value", result.Metrics.FinalValue).
		Msg("Backtest complete")

	return result, nil
}

// updateRiskOff advances the anti-whipsaw counters and flips the mode once
// a streak reaches its confirmation length
func (e *Engine) updateRiskOff(state *runState, cfg Config, snap SignalSnapshot, date time.Time, prices *priceTable, day int64) {
	if EvaluateTrigger(cfg.Trigger, snap) {
		state.offStreak++
		state.onStreak = 0
	} else {
		state.onStreak++
		state.offStreak = 0
	}

	switch {
	case state.riskOn && state.offStreak >= cfg.EntryDays:
		state.riskOn = false
		state.riskOffPeriods = append(state.riskOffPeriods, RiskOffPeriod{Start: date})
		e.log.Debug().Time("date", date).Msg("Risk-off confirmed")
		e.rebalance(state, cfg.RiskOffAllocation, cfg.Fees, prices, day, date)

	case !state.riskOn && state.onStreak >= cfg.ExitDays:
		state.riskOn = true
		if n := len(state.riskOffPeriods); n > 0 && state.riskOffPeriods[n-1].End == nil {
			end := date
			state.riskOffPeriods[n-1].End = &end
		}
		e.log.Debug().Time("date", date).Msg("Risk-on restored")
		e.rebalance(state, cfg.Allocation, cfg.Fees, prices, day, date)
	}
}

// activeAllocation picks the allocation matching the current mode
func activeAllocation(cfg Config, state *runState) map[domain.Ticker]float64 {
	if cfg.RiskOffEnabled && !state.riskOn {
		return cfg.RiskOffAllocation
	}
	return cfg.Allocation
}

// rebalance moves the portfolio to the target weights. Sells run before
// buys so freed cash can fund them; buys shrink to available cash and skip
// when the residual is below the dust threshold.
func (e *Engine) rebalance(state *runState, target map[domain.Ticker]float64, fees FeeModel, prices *priceTable, day int64, date time.Time) {
	// Sell holdings that left the target set; sub-threshold remnants are
	// not worth the commission
	for ticker, pos := range state.positions {
		if _, keep := target[ticker]; !keep && pos.CurrentPrice > 0 && pos.Value() > MinTradeValue {
			e.sell(state, ticker, pos.Shares, pos.CurrentPrice, fees, date)
		}
	}

	value := state.cash + state.positionsValue()

	// Deterministic order so runs are reproducible
	tickers := make([]domain.Ticker, 0, len(target))
	for ticker := range target {
		tickers = append(tickers, ticker)
	}
	sort.Slice(tickers, func(i, j int) bool { return tickers[i] < tickers[j] })

	// Sells first
	for _, ticker := range tickers {
		price, ok := prices.at(ticker, day)
		if !ok || price <= 0 {
			continue
		}
		diff := value*target[ticker]/100 - currentValue(state, ticker, price)
		if diff < -MinTradeValue {
			shares := -diff / price
			if pos, held := state.positions[ticker]; held {
				if shares > pos.Shares {
					shares = pos.Shares
				}
				e.sell(state, ticker, shares, price, fees, date)
			}
		}
	}

	// Then buys, shrunk to available cash
	for _, ticker := range tickers {
		price, ok := prices.at(ticker, day)
		if !ok || price <= 0 {
			continue
		}
		diff := value*target[ticker]/100 - currentValue(state, ticker, price)
		if diff <= MinTradeValue {
			continue
		}

		amount := diff
		fee := fees.Cost(amount)
		cost := amount + fee
		if cost > state.cash {
			// Shrink to available cash; the shrunk cost is exactly the
			// remaining balance
			amount = (state.cash - fees.FixedCommission) / (1 + fees.SlippageRate + fees.FXFeeRate)
			if amount < MinTradeValue {
				continue
			}
			fee = state.cash - amount
			cost = state.cash
		}

		shares := amount / price
		state.cash -= cost
		state.totalFees += fee

		pos, held := state.positions[ticker]
		if !held {
			pos = &Position{CurrentPrice: price}
			state.positions[ticker] = pos
		}
		totalShares := pos.Shares + shares
		pos.AvgCost = (pos.AvgCost*pos.Shares + price*shares) / totalShares
		pos.Shares = totalShares
		pos.CurrentPrice = price

		state.trades = append(state.trades, TradeRecord{
			Date:   date,
			Ticker: ticker,
			Side:   SideBuy,
			Shares: shares,
			Price:  price,
			Amount: amount,
			Fees:   fee,
		})
	}
}

// sell disposes shares at price, crediting net proceeds. Residual dust
// positions are deleted.
func (e *Engine) sell(state *runState, ticker domain.Ticker, shares, price float64, fees FeeModel, date time.Time) {
	amount := shares * price
	fee := fees.Cost(amount)
	state.cash += amount - fee
	state.totalFees += fee

	pos := state.positions[ticker]
	pos.Shares -= shares
	if pos.Shares < DustShares {
		delete(state.positions, ticker)
	}

	state.trades = append(state.trades, TradeRecord{
		Date:   date,
		Ticker: ticker,
		Side:   SideSell,
		Shares: shares,
		Price:  price,
		Amount: amount,
		Fees:   fee,
	})
}

func currentValue(state *runState, ticker domain.Ticker, price float64) float64 {
	if pos, held := state.positions[ticker]; held {
		return pos.Shares * price
	}
	return 0
}

// newMonth reports whether cur starts a different calendar month than prev
func newMonth(prev, cur time.Time) bool {
	return cur.Month() != prev.Month() || cur.Year() != prev.Year()
}

// cadenceBoundary reports whether the rebalance cadence rolls over between
// two consecutive trading days
func cadenceBoundary(cadence string, prev, cur time.Time) bool {
	switch cadence {
	case CadenceMonthly:
		return newMonth(prev, cur)
	case CadenceQuarterly:
		return quarterOf(cur) != quarterOf(prev) || cur.Year() != prev.Year()
	case CadenceAnnual:
		return cur.Year() != prev.Year()
	default:
		return false
	}
}

func quarterOf(t time.Time) int {
	return (int(t.Month()) - 1) / 3
}

// tradingDays builds the sorted union of bar dates across all series
// within the configured range
func tradingDays(bars map[domain.Ticker][]domain.HistoricalBar, start, end time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	for _, series := range bars {
		for _, bar := range series {
			if bar.Date.Before(start) || bar.Date.After(end) {
				continue
			}
			key := dateKey(bar.Date)
			if _, ok := seen[key]; !ok {
				seen[key] = bar.Date
			}
		}
	}

	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// priceTable resolves (ticker, day) to a close with carry-forward and to
// the dividend paid that day
type priceTable struct {
	closes    map[domain.Ticker]map[int64]float64
	dividends map[domain.Ticker]map[int64]float64
	ordered   map[domain.Ticker][]int64
}

func newPriceTable(bars map[domain.Ticker][]domain.HistoricalBar) *priceTable {
	t := &priceTable{
		closes:    make(map[domain.Ticker]map[int64]float64, len(bars)),
		dividends: make(map[domain.Ticker]map[int64]float64, len(bars)),
		ordered:   make(map[domain.Ticker][]int64, len(bars)),
	}
	for ticker, series := range bars {
		closes := make(map[int64]float64, len(series))
		divs := make(map[int64]float64)
		order := make([]int64, 0, len(series))
		for _, bar := range series {
			key := dateKey(bar.Date)
			closes[key] = bar.Close
			order = append(order, key)
			if bar.Dividend > 0 {
				divs[key] = bar.Dividend
			}
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
		t.closes[ticker] = closes
		t.dividends[ticker] = divs
		t.ordered[ticker] = order
	}
	return t
}

// at returns the close for the day, falling back to the most recent prior
// close. The second return is false before the series starts.
func (t *priceTable) at(ticker domain.Ticker, day int64) (float64, bool) {
	closes, ok := t.closes[ticker]
	if !ok {
		return 0, false
	}
	if price, ok := closes[day]; ok {
		return price, true
	}

	order := t.ordered[ticker]
	idx := sort.Search(len(order), func(i int) bool { return order[i] > day })
	if idx == 0 {
		return 0, false
	}
	return closes[order[idx-1]], true
}

func (t *priceTable) dividend(ticker domain.Ticker, day int64) (float64, bool) {
	divs, ok := t.dividends[ticker]
	if !ok {
		return 0, false
	}
	d, ok := divs[day]
	return d, ok
}
