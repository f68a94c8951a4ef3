package journal

import (
	"fmt"
)

// ComputeStats derives the performance summary from closed trades. Closed
// trades without P&L (no position size recorded) count toward totals but
// not toward the win/loss rates.
func (r *Repository) ComputeStats() (*Stats, error) {
	stats := &Stats{}

	var grossProfit, grossLoss float64
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN net_pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN net_pnl <= 0 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN net_pnl > 0 THEN net_pnl END), 0),
			COALESCE(AVG(CASE WHEN net_pnl <= 0 THEN net_pnl END), 0),
			COALESCE(SUM(net_pnl), 0),
			COALESCE(SUM(fees), 0),
			COALESCE(SUM(CASE WHEN net_pnl > 0 THEN net_pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN net_pnl < 0 THEN -net_pnl ELSE 0 END), 0),
			COALESCE(AVG(r_multiple), 0)
		FROM trades
		WHERE status = 'closed'
	`).Scan(
		&stats.ClosedTrades,
		&stats.Wins,
		&stats.Losses,
		&stats.AvgWin,
		&stats.AvgLoss,
		&stats.TotalNetPnL,
		&stats.TotalFees,
		&grossProfit,
		&grossLoss,
		&stats.AvgRMultiple,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute journal stats: %w", err)
	}

	// AvgLoss is reported as a magnitude
	if stats.AvgLoss < 0 {
		stats.AvgLoss = -stats.AvgLoss
	}

	decided := stats.Wins + stats.Losses
	if decided > 0 {
		stats.WinRate = float64(stats.Wins) / float64(decided)
		lossRate := float64(stats.Losses) / float64(decided)
		stats.Expectancy = stats.WinRate*stats.AvgWin - lossRate*stats.AvgLoss
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossProfit / grossLoss
	}

	bySetup, err := r.breakdown("setup_type")
	if err != nil {
		return nil, err
	}
	byEmotion, err := r.breakdown("emotional_state")
	if err != nil {
		return nil, err
	}
	stats.BySetup = bySetup
	stats.ByEmotion = byEmotion

	return stats, nil
}

// breakdown groups closed trades by one journal entry column. Callers pass
// fixed column names only, never request input.
func (r *Repository) breakdown(column string) ([]BreakdownRow, error) {
	query := fmt.Sprintf(`
		SELECT
			e.%[1]s,
			COUNT(*),
			COALESCE(SUM(CASE WHEN t.net_pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(t.net_pnl), 0),
			COALESCE(AVG(t.r_multiple), 0)
		FROM trades t
		JOIN journal_entries e ON e.trade_id = t.id
		WHERE t.status = 'closed' AND e.%[1]s IS NOT NULL
		GROUP BY e.%[1]s
		ORDER BY e.%[1]s
	`, column)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s breakdown: %w", column, err)
	}
	defer rows.Close()

	var result []BreakdownRow
	for rows.Next() {
		var row BreakdownRow
		if err := rows.Scan(&row.Key, &row.Trades, &row.Wins, &row.TotalNetPnL, &row.AvgRMultiple); err != nil {
			return nil, fmt.Errorf("failed to scan %s breakdown: %w", column, err)
		}
		if row.Trades > 0 {
			row.WinRate = float64(row.Wins) / float64(row.Trades)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s breakdown: %w", column, err)
	}
	return result, nil
}
