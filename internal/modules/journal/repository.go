package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vantage/internal/database"
	"vantage/internal/domain"
)

// tradeColumns is the trades column list, in the order the scan helpers
// expect
const tradeColumns = `id, ticker, direction, status, entry_price, exit_price, stop_loss, take_profit,
	position_size, entry_time, exit_time, gross_pnl, net_pnl, fees, r_multiple, created_at, updated_at`

// entryColumns is the journal_entries column list, in scan order
const entryColumns = `trade_id, setup_type, thesis, execution_quality, emotional_state,
	process_compliance, quality_score, mistakes, lessons, created_at, updated_at`

// Repository persists trades and journal entries in the journal database
type Repository struct {
	db *sql.DB
}

// NewRepository creates a journal repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx so the statement helpers
// work inside and outside transactions
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Transaction runs fn atomically against the journal database
func (r *Repository) Transaction(fn func(tx *sql.Tx) error) error {
	return database.WithTransaction(r.db, fn)
}

// GetTrade loads one trade by id
func (r *Repository) GetTrade(id string) (*Trade, error) {
	return getTrade(r.db, id)
}

// GetEntry loads the journal entry for a trade, nil when the trade has none
func (r *Repository) GetEntry(tradeID string) (*Entry, error) {
	return getEntry(r.db, tradeID)
}

// ListTrades returns trades most recent first, optionally filtered by
// status. A non-positive limit falls back to 50.
func (r *Repository) ListTrades(status Status, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + tradeColumns + ` FROM trades`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// DeleteTrade removes a trade; the paired journal entry goes with it
// through the schema cascade
func (r *Repository) DeleteTrade(id string) error {
	res, err := r.db.Exec(`DELETE FROM trades WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "trade", ID: id}
	}
	return nil
}

func getTrade(q execer, id string) (*Trade, error) {
	row := q.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "trade", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &trade, nil
}

func getEntry(q execer, tradeID string) (*Entry, error) {
	row := q.QueryRow(`SELECT `+entryColumns+` FROM journal_entries WHERE trade_id = ?`, tradeID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return &entry, nil
}

func insertTrade(q execer, trade *Trade) error {
	_, err := q.Exec(`
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID,
		string(trade.Ticker),
		string(trade.Direction),
		string(trade.Status),
		nullFloat(trade.EntryPrice),
		nullFloat(trade.ExitPrice),
		nullFloat(trade.StopLoss),
		nullFloat(trade.TakeProfit),
		nullFloat(trade.PositionSize),
		nullTime(trade.EntryTime),
		nullTime(trade.ExitTime),
		nullFloat(trade.GrossPnL),
		nullFloat(trade.NetPnL),
		trade.Fees,
		nullFloat(trade.RMultiple),
		trade.CreatedAt.Unix(),
		trade.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func insertEntry(q execer, entry *Entry) error {
	_, err := q.Exec(`
		INSERT INTO journal_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.TradeID,
		nullString(entry.SetupType),
		nullString(entry.Thesis),
		nullString(entry.ExecutionQuality),
		nullString(entry.EmotionalState),
		nullBool(entry.ProcessCompliance),
		nullInt(entry.QualityScore),
		nullString(entry.Mistakes),
		nullString(entry.Lessons),
		entry.CreatedAt.Unix(),
		entry.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// updateTrade writes the full mutable row, guarded on the expected current
// status. Returns false when the trade was not in that status, which keeps
// lifecycle transitions atomic under concurrent writers.
func updateTrade(q execer, trade *Trade, from Status) (bool, error) {
	res, err := q.Exec(`
		UPDATE trades SET
			status = ?, entry_price = ?, exit_price = ?, stop_loss = ?, take_profit = ?,
			position_size = ?, entry_time = ?, exit_time = ?, gross_pnl = ?, net_pnl = ?,
			fees = ?, r_multiple = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(trade.Status),
		nullFloat(trade.EntryPrice),
		nullFloat(trade.ExitPrice),
		nullFloat(trade.StopLoss),
		nullFloat(trade.TakeProfit),
		nullFloat(trade.PositionSize),
		nullTime(trade.EntryTime),
		nullTime(trade.ExitTime),
		nullFloat(trade.GrossPnL),
		nullFloat(trade.NetPnL),
		trade.Fees,
		nullFloat(trade.RMultiple),
		trade.UpdatedAt.Unix(),
		trade.ID,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update trade: %w", err)
	}
	return n > 0, nil
}

// upsertAnalysis writes the post-trade fields onto the journal entry,
// creating the entry when the trade was opened without one
func upsertAnalysis(q execer, tradeID string, in *AnalysisInput, now time.Time) error {
	_, err := q.Exec(`
		INSERT INTO journal_entries
			(trade_id, execution_quality, emotional_state, process_compliance,
			 quality_score, mistakes, lessons, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			execution_quality = excluded.execution_quality,
			emotional_state = excluded.emotional_state,
			process_compliance = excluded.process_compliance,
			quality_score = excluded.quality_score,
			mistakes = excluded.mistakes,
			lessons = excluded.lessons,
			updated_at = excluded.updated_at
	`,
		tradeID,
		nullString(in.ExecutionQuality),
		nullString(in.EmotionalState),
		nullBool(in.ProcessCompliance),
		nullInt(in.QualityScore),
		nullString(in.Mistakes),
		nullString(in.Lessons),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	return nil
}

func scanTrade(s scanner) (Trade, error) {
	var trade Trade
	var ticker, direction, status string
	var entryPrice, exitPrice, stopLoss, takeProfit, positionSize sql.NullFloat64
	var grossPnL, netPnL, rMultiple sql.NullFloat64
	var entryTime, exitTime sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&trade.ID,
		&ticker,
		&direction,
		&status,
		&entryPrice,
		&exitPrice,
		&stopLoss,
		&takeProfit,
		&positionSize,
		&entryTime,
		&exitTime,
		&grossPnL,
		&netPnL,
		&trade.Fees,
		&rMultiple,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return trade, err
	}

	trade.Ticker = domain.Ticker(ticker)
	trade.Direction = Direction(direction)
	trade.Status = Status(status)
	trade.EntryPrice = floatPtr(entryPrice)
	trade.ExitPrice = floatPtr(exitPrice)
	trade.StopLoss = floatPtr(stopLoss)
	trade.TakeProfit = floatPtr(takeProfit)
	trade.PositionSize = floatPtr(positionSize)
	trade.EntryTime = timePtr(entryTime)
	trade.ExitTime = timePtr(exitTime)
	trade.GrossPnL = floatPtr(grossPnL)
	trade.NetPnL = floatPtr(netPnL)
	trade.RMultiple = floatPtr(rMultiple)
	trade.CreatedAt = time.Unix(createdAt, 0).UTC()
	trade.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return trade, nil
}

func scanEntry(s scanner) (Entry, error) {
	var entry Entry
	var setupType, thesis, executionQuality, emotionalState, mistakes, lessons sql.NullString
	var processCompliance sql.NullBool
	var qualityScore sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&entry.TradeID,
		&setupType,
		&thesis,
		&executionQuality,
		&emotionalState,
		&processCompliance,
		&qualityScore,
		&mistakes,
		&lessons,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return entry, err
	}

	entry.SetupType = setupType.String
	entry.Thesis = thesis.String
	entry.ExecutionQuality = executionQuality.String
	entry.EmotionalState = emotionalState.String
	if processCompliance.Valid {
		v := processCompliance.Bool
		entry.ProcessCompliance = &v
	}
	if qualityScore.Valid {
		v := int(qualityScore.Int64)
		entry.QualityScore = &v
	}
	entry.Mistakes = mistakes.String
	entry.Lessons = lessons.String
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()
	entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return entry, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
