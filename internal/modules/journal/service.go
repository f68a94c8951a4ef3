package journal

import (
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

// Service enforces the trade lifecycle on top of the repository. All
// transitions are guarded updates, so concurrent callers cannot move a
// trade twice.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a journal service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "journal").Logger(),
	}
}

// CloseInput is the payload for closing an active trade
type CloseInput struct {
	ExitPrice float64        `json:"exit_price"`
	Fees      float64        `json:"fees"`
	Analysis  *AnalysisInput `json:"analysis,omitempty"`
}

// CreateTrade inserts a new trade in the planned or active state, with an
// optional paired journal entry
func (s *Service) CreateTrade(in CreateTradeInput) (*TradeWithEntry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	status := in.Status
	if status == "" {
		status = StatusPlanned
	}

	trade := &Trade{
		ID:           uuid.NewString(),
		Ticker:       domain.Ticker(in.Ticker),
		Direction:    in.Direction,
		Status:       status,
		EntryPrice:   in.EntryPrice,
		StopLoss:     in.StopLoss,
		TakeProfit:   in.TakeProfit,
		PositionSize: in.PositionSize,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == StatusActive {
		trade.EntryTime = &now
	}

	var entry *Entry
	if in.Journal != nil {
		entry = &Entry{
			TradeID:   trade.ID,
			SetupType: in.Journal.SetupType,
			Thesis:    in.Journal.Thesis,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	err := s.repo.Transaction(func(tx *sql.Tx) error {
		if err := insertTrade(tx, trade); err != nil {
			return err
		}
		if entry != nil {
			return insertEntry(tx, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("trade_id", trade.ID).
		Str("ticker", string(trade.Ticker)).
		Str("status", string(trade.Status)).
		Msg("Trade created")

	return &TradeWithEntry{Trade: *trade, Entry: entry}, nil
}

// GetTrade loads a trade together with its journal entry
func (s *Service) GetTrade(id string) (*TradeWithEntry, error) {
	trade, err := s.repo.GetTrade(id)
	if err != nil {
		return nil, err
	}
	entry, err := s.repo.GetEntry(id)
	if err != nil {
		return nil, err
	}
	return &TradeWithEntry{Trade: *trade, Entry: entry}, nil
}

// ListTrades returns trades most recent first, optionally filtered by status
func (s *Service) ListTrades(status Status, limit int) ([]Trade, error) {
	if status != "" {
		switch status {
		case StatusPlanned, StatusActive, StatusClosed, StatusCancelled:
		default:
			return nil, domain.NewValidationError("status", "unknown status %q", status)
		}
	}
	return s.repo.ListTrades(status, limit)
}

// Activate moves a planned trade to active at the given entry price
func (s *Service) Activate(id string, entryPrice float64) (*Trade, error) {
	if entryPrice <= 0 {
		return nil, domain.NewValidationError("entry_price", "must be positive")
	}

	var activated *Trade
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		trade, err := getTrade(tx, id)
		if err != nil {
			return err
		}
		if trade.Status != StatusPlanned {
			return domain.NewValidationError("status", "cannot activate a %s trade", trade.Status)
		}

		now := time.Now().UTC().Truncate(time.Second)
		trade.Status = StatusActive
		trade.EntryPrice = &entryPrice
		trade.EntryTime = &now
		trade.UpdatedAt = now

		ok, err := updateTrade(tx, trade, StatusPlanned)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewValidationError("status", "trade is no longer planned")
		}
		activated = trade
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("trade_id", id).
		Float64("entry_price", entryPrice).
		Msg("Trade activated")

	return activated, nil
}

// Close moves an active trade to closed, computing P&L and R-multiple in
// the same transaction. Post-trade analysis fields, when supplied, land on
// the journal entry atomically with the close.
func (s *Service) Close(id string, in CloseInput) (*Trade, error) {
	if in.ExitPrice <= 0 {
		return nil, domain.NewValidationError("exit_price", "must be positive")
	}
	if in.Fees < 0 {
		return nil, domain.NewValidationError("fees", "must not be negative")
	}
	if in.Analysis != nil {
		if err := in.Analysis.Validate(); err != nil {
			return nil, err
		}
	}

	var closed *Trade
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		trade, err := getTrade(tx, id)
		if err != nil {
			return err
		}
		if trade.Status != StatusActive {
			return domain.NewValidationError("status", "cannot close a %s trade", trade.Status)
		}

		now := time.Now().UTC().Truncate(time.Second)
		trade.Status = StatusClosed
		trade.ExitPrice = &in.ExitPrice
		trade.ExitTime = &now
		trade.Fees = in.Fees
		trade.UpdatedAt = now
		applyPnL(trade)

		ok, err := updateTrade(tx, trade, StatusActive)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewValidationError("status", "trade is no longer active")
		}

		if in.Analysis != nil {
			if err := upsertAnalysis(tx, id, in.Analysis, now); err != nil {
				return err
			}
		}
		closed = trade
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := s.log.Info().
		Str("trade_id", id).
		Float64("exit_price", in.ExitPrice)
	if closed.NetPnL != nil {
		event = event.Float64("net_pnl", *closed.NetPnL)
	}
	event.Msg("Trade closed")

	return closed, nil
}

// Cancel marks a trade cancelled. Any state can cancel except a trade that
// already is; a closed trade keeps its frozen P&L.
func (s *Service) Cancel(id string) (*Trade, error) {
	var cancelled *Trade
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		trade, err := getTrade(tx, id)
		if err != nil {
			return err
		}
		if trade.Status == StatusCancelled {
			return domain.NewValidationError("status", "trade is already cancelled")
		}

		from := trade.Status
		trade.Status = StatusCancelled
		trade.UpdatedAt = time.Now().UTC().Truncate(time.Second)

		ok, err := updateTrade(tx, trade, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewValidationError("status", "trade changed state concurrently")
		}
		cancelled = trade
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("trade_id", id).Msg("Trade cancelled")
	return cancelled, nil
}

// Delete removes a trade and, through the cascade, its journal entry
func (s *Service) Delete(id string) error {
	if err := s.repo.DeleteTrade(id); err != nil {
		return err
	}
	s.log.Info().Str("trade_id", id).Msg("Trade deleted")
	return nil
}

// Stats aggregates performance over closed trades
func (s *Service) Stats() (*Stats, error) {
	return s.repo.ComputeStats()
}

// applyPnL fills the P&L fields on a closing trade. Gross and net need the
// entry price and position size; the R-multiple additionally needs a
// non-zero risk distance to the stop.
func applyPnL(trade *Trade) {
	if trade.EntryPrice == nil || trade.ExitPrice == nil || trade.PositionSize == nil {
		return
	}

	sign := 1.0
	if trade.Direction == DirectionShort {
		sign = -1.0
	}
	gross := sign * (*trade.ExitPrice - *trade.EntryPrice) * *trade.PositionSize
	net := gross - trade.Fees
	trade.GrossPnL = &gross
	trade.NetPnL = &net

	if trade.StopLoss != nil {
		risk := math.Abs(*trade.EntryPrice-*trade.StopLoss) * *trade.PositionSize
		if risk > 0 {
			r := net / risk
			trade.RMultiple = &r
		}
	}
}
