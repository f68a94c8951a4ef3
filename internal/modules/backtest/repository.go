package backtest

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vantage/internal/domain"
)

// StoredRun is one persisted backtest, config and metrics round-tripped
// through JSON
type StoredRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Config     Config    `json:"config"`
	Metrics    Metrics   `json:"metrics"`
}

// Repository persists completed runs to the backtest_runs table
type Repository struct {
	db *sql.DB
}

// NewRepository creates a backtest repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveRun stores a completed run and returns its assigned id
func (r *Repository) SaveRun(name string, startedAt, finishedAt time.Time, cfg Config, metrics Metrics) (int64, error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode config: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metrics: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (name, started_at, finished_at, config_json, metrics_json)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.Exec(query, name, startedAt.Unix(), finishedAt.Unix(), string(configJSON), string(metricsJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to save backtest run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read backtest run id: %w", err)
	}
	return id, nil
}

// GetRun loads one stored run by id
func (r *Repository) GetRun(id int64) (*StoredRun, error) {
	query := `
		SELECT id, name, started_at, finished_at, config_json, metrics_json
		FROM backtest_runs WHERE id = ?
	`
	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "backtest run", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest run %d: %w", id, err)
	}
	return run, nil
}

// ListRuns returns stored runs, most recent first
func (r *Repository) ListRuns(limit int) ([]*StoredRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, started_at, finished_at, config_json, metrics_json
		FROM backtest_runs ORDER BY finished_at DESC, id DESC LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []*StoredRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a stored run
func (r *Repository) DeleteRun(id int64) error {
	res, err := r.db.Exec(`DELETE FROM backtest_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest run %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Entity: "backtest run", ID: fmt.Sprintf("%d", id)}
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*StoredRun, error) {
	var (
		run         StoredRun
		startedAt   int64
		finishedAt  int64
		configJSON  string
		metricsJSON string
	)
	if err := s.Scan(&run.ID, &run.Name, &startedAt, &finishedAt, &configJSON, &metricsJSON); err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.FinishedAt = time.Unix(finishedAt, 0).UTC()
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &run.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return &run, nil
}
