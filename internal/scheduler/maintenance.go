package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/database"
)

// maintenanceTimeout bounds one full maintenance pass
const maintenanceTimeout = 5 * time.Minute

// MaintenanceJob runs the daily database maintenance window: integrity
// check, vacuum and WAL truncation on every store.
type MaintenanceJob struct {
	dbs []*database.DB
	log zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job over the given databases
func NewMaintenanceJob(dbs []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		dbs: dbs,
		log: log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance pass. A failing database is reported but
// does not stop maintenance of the others.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	start := time.Now()
	var firstErr error

	for _, db := range j.dbs {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("maintenance of %s: %w", db.Name(), err)
			}
			continue
		}

		if err := db.Vacuum(); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Vacuum failed")
			if firstErr == nil {
				firstErr = err
			}
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL truncate failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	j.log.Info().
		Int("databases", len(j.dbs)).
		Dur("duration", time.Since(start)).
		Msg("Maintenance completed")
	return firstErr
}

// WALCheckpointJob keeps WAL files small between maintenance windows.
// PASSIVE mode never blocks writers.
type WALCheckpointJob struct {
	dbs []*database.DB
	log zerolog.Logger
}

// NewWALCheckpointJob creates an hourly WAL checkpoint job
func NewWALCheckpointJob(dbs []*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		dbs: dbs,
		log: log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checkpoints every database
func (j *WALCheckpointJob) Run() error {
	var firstErr error
	for _, db := range j.dbs {
		if err := db.WALCheckpoint("PASSIVE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
