package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"vantage/internal/database"
	vtesting "vantage/internal/testing"
)

func TestMaintenanceJobRunsCleanly(t *testing.T) {
	journalDB, cleanupJournal := vtesting.NewTestDB(t, "journal")
	defer cleanupJournal()
	cacheDB, cleanupCache := vtesting.NewTestDB(t, "cache")
	defer cleanupCache()

	job := NewMaintenanceJob([]*database.DB{journalDB, cacheDB}, zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestWALCheckpointJobRunsCleanly(t *testing.T) {
	db, cleanup := vtesting.NewTestDB(t, "journal")
	defer cleanup()

	job := NewWALCheckpointJob([]*database.DB{db}, zerolog.Nop())
	assert.Equal(t, "wal_checkpoint", job.Name())
	assert.NoError(t, job.Run())
}
