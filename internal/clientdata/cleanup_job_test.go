package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	job := NewCleanupJob(repo, zerolog.Nop())

	assert.Equal(t, "cache_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	job := NewCleanupJob(repo, zerolog.Nop())

	require.NoError(t, repo.Store(BucketQuote, "EXPIRED", samplePayload{}, -time.Hour))
	require.NoError(t, repo.Store(BucketQuote, "FRESH", samplePayload{}, time.Hour))

	require.NoError(t, job.Run())

	count, err := repo.Count(BucketQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCleanupJobRunEmptyCache(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	job := NewCleanupJob(repo, zerolog.Nop())

	require.NoError(t, job.Run())
}
