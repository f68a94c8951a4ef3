package clientdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vtesting "vantage/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, cleanup := vtesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return db.Conn()
}

type samplePayload struct {
	Name  string  `msgpack:"name"`
	Price float64 `msgpack:"price"`
	Count int     `msgpack:"count"`
}

func TestStoreAndGetFresh(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	in := samplePayload{Name: "Apple Inc.", Price: 123.45, Count: 3}
	require.NoError(t, repo.Store(BucketQuote, "AAPL", in, time.Minute))

	var out samplePayload
	found, err := repo.GetFresh(BucketQuote, "AAPL", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetFreshMissingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var out samplePayload
	found, err := repo.GetFresh(BucketQuote, "NOPE", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetFreshExpiredEntry(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	in := samplePayload{Name: "stale", Price: 1}
	require.NoError(t, repo.Store(BucketMetadata, "MSFT", in, -time.Minute))

	var out samplePayload
	found, err := repo.GetFresh(BucketMetadata, "MSFT", &out)
	require.NoError(t, err)
	assert.False(t, found, "expired entries must not be returned as fresh")

	// Stale read still sees it
	found, err = repo.GetStale(BucketMetadata, "MSFT", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "stale", out.Name)
}

func TestStoreUpserts(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(BucketQuote, "AAPL", samplePayload{Price: 100}, time.Minute))
	require.NoError(t, repo.Store(BucketQuote, "AAPL", samplePayload{Price: 200}, time.Minute))

	var out samplePayload
	found, err := repo.GetFresh(BucketQuote, "AAPL", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 200.0, out.Price)

	count, err := repo.Count(BucketQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBucketsAreIsolated(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(BucketQuote, "AAPL", samplePayload{Price: 1}, time.Minute))
	require.NoError(t, repo.Store(BucketMetadata, "AAPL", samplePayload{Price: 2}, time.Minute))

	var out samplePayload
	found, err := repo.GetFresh(BucketQuote, "AAPL", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1.0, out.Price)

	found, err = repo.GetFresh(BucketMetadata, "AAPL", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, out.Price)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(BucketQuote, "AAPL", samplePayload{}, time.Minute))
	require.NoError(t, repo.Delete(BucketQuote, "AAPL"))

	var out samplePayload
	found, err := repo.GetStale(BucketQuote, "AAPL", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing key is fine
	require.NoError(t, repo.Delete(BucketQuote, "AAPL"))
}

func TestDeleteExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(BucketHistorical, "OLD", samplePayload{}, -time.Hour))
	require.NoError(t, repo.Store(BucketHistorical, "FRESH", samplePayload{}, time.Hour))

	deleted, err := repo.DeleteExpired(BucketHistorical)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := repo.Count(BucketHistorical)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(BucketQuote, "A", samplePayload{}, -time.Minute))
	require.NoError(t, repo.Store(BucketMetadata, "B", samplePayload{}, -time.Minute))
	require.NoError(t, repo.Store(BucketHistorical, "C", samplePayload{}, time.Minute))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[BucketQuote])
	assert.Equal(t, int64(1), results[BucketMetadata])
	assert.Equal(t, int64(0), results[BucketHistorical])
}
