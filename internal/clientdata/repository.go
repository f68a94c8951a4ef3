// Package clientdata provides persistent caching for upstream API payloads.
// Entries are msgpack-encoded blobs in a single table, namespaced by bucket
// and carrying an expiry timestamp for cache-first behaviour.
package clientdata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Buckets namespace cached payloads by kind
const (
	BucketQuote      = "quote"
	BucketMetadata   = "metadata"
	BucketHistorical = "historical"
)

// AllBuckets lists every bucket for stats and cleanup operations
var AllBuckets = []string{BucketQuote, BucketMetadata, BucketHistorical}

// Repository provides cache operations over the cache_entries table
type Repository struct {
	db *sql.DB
}

// NewRepository creates a client data repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store saves value under (bucket, key) with expiry now + ttl. Upserts.
func (r *Repository) Store(bucket, key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO cache_entries (bucket, key, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err = r.db.Exec(query, bucket, key, payload, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetFresh decodes the payload at (bucket, key) into out when it exists and
// has not expired. Returns false when absent or stale.
func (r *Repository) GetFresh(bucket, key string, out interface{}) (bool, error) {
	query := `SELECT payload FROM cache_entries WHERE bucket = ? AND key = ? AND expires_at > ?`

	var payload []byte
	err := r.db.QueryRow(query, bucket, key, time.Now().Unix()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s/%s: %w", bucket, key, err)
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// GetStale decodes the payload at (bucket, key) regardless of expiry.
// Stale data is better than no data when the upstream is down.
func (r *Repository) GetStale(bucket, key string, out interface{}) (bool, error) {
	query := `SELECT payload FROM cache_entries WHERE bucket = ? AND key = ?`

	var payload []byte
	err := r.db.QueryRow(query, bucket, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s/%s: %w", bucket, key, err)
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// Delete removes a single entry. Missing entries are a no-op.
func (r *Repository) Delete(bucket, key string) error {
	_, err := r.db.Exec(`DELETE FROM cache_entries WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeleteExpired removes all expired rows in a bucket and reports the count
func (r *Repository) DeleteExpired(bucket string) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM cache_entries WHERE bucket = ? AND expires_at < ?`,
		bucket, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries from %s: %w", bucket, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", bucket, err)
	}
	return deleted, nil
}

// DeleteAllExpired removes expired entries from every bucket
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)
	for _, bucket := range AllBuckets {
		deleted, err := r.DeleteExpired(bucket)
		if err != nil {
			return results, err
		}
		results[bucket] = deleted
	}
	return results, nil
}

// Count returns the number of entries in a bucket
func (r *Repository) Count(bucket string) (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE bucket = ?`, bucket).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries in %s: %w", bucket, err)
	}
	return count, nil
}
