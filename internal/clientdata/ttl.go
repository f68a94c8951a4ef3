package clientdata

import "time"

// TTLs per payload kind. Added to time.Now() when storing.
const (
	// Quotes go stale almost immediately; the cache only absorbs bursts
	// of requests for the same ticker.
	TTLQuote = 30 * time.Second

	// Daily bars only move after the close
	TTLHistorical = 15 * time.Minute

	// Instrument metadata is effectively static
	TTLMetadata = 24 * time.Hour
)
