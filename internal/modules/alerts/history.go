package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxHistoryEntries caps the on-disk signal log. The oldest entries are
// dropped once the cap is reached.
const maxHistoryEntries = 500

// HistoryStore persists emitted signals as a plain JSON array, oldest
// first. Only the watcher writes; HTTP handlers read.
type HistoryStore struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
}

// NewHistoryStore creates a store backed by the given file path
func NewHistoryStore(path string, log zerolog.Logger) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &HistoryStore{
		path: path,
		log:  log.With().Str("component", "alerts").Str("file", filepath.Base(path)).Logger(),
	}, nil
}

// Append records a signal, trimming the oldest entries beyond the cap
func (h *HistoryStore) Append(sig Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.readLocked()
	entries = append(entries, sig)
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	return h.writeLocked(entries)
}

// Recent returns up to limit signals, newest first. limit <= 0 returns all
// retained entries.
func (h *HistoryStore) Recent(limit int) []Signal {
	h.mu.Lock()
	entries := h.readLocked()
	h.mu.Unlock()

	out := make([]Signal, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Stats summarises retained signals relative to now
func (h *HistoryStore) Stats(now time.Time) *Stats {
	h.mu.Lock()
	entries := h.readLocked()
	h.mu.Unlock()
	return computeStats(entries, now)
}

// readLocked loads the file. Missing or unreadable history is an empty
// log: unlike config, history is a rolling record and losing it only costs
// dedup context.
func (h *HistoryStore) readLocked() []Signal {
	raw, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read signal history, starting empty")
		return nil
	}

	var entries []Signal
	if err := json.Unmarshal(raw, &entries); err != nil {
		h.log.Warn().Err(err).Msg("Signal history corrupt, starting empty")
		return nil
	}
	return entries
}

func (h *HistoryStore) writeLocked(entries []Signal) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialise signal history: %w", err)
	}
	return writeFileAtomic(h.path, raw)
}
