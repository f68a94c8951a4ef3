// Package secrets persists credential material encrypted at rest.
//
// A Store maps (user, scope) pairs to JSON payloads inside a single file.
// The whole mapping is serialised to canonical JSON, sealed with
// AES-256-GCM and written atomically under an advisory file lock, so
// concurrent processes observe either the prior or the new full state.
package secrets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when no payload exists for a (user, scope) pair
	ErrNotFound = errors.New("secret not found")

	// ErrStoreCorrupt is returned when the on-disk file cannot be parsed or
	// fails authentication. The store never silently drops credentials.
	ErrStoreCorrupt = errors.New("secret store corrupt")
)

// envelope is the on-disk file format
type envelope struct {
	Encrypted string    `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// contents is the decrypted in-memory shape: user -> scope -> payload
type contents map[string]map[string]json.RawMessage

// Store is an encrypted blob store backed by a single file
type Store struct {
	path string
	key  []byte
	fl   *flock.Flock
	mu   sync.RWMutex // serialises goroutines of this process; flock covers other processes
	log  zerolog.Logger
}

// NewStore creates a store backed by the given file path. The parent
// directory is created if missing. key must be 32 bytes (see LoadKey).
func NewStore(path string, key []byte, log zerolog.Logger) (*Store, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{
		path: path,
		key:  key,
		fl:   flock.New(path + ".lock"),
		log:  log.With().Str("component", "secrets").Str("file", filepath.Base(path)).Logger(),
	}, nil
}

// Save serialises payload to JSON and persists it under (user, scope).
// The write is atomic and serialised against other writers.
func (s *Store) Save(user, scope string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialise payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock: %w", err)
	}
	defer s.fl.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	if data[user] == nil {
		data[user] = make(map[string]json.RawMessage)
	}
	data[user][scope] = raw

	if err := s.writeLocked(data); err != nil {
		return err
	}
	s.log.Debug().Str("user", user).Str("scope", scope).Msg("Secret saved")
	return nil
}

// Get decrypts the store and unmarshals the payload at (user, scope) into
// out. Returns ErrNotFound when the pair is absent.
func (s *Store) Get(user, scope string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fl.RLock(); err != nil {
		return fmt.Errorf("failed to acquire shared lock: %w", err)
	}
	defer s.fl.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	raw, ok := data[user][scope]
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

// Delete removes the payload at (user, scope). Missing pairs are a no-op.
func (s *Store) Delete(user, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock: %w", err)
	}
	defer s.fl.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := data[user][scope]; !ok {
		return nil
	}
	delete(data[user], scope)
	if len(data[user]) == 0 {
		delete(data, user)
	}
	if err := s.writeLocked(data); err != nil {
		return err
	}
	s.log.Debug().Str("user", user).Str("scope", scope).Msg("Secret deleted")
	return nil
}

// ClearAll wipes the entire store
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock: %w", err)
	}
	defer s.fl.Unlock()

	if err := s.writeLocked(contents{}); err != nil {
		return err
	}
	s.log.Info().Msg("Secret store cleared")
	return nil
}

// readLocked loads and decrypts the file. Caller holds the lock.
// A missing file is an empty store; an unreadable one is ErrStoreCorrupt.
func (s *Store) readLocked() (contents, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return contents{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: bad envelope: %v", ErrStoreCorrupt, err)
	}
	blob, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrStoreCorrupt, err)
	}
	plaintext, err := decrypt(s.key, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	var data contents
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("%w: bad plaintext structure: %v", ErrStoreCorrupt, err)
	}
	return data, nil
}

// writeLocked encrypts data and replaces the file atomically via a temp
// file in the same directory followed by rename. Caller holds the lock.
func (s *Store) writeLocked(data contents) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialise store: %w", err)
	}
	blob, err := encrypt(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt store: %w", err)
	}
	env := envelope{
		Encrypted: base64.StdEncoding.EncodeToString(blob),
		UpdatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialise envelope: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
