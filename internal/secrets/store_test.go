package secrets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := LoadKey("test-passphrase")
	require.NoError(t, err)
	s, err := NewStore(filepath.Join(t.TempDir(), "tokens.json"), key, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestLoadKey(t *testing.T) {
	t.Run("base64 32 bytes used as-is", func(t *testing.T) {
		raw := make([]byte, 32)
		for i := range raw {
			raw[i] = byte(i)
		}
		key, err := LoadKey(base64.StdEncoding.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, key)
	})

	t.Run("passphrase stretched to 32 bytes", func(t *testing.T) {
		key, err := LoadKey("hunter2")
		require.NoError(t, err)
		assert.Len(t, key, 32)

		again, err := LoadKey("hunter2")
		require.NoError(t, err)
		assert.Equal(t, key, again, "stretching must be deterministic")
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := LoadKey("")
		assert.Error(t, err)
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, _ := LoadKey("round-trip")
	payloads := [][]byte{
		[]byte(`{}`),
		[]byte(`{"a":1,"nested":{"b":[1,2,3]}}`),
		[]byte("not even json"),
		{},
	}
	for i, p := range payloads {
		blob, err := encrypt(key, p)
		require.NoError(t, err, "payload %d", i)
		back, err := decrypt(key, blob)
		require.NoError(t, err, "payload %d", i)
		assert.Equal(t, p, back, "payload %d", i)
	}
}

func TestDecryptTamperedFails(t *testing.T) {
	key, _ := LoadKey("tamper")
	blob, err := encrypt(key, []byte(`{"secret":"x"}`))
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0x01
	_, err = decrypt(key, blob)
	assert.Error(t, err)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	k1, _ := LoadKey("key-one")
	k2, _ := LoadKey("key-two")
	blob, err := encrypt(k1, []byte("payload"))
	require.NoError(t, err)

	_, err = decrypt(k2, blob)
	assert.Error(t, err)
}

func TestStoreSaveGetDelete(t *testing.T) {
	s := newTestStore(t)

	type tok struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}

	require.NoError(t, s.Save("default", "saxo", tok{Access: "a1", Refresh: "r1"}))

	var got tok
	require.NoError(t, s.Get("default", "saxo", &got))
	assert.Equal(t, tok{Access: "a1", Refresh: "r1"}, got)

	// Unknown pairs report ErrNotFound.
	err := s.Get("default", "other", &got)
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.Get("nobody", "saxo", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	// Overwrite replaces the payload.
	require.NoError(t, s.Save("default", "saxo", tok{Access: "a2"}))
	require.NoError(t, s.Get("default", "saxo", &got))
	assert.Equal(t, "a2", got.Access)

	require.NoError(t, s.Delete("default", "saxo"))
	err = s.Get("default", "saxo", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete("default", "saxo"))
}

func TestStoreClearAll(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("u1", "a", map[string]string{"k": "v"}))
	require.NoError(t, s.Save("u2", "b", map[string]string{"k": "v"}))

	require.NoError(t, s.ClearAll())

	var out map[string]string
	assert.ErrorIs(t, s.Get("u1", "a", &out), ErrNotFound)
	assert.ErrorIs(t, s.Get("u2", "b", &out), ErrNotFound)
}

func TestStoreFileEnvelope(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("default", "saxo", map[string]string{"access": "secret-value"}))

	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)

	var env struct {
		Encrypted string `json:"encrypted"`
		UpdatedAt string `json:"updated_at"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.NotEmpty(t, env.Encrypted)
	assert.NotEmpty(t, env.UpdatedAt)

	// Ciphertext must not leak the plaintext.
	assert.NotContains(t, string(raw), "secret-value")
}

func TestStoreCorruptFile(t *testing.T) {
	t.Run("garbage envelope", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, os.WriteFile(s.path, []byte("not json"), 0o600))

		var out map[string]string
		err := s.Get("default", "saxo", &out)
		assert.ErrorIs(t, err, ErrStoreCorrupt)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Save("default", "saxo", map[string]string{"a": "b"}))

		raw, err := os.ReadFile(s.path)
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		blob, err := base64.StdEncoding.DecodeString(env.Encrypted)
		require.NoError(t, err)
		blob[0] ^= 0xff
		env.Encrypted = base64.StdEncoding.EncodeToString(blob)
		tampered, err := json.Marshal(env)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(s.path, tampered, 0o600))

		var out map[string]string
		err = s.Get("default", "saxo", &out)
		assert.ErrorIs(t, err, ErrStoreCorrupt)

		// Corruption fails loud on writes too, before any data loss.
		err = s.Save("default", "saxo", map[string]string{"c": "d"})
		assert.ErrorIs(t, err, ErrStoreCorrupt)
	})
}

func TestStoreConcurrentSaves(t *testing.T) {
	s := newTestStore(t)

	const writers = 8
	const rounds = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				scope := fmt.Sprintf("scope-%d", w)
				if err := s.Save("default", scope, map[string]int{"round": r}); err != nil {
					t.Errorf("writer %d round %d: %v", w, r, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// Every writer's final round is visible in a single consistent file.
	for w := 0; w < writers; w++ {
		var out map[string]int
		require.NoError(t, s.Get("default", fmt.Sprintf("scope-%d", w), &out))
		assert.Equal(t, rounds-1, out["round"], "writer %d", w)
	}
}

func TestStoreWrongKeyIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	k1, _ := LoadKey("first")
	s1, err := NewStore(path, k1, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.Save("default", "saxo", map[string]string{"a": "b"}))

	k2, _ := LoadKey("second")
	s2, err := NewStore(path, k2, zerolog.Nop())
	require.NoError(t, err)

	var out map[string]string
	err = s2.Get("default", "saxo", &out)
	assert.ErrorIs(t, err, ErrStoreCorrupt)

	if !errors.Is(err, ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}
}
