package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() [32]byte {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcde")
	return key
}

func TestMemoryStore_SaveThenGetRoundTrips(t *testing.T) {
	store := NewMemoryStore(testKey())
	cred := StoredCredential{ID: "cred-1", Kind: "apikey", Fields: map[string]any{"key": "sk-test"}}

	require.NoError(t, store.Save(context.Background(), cred))

	got, err := store.Get(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, cred.Kind, got.Kind)
	assert.Equal(t, "sk-test", got.Fields["key"])
}

func TestMemoryStore_GetUnknownIDErrors(t *testing.T) {
	store := NewMemoryStore(testKey())
	_, err := store.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryStore_GetCorruptRecordErrors(t *testing.T) {
	store := NewMemoryStore(testKey())
	store.mu.Lock()
	store.sealed["bad"] = []byte("too short")
	store.mu.Unlock()

	_, err := store.Get(context.Background(), "bad")
	assert.Error(t, err)
}

func TestMemoryStore_DifferentKeyCannotDecrypt(t *testing.T) {
	store := NewMemoryStore(testKey())
	require.NoError(t, store.Save(context.Background(), StoredCredential{ID: "cred-1", Kind: "apikey"}))

	var otherKey [32]byte
	copy(otherKey[:], "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	other := &MemoryStore{key: otherKey, sealed: store.sealed}

	_, err := other.Get(context.Background(), "cred-1")
	assert.Error(t, err)
}
