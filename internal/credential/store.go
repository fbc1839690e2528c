package credential

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// MemoryStore is an in-process Store that encrypts every StoredCredential
// at rest with NaCl secretbox, keyed by a 32-byte secret supplied at
// construction. It exists for embedding the engine and for tests; a
// production deployment backs Store with the persistence sink's
// database instead.
type MemoryStore struct {
	mu      sync.RWMutex
	key     [32]byte
	sealed  map[string][]byte
}

// NewMemoryStore builds a MemoryStore sealed with key.
func NewMemoryStore(key [32]byte) *MemoryStore {
	return &MemoryStore{key: key, sealed: make(map[string][]byte)}
}

// Save encrypts and stores cred.
func (s *MemoryStore) Save(_ context.Context, cred StoredCredential) error {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credential store: marshal: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("credential store: nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed[cred.ID] = sealed
	return nil
}

// Get decrypts and returns the stored credential.
func (s *MemoryStore) Get(_ context.Context, credentialID string) (StoredCredential, error) {
	s.mu.RLock()
	sealed, ok := s.sealed[credentialID]
	s.mu.RUnlock()
	if !ok {
		return StoredCredential{}, fmt.Errorf("credential store: %s not found", credentialID)
	}

	if len(sealed) < 24 {
		return StoredCredential{}, fmt.Errorf("credential store: %s: corrupt record", credentialID)
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return StoredCredential{}, fmt.Errorf("credential store: %s: decryption failed", credentialID)
	}

	var cred StoredCredential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return StoredCredential{}, fmt.Errorf("credential store: %s: unmarshal: %w", credentialID, err)
	}
	return cred, nil
}
