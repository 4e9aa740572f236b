package joseutil

import (
	"slices"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// StoredKey is a key store entry. JWK holds the private key material.
type StoredKey struct {
	JWK  jose.JSONWebKey
	Meta goidc.CryptoKey
}

// KeyStore is the registry of server keys indexed by key id.
// Implementations must be safe for concurrent use.
type KeyStore interface {
	Key(keyID string) (StoredKey, bool)
	Keys() []StoredKey
	Put(key StoredKey)
	Remove(keyID string) bool
	// RemoveIf removes the key only if cond accepts it, checking and
	// removing as a single step.
	RemoveIf(keyID string, cond func(StoredKey) bool) bool
}

type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]StoredKey
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		keys: make(map[string]StoredKey),
	}
}

func (s *MemoryKeyStore) Key(keyID string) (StoredKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[keyID]
	return key, ok
}

// Keys returns all keys, newest first.
func (s *MemoryKeyStore) Keys() []StoredKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]StoredKey, 0, len(s.keys))
	for _, k := range s.keys {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b StoredKey) int {
		if a.Meta.CreatedAtTimestamp != b.Meta.CreatedAtTimestamp {
			return b.Meta.CreatedAtTimestamp - a.Meta.CreatedAtTimestamp
		}
		if a.Meta.KeyID < b.Meta.KeyID {
			return -1
		}
		return 1
	})
	return keys
}

func (s *MemoryKeyStore) Put(key StoredKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key.Meta.KeyID] = key
}

func (s *MemoryKeyStore) Remove(keyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[keyID]
	delete(s.keys, keyID)
	return ok
}

func (s *MemoryKeyStore) RemoveIf(keyID string, cond func(StoredKey) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok || !cond(key) {
		return false
	}
	delete(s.keys, keyID)
	return true
}
