package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultAPIKeyHeader carries admin API keys.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKey is a registered key. Only its SHA-256 hash is kept.
type APIKey struct {
	ID        string
	Hash      string
	Roles     []string
	ExpiresAt time.Time
}

// KeyStore finds keys by hash. Lookup returns nil, nil for unknown hashes.
type KeyStore interface {
	Lookup(ctx context.Context, hash string) (*APIKey, error)
}

// HashAPIKey returns the hex SHA-256 of key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuthenticator reads a key from a header and resolves it in a KeyStore.
type APIKeyAuthenticator struct {
	header string
	keys   KeyStore
	now    func() time.Time
}

// NewAPIKeyAuthenticator reads keys from header, DefaultAPIKeyHeader when empty.
func NewAPIKeyAuthenticator(header string, keys KeyStore) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{header: header, keys: keys, now: time.Now}
}

func (a *APIKeyAuthenticator) Name() string { return string(MethodAPIKey) }

func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	raw := strings.TrimSpace(h.Get(a.header))
	if raw == "" {
		return nil, ErrMissingCredentials
	}

	key, err := a.keys.Lookup(ctx, HashAPIKey(raw))
	switch {
	case err != nil:
		return nil, err
	case key == nil:
		return nil, ErrInvalidCredentials
	}

	id := &Identity{
		Principal: key.ID,
		Roles:     key.Roles,
		Method:    MethodAPIKey,
		ExpiresAt: key.ExpiresAt,
		Claims:    map[string]any{"key_id": key.ID},
	}
	if id.IsExpired(a.now()) {
		return nil, ErrTokenExpired
	}
	return id, nil
}

// MemoryKeyStore is a KeyStore held in a map.
type MemoryKeyStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{byHash: make(map[string]*APIKey)}
}

func (s *MemoryKeyStore) Lookup(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byHash[hash], nil
}

// Put registers k under its Hash, replacing any key with the same hash.
func (s *MemoryKeyStore) Put(k *APIKey) {
	s.mu.Lock()
	s.byHash[k.Hash] = k
	s.mu.Unlock()
}

// AddKey hashes a plaintext key and registers it with roles.
func (s *MemoryKeyStore) AddKey(id, key string, roles ...string) {
	s.Put(&APIKey{ID: id, Hash: HashAPIKey(key), Roles: roles})
}

func (s *MemoryKeyStore) Delete(hash string) {
	s.mu.Lock()
	delete(s.byHash, hash)
	s.mu.Unlock()
}

func (s *MemoryKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}
