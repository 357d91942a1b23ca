// Package keys resolves ZMS signing key identifiers to public keys.
package keys

import (
	"crypto"
	"fmt"
	"sort"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/sentinel"
)

// Static is an in-memory key set. It is safe for concurrent use so keys can
// be rotated while passes are running.
type Static struct {
	mu   sync.RWMutex
	keys map[string]crypto.PublicKey
}

var _ ports.KeyProvider = (*Static)(nil)

func NewStatic(keys map[string]crypto.PublicKey) *Static {
	s := &Static{keys: make(map[string]crypto.PublicKey, len(keys))}
	for id, key := range keys {
		s.keys[id] = key
	}
	return s
}

func (s *Static) PublicKey(keyID string) (crypto.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("public key %q: %w", keyID, sentinel.ErrNotFound)
	}
	return key, nil
}

// Set adds or replaces a key.
func (s *Static) Set(keyID string, key crypto.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = key
}

// IDs returns the configured key identifiers, sorted.
func (s *Static) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ParsePublicKeyPEM accepts RSA, ECDSA and Ed25519 public keys in PEM form.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	if key, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("unsupported or invalid public key PEM")
	}
	return key, nil
}
