package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// maxRetainedKeys bounds how many rotated-out keys stay valid for verification.
const maxRetainedKeys = 4

// KeySet signs API tokens with the active key and verifies tokens signed by
// any retained key.
type KeySet interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// Ed25519KeySet holds EdDSA signing keys in memory.
type Ed25519KeySet struct {
	mu         sync.RWMutex
	currentKID string
	order      []string
	keys       map[string]ed25519.PrivateKey
}

// NewEd25519KeySet creates a key set with a freshly generated key.
func NewEd25519KeySet() (*Ed25519KeySet, error) {
	ks := &Ed25519KeySet{keys: make(map[string]ed25519.PrivateKey)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// NewSeededKeySet creates a key set whose only key is derived from a 32-byte
// seed, so separate processes sharing the seed issue and accept the same tokens.
func NewSeededKeySet(seed []byte) (*Ed25519KeySet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	ks := &Ed25519KeySet{keys: make(map[string]ed25519.PrivateKey)}
	ks.install(ed25519.NewKeyFromSeed(seed))
	return ks, nil
}

// Rotate generates a new active key. Older keys keep verifying until evicted.
func (ks *Ed25519KeySet) Rotate() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("identity: generate key: %w", err)
	}
	ks.install(priv)
	return nil
}

func (ks *Ed25519KeySet) install(priv ed25519.PrivateKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	pub := priv.Public().(ed25519.PublicKey)
	kid := "ed25519-" + hex.EncodeToString(pub[:6])
	if _, exists := ks.keys[kid]; !exists {
		ks.order = append(ks.order, kid)
	}
	ks.keys[kid] = priv
	ks.currentKID = kid

	for len(ks.order) > maxRetainedKeys {
		evict := ks.order[0]
		ks.order = ks.order[1:]
		delete(ks.keys, evict)
	}
}

// CurrentKID returns the id of the active signing key.
func (ks *Ed25519KeySet) CurrentKID() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.currentKID
}

func (ks *Ed25519KeySet) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	kid := ks.currentKID
	key := ks.keys[kid]
	ks.mu.RUnlock()

	if key == nil {
		return "", errors.New("identity: no active signing key")
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = kid
	return tok.SignedString(key)
}

func (ks *Ed25519KeySet) KeyFunc() jwt.Keyfunc {
	return func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		kid, ok := tok.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return key.Public(), nil
	}
}
