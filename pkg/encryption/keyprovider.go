package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/carelink/referral-core/pkg/types"
	"github.com/google/uuid"
)

// DataKey is a transient per-package encryption key. Raw bytes are never
// persisted; only the key ID travels with package metadata.
type DataKey struct {
	KeyID string
	Key   []byte
}

// KeyProvider supplies data-encryption keys and resolves key IDs back to raw
// key material for decryption paths.
type KeyProvider interface {
	GenerateKey() (*DataKey, error)
	ResolveKey(keyID string) ([]byte, error)
}

// EnvKeyProvider derives a stable 32-byte key from a master secret held in
// configuration. The key ID embeds a fingerprint of the derived key so a
// rotated secret is detected at resolve time instead of producing garbage
// plaintext.
type EnvKeyProvider struct {
	key   []byte
	keyID string
}

// NewEnvKeyProvider creates a provider from the configured master secret.
func NewEnvKeyProvider(masterSecret string) (*EnvKeyProvider, error) {
	if masterSecret == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"master encryption secret is empty", nil)
	}

	derived := sha256.Sum256([]byte(masterSecret))
	fingerprint := sha256.Sum256(derived[:])

	return &EnvKeyProvider{
		key:   derived[:],
		keyID: fmt.Sprintf("env:%x", fingerprint[:8]),
	}, nil
}

// GenerateKey returns the environment-derived key under its fingerprint ID.
func (p *EnvKeyProvider) GenerateKey() (*DataKey, error) {
	key := make([]byte, KeySize)
	copy(key, p.key)
	return &DataKey{KeyID: p.keyID, Key: key}, nil
}

// ResolveKey returns the raw key bytes for a key ID minted by this provider.
func (p *EnvKeyProvider) ResolveKey(keyID string) ([]byte, error) {
	if keyID != p.keyID {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("unknown encryption key ID: %s", keyID))
	}
	key := make([]byte, KeySize)
	copy(key, p.key)
	return key, nil
}

// EphemeralKeyProvider mints a fresh random key per package and keeps the
// material in memory for the life of the process. Development and test use
// only; keys do not survive a restart.
type EphemeralKeyProvider struct {
	mu   sync.Mutex
	keys map[string][]byte
}

// NewEphemeralKeyProvider creates an empty in-memory provider.
func NewEphemeralKeyProvider() *EphemeralKeyProvider {
	return &EphemeralKeyProvider{keys: make(map[string][]byte)}
}

// GenerateKey returns a fresh random 32-byte key under a new UUID key ID.
func (p *EphemeralKeyProvider) GenerateKey() (*DataKey, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	keyID := "ephemeral:" + uuid.New().String()

	p.mu.Lock()
	p.keys[keyID] = key
	p.mu.Unlock()

	out := make([]byte, KeySize)
	copy(out, key)
	return &DataKey{KeyID: keyID, Key: out}, nil
}

// ResolveKey returns the raw bytes for a previously generated key ID.
func (p *EphemeralKeyProvider) ResolveKey(keyID string) ([]byte, error) {
	p.mu.Lock()
	key, ok := p.keys[keyID]
	p.mu.Unlock()

	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("unknown encryption key ID: %s", keyID))
	}

	out := make([]byte, KeySize)
	copy(out, key)
	return out, nil
}
