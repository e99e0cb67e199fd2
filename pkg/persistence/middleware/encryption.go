package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.StateStore
	active cipher.AEAD
	// tried in order after active
	fallback []cipher.AEAD
}

// NewEncryptionMiddleware creates a middleware that seals the world state of
// every snapshot with AES-256-GCM. The session ID and snapshot version are
// authenticated alongside the payload, so a sealed state cannot be replayed
// into another session or under another version.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	active, err := newAEAD(config.ActiveKey)
	if err != nil {
		panic(fmt.Sprintf("invalid active key: %v", err))
	}
	fallback := make([]cipher.AEAD, 0, len(config.FallbackKeys))
	for i, key := range config.FallbackKeys {
		aead, err := newAEAD(key)
		if err != nil {
			panic(fmt.Sprintf("invalid fallback key %d: %v", i, err))
		}
		fallback = append(fallback, aead)
	}

	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{
			next:     next,
			active:   active,
			fallback: fallback,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	plainText, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	nonce := make([]byte, m.active.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}
	sealed := m.active.Seal(nonce, nonce, plainText, associatedData(sessionID, snap.Version))

	// Bookkeeping fields stay readable for monitoring; the world state only
	// exists in the sealed payload.
	envelope := *snap
	envelope.State = domain.WorldState{}
	envelope.Sealed = base64.StdEncoding.EncodeToString(sealed)

	return m.next.Save(ctx, sessionID, &envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	envelope, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Fail secure: with encryption configured, plain snapshots are rejected.
	if envelope.Sealed == "" {
		return nil, errors.New("snapshot is missing sealed payload")
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := m.open(sealed, associatedData(sessionID, envelope.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state of session %s: %w", sessionID, err)
	}

	var state domain.WorldState
	if err := json.Unmarshal(plainText, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}

	snap := *envelope
	snap.State = state
	snap.Sealed = ""
	return &snap, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// open tries the active key, then each fallback key.
func (m *encryptionMiddleware) open(sealed, aad []byte) ([]byte, error) {
	for _, aead := range append([]cipher.AEAD{m.active}, m.fallback...) {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], aad); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func associatedData(sessionID string, version int) []byte {
	return []byte(sessionID + "/" + strconv.Itoa(version))
}
