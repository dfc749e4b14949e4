package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// SecretProvider seals and opens opaque secrets.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyRotationWindow gates when a key version may seal new values. Opening is
// never gated so values sealed by a retired key stay readable.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

// Key is one versioned AES key. Material of 16, 24 or 32 bytes is used as is;
// anything else is stretched with SHA-256.
type Key struct {
	ID       string
	Version  int
	Material []byte
	Window   KeyRotationWindow
}

type keyringEntry struct {
	id      string
	version int
	aead    cipher.AEAD
	window  KeyRotationWindow
}

type KeyringOption func(*Keyring)

// WithClock overrides the time source used to pick the sealing key.
func WithClock(now func() time.Time) KeyringOption {
	return func(k *Keyring) {
		if now != nil {
			k.now = now
		}
	}
}

// Keyring seals with the newest key whose window is open and opens with
// whichever key the envelope names.
type Keyring struct {
	mu      sync.RWMutex
	entries []keyringEntry
	now     func() time.Time
}

func NewKeyring(keys []Key, opts ...KeyringOption) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("security: at least one key is required")
	}
	ring := &Keyring{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(ring)
	}
	for _, key := range keys {
		if err := ring.add(key); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// NewAppKeyKeyring builds a single-key ring from an application secret.
func NewAppKeyKeyring(secret string) (*Keyring, error) {
	return NewKeyring([]Key{{ID: "app-key", Version: 1, Material: []byte(secret)}})
}

// AddKey registers a rotated key. Existing keys keep opening old values.
func (k *Keyring) AddKey(key Key) error {
	if k == nil {
		return fmt.Errorf("security: keyring is nil")
	}
	return k.add(key)
}

func (k *Keyring) add(key Key) error {
	id := strings.TrimSpace(key.ID)
	if id == "" {
		return fmt.Errorf("security: key id is required")
	}
	if key.Version <= 0 {
		return fmt.Errorf("security: key %q version must be positive", id)
	}
	material := []byte(strings.TrimSpace(string(key.Material)))
	if len(material) == 0 {
		return fmt.Errorf("security: key %q material is required", id)
	}
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("security: create gcm: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.entries {
		if existing.id == id && existing.version == key.Version {
			return fmt.Errorf("security: key %q version %d already registered", id, key.Version)
		}
	}
	k.entries = append(k.entries, keyringEntry{id: id, version: key.Version, aead: aead, window: key.Window})
	sort.SliceStable(k.entries, func(i, j int) bool {
		return k.entries[i].version > k.entries[j].version
	})
	return nil
}

// Active returns the id and version new values are sealed with.
func (k *Keyring) Active() (string, int, error) {
	entry, err := k.active()
	if err != nil {
		return "", 0, err
	}
	return entry.id, entry.version, nil
}

func (k *Keyring) active() (keyringEntry, error) {
	if k == nil {
		return keyringEntry{}, fmt.Errorf("security: keyring is nil")
	}
	now := k.now()
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, entry := range k.entries {
		if entry.window.Allows(now) {
			return entry, nil
		}
	}
	return keyringEntry{}, fmt.Errorf("security: no key is active at %s", now.Format(time.RFC3339))
}

func (k *Keyring) lookup(id string, version int) (keyringEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, entry := range k.entries {
		if entry.id == id && (version <= 0 || entry.version == version) {
			return entry, true
		}
	}
	return keyringEntry{}, false
}

func (k *Keyring) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	entry, err := k.active()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, entry.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return encodeEnvelope(envelope{
		KeyID:      entry.id,
		Version:    entry.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(entry.aead.Seal(nil, nonce, plaintext, []byte(entry.id))),
	})
}

func (k *Keyring) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: keyring is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if env.Algorithm != envelopeAlgorithm {
		return nil, fmt.Errorf("security: unsupported algorithm %q", env.Algorithm)
	}
	entry, ok := k.lookup(env.KeyID, env.Version)
	if !ok {
		return nil, fmt.Errorf("security: unknown key %q version %d", env.KeyID, env.Version)
	}
	nonce, err := decodeField("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := decodeField("ciphertext", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := entry.aead.Open(nil, nonce, sealed, []byte(entry.id))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func normalizeKey(value []byte) []byte {
	switch len(value) {
	case 16, 24, 32:
		return append([]byte(nil), value...)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ SecretProvider = (*Keyring)(nil)
