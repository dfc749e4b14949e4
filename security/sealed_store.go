package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-authretry/core"
)

type SealedStoreOption func(*SealedCredentialStore)

// WithPlaintextFallback lets Get return unsealed legacy values as is. The
// next Set reseals them.
func WithPlaintextFallback() SealedStoreOption {
	return func(s *SealedCredentialStore) {
		s.allowPlaintext = true
	}
}

// SealedCredentialStore encrypts credentials before they reach base, so a
// persisted mirror never holds a usable bearer token.
type SealedCredentialStore struct {
	base           core.CredentialStore
	secrets        SecretProvider
	allowPlaintext bool
}

func NewSealedCredentialStore(base core.CredentialStore, secrets SecretProvider, opts ...SealedStoreOption) (*SealedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base credential store is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	store := &SealedCredentialStore{base: base, secrets: secrets}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	return store, nil
}

func (s *SealedCredentialStore) Get(ctx context.Context) (core.Credential, bool, error) {
	sealed, ok, err := s.base.Get(ctx)
	if err != nil || !ok {
		return "", ok, err
	}
	raw := []byte(sealed)
	if !IsSealed(raw) {
		if s.allowPlaintext {
			return sealed, true, nil
		}
		return "", false, fmt.Errorf("security: stored credential is not sealed")
	}
	plaintext, err := s.secrets.Decrypt(ctx, raw)
	if err != nil {
		return "", false, err
	}
	return core.Credential(plaintext), true, nil
}

func (s *SealedCredentialStore) Set(ctx context.Context, credential core.Credential) error {
	if credential.IsZero() {
		return s.base.Clear(ctx)
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(credential))
	if err != nil {
		return err
	}
	return s.base.Set(ctx, core.Credential(sealed))
}

func (s *SealedCredentialStore) Clear(ctx context.Context) error {
	return s.base.Clear(ctx)
}

var _ core.CredentialStore = (*SealedCredentialStore)(nil)
