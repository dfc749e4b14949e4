package core

import (
	"context"
	"sync"
)

// MemoryCredentialStore holds the process credential. Reads and writes are
// serialized so a concurrent Get never observes a partial Set.
type MemoryCredentialStore struct {
	mu         sync.RWMutex
	credential Credential
}

func NewMemoryCredentialStore(initial Credential) *MemoryCredentialStore {
	return &MemoryCredentialStore{credential: initial}
}

func (s *MemoryCredentialStore) Get(context.Context) (Credential, bool, error) {
	if s == nil {
		return "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credential.IsZero() {
		return "", false, nil
	}
	return s.credential, true, nil
}

func (s *MemoryCredentialStore) Set(_ context.Context, credential Credential) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()
	return nil
}

func (s *MemoryCredentialStore) Clear(context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.credential = ""
	s.mu.Unlock()
	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
