package core

import (
	"context"
	"fmt"
)

const (
	StrategyFixed      = "fixed"
	StrategyRefreshing = "refreshing"
)

// CredentialStrategy decides which credential is attached to requests and
// whether a rejected credential can be replaced.
type CredentialStrategy interface {
	Name() string
	Current(ctx context.Context) (Credential, bool, error)
	Refreshable() bool
	Refresh(ctx context.Context) (Credential, error)
}

// FixedCredentialStrategy always attaches the same credential and never
// refreshes. It backs the development bypass mode.
type FixedCredentialStrategy struct {
	credential Credential
}

func NewFixedCredentialStrategy(credential Credential) FixedCredentialStrategy {
	return FixedCredentialStrategy{credential: credential}
}

func (FixedCredentialStrategy) Name() string { return StrategyFixed }

func (s FixedCredentialStrategy) Current(context.Context) (Credential, bool, error) {
	if s.credential.IsZero() {
		return "", false, nil
	}
	return s.credential, true, nil
}

func (FixedCredentialStrategy) Refreshable() bool { return false }

func (FixedCredentialStrategy) Refresh(context.Context) (Credential, error) {
	return "", ErrRefreshNotSupported
}

// RefreshingCredentialStrategy reads the credential store and replaces the
// credential through a shared RefreshCoordinator.
type RefreshingCredentialStrategy struct {
	store       CredentialStore
	coordinator *RefreshCoordinator
}

func NewRefreshingCredentialStrategy(store CredentialStore, coordinator *RefreshCoordinator) (*RefreshingCredentialStrategy, error) {
	if store == nil {
		return nil, fmt.Errorf("core: refreshing strategy credential store is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("core: refreshing strategy coordinator is required")
	}
	return &RefreshingCredentialStrategy{store: store, coordinator: coordinator}, nil
}

func (*RefreshingCredentialStrategy) Name() string { return StrategyRefreshing }

func (s *RefreshingCredentialStrategy) Current(ctx context.Context) (Credential, bool, error) {
	return s.store.Get(ctx)
}

func (*RefreshingCredentialStrategy) Refreshable() bool { return true }

func (s *RefreshingCredentialStrategy) Refresh(ctx context.Context) (Credential, error) {
	return s.coordinator.Acquire(ctx)
}

func (s *RefreshingCredentialStrategy) Coordinator() *RefreshCoordinator {
	if s == nil {
		return nil
	}
	return s.coordinator
}

var (
	_ CredentialStrategy = FixedCredentialStrategy{}
	_ CredentialStrategy = (*RefreshingCredentialStrategy)(nil)
)
