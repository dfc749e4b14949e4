package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshTimeout = 30 * time.Second
	refreshFlightKey      = "credential"
)

type RefreshCoordinatorConfig struct {
	Store    CredentialStore
	Provider CredentialProvider
	// Mirrors receive every refreshed credential after Store. Mirror write
	// failures are logged and never fail the refresh.
	Mirrors []CredentialStore
	Timeout time.Duration
	Logger  Logger
	Metrics MetricsRecorder
}

// RefreshStats is a point-in-time view of coordinator activity.
type RefreshStats struct {
	Cycles        int64
	ProviderCalls int64
	Failures      int64
	// Waiters counts callers currently attached to the refresh in flight.
	Waiters  int64
	InFlight bool
}

// RefreshCoordinator runs at most one credential refresh at a time. Callers
// that arrive while a refresh is running wait for it and all receive its
// outcome. The shared call is forgotten as soon as it resolves, so the next
// failure starts a new cycle instead of replaying a finished one.
type RefreshCoordinator struct {
	store    CredentialStore
	provider CredentialProvider
	mirrors  []CredentialStore
	timeout  time.Duration
	observer observer

	group         singleflight.Group
	inFlight      atomic.Bool
	cycles        atomic.Int64
	providerCalls atomic.Int64
	failures      atomic.Int64
	waiters       atomic.Int64
}

func NewRefreshCoordinator(cfg RefreshCoordinatorConfig) (*RefreshCoordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("core: refresh coordinator credential store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("core: refresh coordinator credential provider is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	mirrors := make([]CredentialStore, 0, len(cfg.Mirrors))
	for _, mirror := range cfg.Mirrors {
		if mirror != nil {
			mirrors = append(mirrors, mirror)
		}
	}
	return &RefreshCoordinator{
		store:    cfg.Store,
		provider: cfg.Provider,
		mirrors:  mirrors,
		timeout:  timeout,
		observer: observer{logger: cfg.Logger, metrics: metrics},
	}, nil
}

// Acquire returns a freshly obtained credential, joining the refresh in
// flight if there is one. Cancelling ctx abandons only this caller's wait.
func (c *RefreshCoordinator) Acquire(ctx context.Context) (Credential, error) {
	if c == nil {
		return "", newInternalError(nil, "core: refresh coordinator is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)
	resultCh := c.group.DoChan(refreshFlightKey, func() (any, error) {
		return c.runCycle(detached)
	})
	c.waiters.Add(1)
	defer c.waiters.Add(-1)

	select {
	case <-ctx.Done():
		return "", newCanceledError(ctx.Err())
	case result := <-resultCh:
		if result.Err != nil {
			return "", result.Err
		}
		credential, _ := result.Val.(Credential)
		return credential, nil
	}
}

// Store returns the primary store the coordinator refreshes.
func (c *RefreshCoordinator) Store() CredentialStore {
	if c == nil {
		return nil
	}
	return c.store
}

func (c *RefreshCoordinator) Mirrors() []CredentialStore {
	if c == nil {
		return nil
	}
	return append([]CredentialStore(nil), c.mirrors...)
}

func (c *RefreshCoordinator) InFlight() bool {
	if c == nil {
		return false
	}
	return c.inFlight.Load()
}

func (c *RefreshCoordinator) Stats() RefreshStats {
	if c == nil {
		return RefreshStats{}
	}
	return RefreshStats{
		Cycles:        c.cycles.Load(),
		ProviderCalls: c.providerCalls.Load(),
		Failures:      c.failures.Load(),
		Waiters:       c.waiters.Load(),
		InFlight:      c.inFlight.Load(),
	}
}

func (c *RefreshCoordinator) runCycle(ctx context.Context) (credential Credential, err error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	cycle := c.cycles.Add(1)
	startedAt := time.Now()
	defer func() {
		if err != nil {
			c.failures.Add(1)
		}
		c.observer.observeOperation(ctx, startedAt, "refresh", err, map[string]any{
			"cycle":   cycle,
			"mirrors": len(c.mirrors),
		})
	}()

	// Nobody may read the stale credential while the new one is obtained.
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		return "", newRefreshFailure(fmt.Errorf("core: clear credential store: %w", clearErr))
	}

	credential, err = c.obtain(ctx)
	if err != nil {
		return "", newRefreshFailure(err)
	}
	if setErr := c.store.Set(ctx, credential); setErr != nil {
		return "", newRefreshFailure(fmt.Errorf("core: store refreshed credential: %w", setErr))
	}
	for idx, mirror := range c.mirrors {
		if mirrorErr := mirror.Set(ctx, credential); mirrorErr != nil {
			c.observer.logWarn(ctx, "refresh mirror write failed", map[string]any{
				"cycle":  cycle,
				"mirror": idx,
				"error":  mirrorErr.Error(),
			})
		}
	}
	return credential, nil
}

// obtain bounds the provider call by the coordinator timeout even when the
// provider ignores its context.
func (c *RefreshCoordinator) obtain(ctx context.Context) (Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.providerCalls.Add(1)
	c.observer.recordCounter(ctx, metricPrefix+"refresh.provider_calls", 1, nil)

	type outcome struct {
		credential Credential
		err        error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: fmt.Errorf("core: credential provider panicked: %v", recovered)}
			}
		}()
		credential, err := c.provider.Obtain(ctx)
		done <- outcome{credential: credential, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("core: credential provider did not respond within %s: %w", c.timeout, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return "", out.err
		}
		if out.credential.IsZero() {
			return "", ErrEmptyCredential
		}
		return out.credential, nil
	}
}
