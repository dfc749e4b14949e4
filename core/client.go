package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Client sends requests with the current credential and replaces rejected
// credentials through a shared refresh coordinator.
type Client struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transports      TransportResolver
	classifier      Classifier
	strategy        CredentialStrategy
	store           CredentialStore
	mirrors         []CredentialStore
	coordinator     *RefreshCoordinator
	escalator       *Escalator
}

// CredentialStatus describes the client's credential state without exposing
// the credential itself.
type CredentialStatus struct {
	HasCredential bool
	Strategy      string
	Refresh       RefreshStats
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("authretry", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authretry"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.transportResolver == nil {
		return nil, mapBuildError(builder.errorMapper, newBadInputError("core: transport resolver is required"))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	classifier := NewClassifier(finalConfig.classifierConfig())
	if builder.classifier != nil {
		classifier = *builder.classifier
	}

	client := &Client{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		transports:      builder.transportResolver,
		classifier:      classifier,
		escalator:       NewEscalator(builder.sink, builder.signal, logger),
	}

	if finalConfig.Bypass.Enabled {
		client.strategy = NewFixedCredentialStrategy(Credential(finalConfig.Bypass.Credential))
		client.store = builder.store
		if client.store == nil {
			client.store = NewMemoryCredentialStore("")
		}
		client.mirrors = append([]CredentialStore(nil), builder.mirrors...)
		client.observer().logWarn(context.Background(), "credential bypass enabled", map[string]any{
			"credential_strategy": StrategyFixed,
		})
		return client, nil
	}

	coordinator := builder.coordinator
	if coordinator == nil {
		if builder.provider == nil {
			return nil, mapBuildError(builder.errorMapper,
				newBadInputError("core: credential provider is required unless bypass is enabled"))
		}
		store := builder.store
		if store == nil {
			store = NewMemoryCredentialStore("")
		}
		coordinator, err = NewRefreshCoordinator(RefreshCoordinatorConfig{
			Store:    store,
			Provider: builder.provider,
			Mirrors:  builder.mirrors,
			Timeout:  finalConfig.Refresh.Timeout,
			Logger:   logger,
			Metrics:  builder.metricsRecorder,
		})
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	strategy, err := NewRefreshingCredentialStrategy(coordinator.Store(), coordinator)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	client.coordinator = coordinator
	client.store = coordinator.Store()
	client.mirrors = coordinator.Mirrors()
	client.strategy = strategy

	if err := client.seed(context.Background(), builder.initial); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	return client, nil
}

// seed fills an empty primary store from the initial credential or, failing
// that, from the first mirror holding one.
func (c *Client) seed(ctx context.Context, initial Credential) error {
	if !initial.IsZero() {
		return c.store.Set(ctx, initial)
	}
	if _, ok, err := c.store.Get(ctx); err != nil || ok {
		return err
	}
	for idx, mirror := range c.mirrors {
		credential, ok, err := mirror.Get(ctx)
		if err != nil {
			c.observer().logWarn(ctx, "credential mirror read failed", map[string]any{
				"mirror": idx,
				"error":  err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}
		if err := c.store.Set(ctx, credential); err != nil {
			return err
		}
		c.observer().logInfo(ctx, "credential seeded from mirror", map[string]any{"mirror": idx})
		return nil
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Logger() Logger {
	if c == nil {
		return nil
	}
	return c.logger
}

func (c *Client) LoggerProvider() LoggerProvider {
	if c == nil {
		return nil
	}
	return c.loggerProvider
}

func (c *Client) Strategy() CredentialStrategy {
	if c == nil {
		return nil
	}
	return c.strategy
}

// Coordinator is nil when the client runs with the fixed strategy.
func (c *Client) Coordinator() *RefreshCoordinator {
	if c == nil {
		return nil
	}
	return c.coordinator
}

func (c *Client) Classifier() Classifier {
	if c == nil {
		return Classifier{}
	}
	return c.classifier
}

// ForceRefresh runs (or joins) a refresh cycle outside of a failed request.
func (c *Client) ForceRefresh(ctx context.Context) error {
	if c == nil {
		return newInternalError(nil, "core: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	_, err := c.strategy.Refresh(ctx)
	if errors.Is(err, ErrRefreshNotSupported) {
		err = newBadInputError(err.Error())
	}
	c.observer().observeOperation(ctx, startedAt, "force_refresh", err, map[string]any{
		"credential_strategy": c.strategy.Name(),
	})
	return c.mapError(err)
}

// Logout clears the primary store and every mirror. All stores are
// attempted; the first failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil {
		return newInternalError(nil, "core: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	var firstErr error
	stores := append([]CredentialStore{c.store}, c.mirrors...)
	for idx, store := range stores {
		if store == nil {
			continue
		}
		if err := store.Clear(ctx); err != nil && firstErr == nil {
			firstErr = newInternalError(err, fmt.Sprintf("core: clear credential store %d", idx))
		}
	}
	c.observer().observeOperation(ctx, startedAt, "logout", firstErr, map[string]any{
		"stores": len(stores),
	})
	return c.mapError(firstErr)
}

func (c *Client) Status(ctx context.Context) (CredentialStatus, error) {
	if c == nil {
		return CredentialStatus{}, newInternalError(nil, "core: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, ok, err := c.strategy.Current(ctx)
	if err != nil {
		return CredentialStatus{}, c.mapError(newInternalError(err, "core: read credential"))
	}
	return CredentialStatus{
		HasCredential: ok,
		Strategy:      c.strategy.Name(),
		Refresh:       c.coordinator.Stats(),
	}, nil
}

func (c *Client) resolveTransport(kind string) (Transport, error) {
	kind = strings.TrimSpace(strings.ToLower(kind))
	if kind == "" {
		kind = strings.TrimSpace(strings.ToLower(c.config.DefaultTransport))
	}
	transport, err := c.transports.Resolve(kind)
	if err != nil {
		return nil, newBadInputError(fmt.Sprintf("core: transport %q is not available: %v", kind, err))
	}
	if transport == nil {
		return nil, newBadInputError(fmt.Sprintf("core: transport %q is not available", kind))
	}
	return transport, nil
}

func (c *Client) observer() observer {
	return observer{logger: c.logger, metrics: c.metricsRecorder}
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	if c == nil || c.errorMapper == nil {
		return err
	}
	mapped := c.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
