package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	transportResolver TransportResolver
	provider          CredentialProvider
	store             CredentialStore
	mirrors           []CredentialStore
	sink              ReportingSink
	signal            UnauthenticatedSignal
	coordinator       *RefreshCoordinator
	initial           Credential
	classifier        *Classifier
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTransport registers a single transport, used for every descriptor
// regardless of kind.
func WithTransport(transport Transport) Option {
	return func(b *clientBuilder) {
		if transport == nil {
			return
		}
		b.transportResolver = singleTransportResolver{transport: transport}
	}
}

func WithTransportResolver(resolver TransportResolver) Option {
	return func(b *clientBuilder) {
		b.transportResolver = resolver
	}
}

func WithCredentialProvider(provider CredentialProvider) Option {
	return func(b *clientBuilder) {
		b.provider = provider
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *clientBuilder) {
		b.store = store
	}
}

// WithCredentialMirror adds a store that receives every refreshed
// credential and can seed the primary store at startup.
func WithCredentialMirror(store CredentialStore) Option {
	return func(b *clientBuilder) {
		if store != nil {
			b.mirrors = append(b.mirrors, store)
		}
	}
}

func WithReportingSink(sink ReportingSink) Option {
	return func(b *clientBuilder) {
		b.sink = sink
	}
}

func WithUnauthenticatedSignal(signal UnauthenticatedSignal) Option {
	return func(b *clientBuilder) {
		b.signal = signal
	}
}

// WithRefreshCoordinator shares an existing coordinator between clients. The
// coordinator's own store and provider take precedence.
func WithRefreshCoordinator(coordinator *RefreshCoordinator) Option {
	return func(b *clientBuilder) {
		b.coordinator = coordinator
	}
}

func WithInitialCredential(credential Credential) Option {
	return func(b *clientBuilder) {
		b.initial = credential
	}
}

func WithClassifier(classifier Classifier) Option {
	return func(b *clientBuilder) {
		b.classifier = &classifier
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("authretry", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		signal:          NopUnauthenticatedSignal{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return clientErrorMapper(err)
}

type singleTransportResolver struct {
	transport Transport
}

func (r singleTransportResolver) Resolve(string) (Transport, error) {
	return r.transport, nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, typically parsed from a file.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw map over defaults. Validation is deferred to the
// options resolver, which sees the runtime layer as well.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config and runtime config, in
// increasing priority, and validates the merged result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setString("service_name", cfg.ServiceName)
	setString("auth_header", cfg.AuthHeader)
	setString("auth_scheme", cfg.AuthScheme)
	setString("default_transport", cfg.DefaultTransport)

	classifier := map[string]any{}
	if includeZero || len(cfg.Classifier.CredentialInvalidCodes) > 0 {
		classifier["credential_invalid_codes"] = append([]string(nil), cfg.Classifier.CredentialInvalidCodes...)
	}
	if includeZero || len(cfg.Classifier.CredentialInvalidStatuses) > 0 {
		classifier["credential_invalid_statuses"] = append([]int(nil), cfg.Classifier.CredentialInvalidStatuses...)
	}
	if includeZero || len(cfg.Classifier.ErrorCodePaths) > 0 {
		classifier["error_code_paths"] = append([]string(nil), cfg.Classifier.ErrorCodePaths...)
	}
	if includeZero || strings.TrimSpace(cfg.Classifier.ErrorCodeHeader) != "" {
		classifier["error_code_header"] = cfg.Classifier.ErrorCodeHeader
	}
	if len(classifier) > 0 {
		layer["classifier"] = classifier
	}

	if includeZero || cfg.Refresh.Timeout > 0 {
		layer["refresh"] = map[string]any{"timeout": cfg.Refresh.Timeout}
	}

	bypass := map[string]any{}
	if includeZero || cfg.Bypass.Enabled {
		bypass["enabled"] = cfg.Bypass.Enabled
	}
	if includeZero || strings.TrimSpace(cfg.Bypass.Credential) != "" {
		bypass["credential"] = cfg.Bypass.Credential
	}
	if len(bypass) > 0 {
		layer["bypass"] = bypass
	}
	return layer
}
