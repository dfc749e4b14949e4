package authretry

import (
	"io/fs"

	"github.com/goliatone/go-authretry/core"
	"github.com/goliatone/go-authretry/migrations"
	"github.com/goliatone/go-authretry/transport"
)

type Config = core.Config

type Option = core.Option

type Client = core.Client

type Credential = core.Credential
type CredentialStore = core.CredentialStore
type CredentialProvider = core.CredentialProvider
type ProviderFunc = core.ProviderFunc
type CredentialStatus = core.CredentialStatus
type RequestDescriptor = core.RequestDescriptor
type Response = core.Response
type ReportingSink = core.ReportingSink
type UnauthenticatedSignal = core.UnauthenticatedSignal

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithTransport             = core.WithTransport
	WithTransportResolver     = core.WithTransportResolver
	WithCredentialProvider    = core.WithCredentialProvider
	WithCredentialStore       = core.WithCredentialStore
	WithCredentialMirror      = core.WithCredentialMirror
	WithReportingSink         = core.WithReportingSink
	WithUnauthenticatedSignal = core.WithUnauthenticatedSignal
	WithRefreshCoordinator    = core.WithRefreshCoordinator
	WithInitialCredential     = core.WithInitialCredential
	WithClassifier            = core.WithClassifier
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewClient builds a client that dispatches through the default transport
// registry (rest, json, form, multipart) unless a transport option overrides
// it.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	defaults := []Option{core.WithTransportResolver(transport.NewDefaultRegistry(nil))}
	return core.NewClient(cfg, append(defaults, opts...)...)
}

// GetMigrationsFS returns the embedded credential schema for postgres and
// sqlite.
func GetMigrationsFS() fs.FS {
	return migrations.FS()
}
