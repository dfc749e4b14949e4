package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Credential is an opaque bearer token.
type Credential string

func (c Credential) IsZero() bool {
	return strings.TrimSpace(string(c)) == ""
}

// String never exposes the token value.
func (c Credential) String() string {
	if c.IsZero() {
		return ""
	}
	return RedactedValue
}

// Token returns the raw bearer value for header attachment.
func (c Credential) Token() string {
	return strings.TrimSpace(string(c))
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Response is the outcome of a successful Client.Send.
type Response = TransportResponse

type Transport interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type TransportResolver interface {
	Resolve(kind string) (Transport, error)
}

type CredentialProvider interface {
	Obtain(ctx context.Context) (Credential, error)
}

// ProviderFunc adapts a function into a CredentialProvider.
type ProviderFunc func(ctx context.Context) (Credential, error)

func (f ProviderFunc) Obtain(ctx context.Context) (Credential, error) {
	return f(ctx)
}

type CredentialStore interface {
	Get(ctx context.Context) (Credential, bool, error)
	Set(ctx context.Context, credential Credential) error
	Clear(ctx context.Context) error
}

type ReportingSink interface {
	Report(ctx context.Context, err error, fields map[string]any)
}

type ReportingSinkFunc func(ctx context.Context, err error, fields map[string]any)

func (f ReportingSinkFunc) Report(ctx context.Context, err error, fields map[string]any) {
	f(ctx, err, fields)
}

type UnauthenticatedSignal interface {
	SignalUnauthenticated(ctx context.Context, reason error)
}

type UnauthenticatedSignalFunc func(ctx context.Context, reason error)

func (f UnauthenticatedSignalFunc) SignalUnauthenticated(ctx context.Context, reason error) {
	f(ctx, reason)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
