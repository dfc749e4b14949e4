package core

import (
	"net/http"

	glog "github.com/goliatone/go-logger/glog"
)

var (
	_ CredentialStore    = (*MemoryCredentialStore)(nil)
	_ CredentialProvider = ProviderFunc(nil)
	_ ReportingSink      = ReportingSinkFunc(nil)
	_ http.RoundTripper  = roundTripper{}
	_ TransportResolver  = singleTransportResolver{}
	_ MetricsRecorder    = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
