package gologger

import (
	"strings"

	"github.com/goliatone/go-authretry/core"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultLoggerName = "authretry"

// Resolve picks provider > logger > nop, naming the logger "authretry" when
// name is empty.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider bridges a glog provider to go-job.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ForClient exposes the client's logging setup to go-job workers so refresh
// jobs log through the same sink as requests.
func ForClient(client *core.Client) (job.LoggerProvider, job.Logger) {
	if client == nil {
		_, logger := Resolve(DefaultLoggerName, nil, nil)
		return ToJobProvider(glog.ProviderFromLogger(logger)), ToJobLogger(logger)
	}
	provider, logger := Resolve(DefaultLoggerName, client.LoggerProvider(), client.Logger())
	return ToJobProvider(provider), ToJobLogger(logger)
}
