package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAuthHeader    = "Authorization"
	DefaultAuthScheme    = "Bearer"
	DefaultTransportKind = "rest"
)

type ClassifierSettings struct {
	CredentialInvalidCodes    []string `koanf:"credential_invalid_codes" mapstructure:"credential_invalid_codes"`
	CredentialInvalidStatuses []int    `koanf:"credential_invalid_statuses" mapstructure:"credential_invalid_statuses"`
	ErrorCodePaths            []string `koanf:"error_code_paths" mapstructure:"error_code_paths"`
	ErrorCodeHeader           string   `koanf:"error_code_header" mapstructure:"error_code_header"`
}

type RefreshSettings struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

// BypassSettings selects the fixed development credential. When enabled
// requests always carry Credential and no refresh is ever attempted.
type BypassSettings struct {
	Enabled    bool   `koanf:"enabled" mapstructure:"enabled"`
	Credential string `koanf:"credential" mapstructure:"credential"`
}

type Config struct {
	ServiceName      string             `koanf:"service_name" mapstructure:"service_name"`
	AuthHeader       string             `koanf:"auth_header" mapstructure:"auth_header"`
	AuthScheme       string             `koanf:"auth_scheme" mapstructure:"auth_scheme"`
	DefaultTransport string             `koanf:"default_transport" mapstructure:"default_transport"`
	Classifier       ClassifierSettings `koanf:"classifier" mapstructure:"classifier"`
	Refresh          RefreshSettings    `koanf:"refresh" mapstructure:"refresh"`
	Bypass           BypassSettings     `koanf:"bypass" mapstructure:"bypass"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:      "authretry",
		AuthHeader:       DefaultAuthHeader,
		AuthScheme:       DefaultAuthScheme,
		DefaultTransport: DefaultTransportKind,
		Classifier: ClassifierSettings{
			ErrorCodePaths:  append([]string(nil), DefaultErrorCodePaths...),
			ErrorCodeHeader: DefaultErrorCodeHeader,
		},
		Refresh: RefreshSettings{
			Timeout: DefaultRefreshTimeout,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.AuthHeader) == "" {
		return fmt.Errorf("core: auth_header is required")
	}
	if c.Refresh.Timeout < 0 {
		return fmt.Errorf("core: refresh.timeout must be >= 0")
	}
	if c.Bypass.Enabled {
		if strings.TrimSpace(c.Bypass.Credential) == "" {
			return fmt.Errorf("core: bypass.credential is required when bypass is enabled")
		}
		return nil
	}
	if len(c.Classifier.CredentialInvalidCodes) == 0 && len(c.Classifier.CredentialInvalidStatuses) == 0 {
		return fmt.Errorf("core: classifier.credential_invalid_codes is required")
	}
	return nil
}

func (c Config) classifierConfig() ClassifierConfig {
	return ClassifierConfig{
		CredentialInvalidCodes:    append([]string(nil), c.Classifier.CredentialInvalidCodes...),
		CredentialInvalidStatuses: append([]int(nil), c.Classifier.CredentialInvalidStatuses...),
		ErrorCodePaths:            append([]string(nil), c.Classifier.ErrorCodePaths...),
		ErrorCodeHeader:           c.Classifier.ErrorCodeHeader,
	}
}
