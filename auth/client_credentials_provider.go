package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-authretry/core"
	"golang.org/x/oauth2/clientcredentials"
)

const GrantClientCredentials = "client_credentials"

type ClientCredentialsConfig struct {
	ClientID       string            `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret   string            `koanf:"client_secret" mapstructure:"client_secret"`
	TokenURL       string            `koanf:"token_url" mapstructure:"token_url"`
	Scopes         []string          `koanf:"scopes" mapstructure:"scopes"`
	EndpointParams map[string]string `koanf:"endpoint_params" mapstructure:"endpoint_params"`
	AuthStyle      string            `koanf:"auth_style" mapstructure:"auth_style"`
	HTTPClient     *http.Client      `koanf:"-" mapstructure:"-"`
}

// ClientCredentialsProvider obtains a fresh access token from the token
// endpoint on every call. Tokens are not cached: the client only asks for one
// after the current credential was rejected.
type ClientCredentialsProvider struct {
	config     clientcredentials.Config
	httpClient *http.Client
}

func NewClientCredentialsProvider(cfg ClientCredentialsConfig) (*ClientCredentialsProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if clientID == "" {
		return nil, configError(GrantClientCredentials, "client_id is required")
	}
	if clientSecret == "" {
		return nil, configError(GrantClientCredentials, "client_secret is required")
	}
	if tokenURL == "" {
		return nil, configError(GrantClientCredentials, "token_url is required")
	}

	var params url.Values
	if len(cfg.EndpointParams) > 0 {
		params = url.Values{}
		for key, value := range cfg.EndpointParams {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			params.Set(key, value)
		}
	}

	return &ClientCredentialsProvider{
		config: clientcredentials.Config{
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			TokenURL:       tokenURL,
			Scopes:         normalizeValues(cfg.Scopes),
			EndpointParams: params,
			AuthStyle:      authStyle(cfg.AuthStyle),
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

func (p *ClientCredentialsProvider) Obtain(ctx context.Context) (core.Credential, error) {
	if p == nil {
		return "", configError(GrantClientCredentials, "provider is not configured")
	}
	token, err := p.config.Token(withHTTPClient(ctx, p.httpClient))
	if err != nil {
		return "", tokenError(GrantClientCredentials, err)
	}
	return credentialFromToken(GrantClientCredentials, token)
}

var _ core.CredentialProvider = (*ClientCredentialsProvider)(nil)
