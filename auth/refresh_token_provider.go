package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-authretry/core"
	"golang.org/x/oauth2"
)

const GrantRefreshToken = "refresh_token"

type RefreshTokenConfig struct {
	ClientID     string       `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string       `koanf:"client_secret" mapstructure:"client_secret"`
	TokenURL     string       `koanf:"token_url" mapstructure:"token_url"`
	Scopes       []string     `koanf:"scopes" mapstructure:"scopes"`
	AuthStyle    string       `koanf:"auth_style" mapstructure:"auth_style"`
	RefreshToken string       `koanf:"refresh_token" mapstructure:"refresh_token"`
	HTTPClient   *http.Client `koanf:"-" mapstructure:"-"`
}

// RefreshTokenProvider exchanges a long-lived refresh token for a new access
// token. The refresh token lives in its own CredentialStore so a rotated
// value survives restarts when that store is persistent.
type RefreshTokenProvider struct {
	config     oauth2.Config
	tokens     core.CredentialStore
	httpClient *http.Client
}

// NewRefreshTokenProvider seeds tokens with cfg.RefreshToken when the store
// is empty. A nil store keeps the refresh token in memory.
func NewRefreshTokenProvider(ctx context.Context, cfg RefreshTokenConfig, tokens core.CredentialStore) (*RefreshTokenProvider, error) {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		return nil, configError(GrantRefreshToken, "token_url is required")
	}
	if tokens == nil {
		tokens = core.NewMemoryCredentialStore("")
	}

	seed := core.Credential(strings.TrimSpace(cfg.RefreshToken))
	current, ok, err := tokens.Get(ctx)
	if err != nil {
		return nil, tokenError(GrantRefreshToken, err)
	}
	if !ok {
		if seed.IsZero() {
			return nil, configError(GrantRefreshToken, "refresh_token is required")
		}
		if err := tokens.Set(ctx, seed); err != nil {
			return nil, tokenError(GrantRefreshToken, err)
		}
	} else if current.IsZero() {
		return nil, configError(GrantRefreshToken, "refresh_token is required")
	}

	return &RefreshTokenProvider{
		config: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: authStyle(cfg.AuthStyle),
			},
			Scopes: normalizeValues(cfg.Scopes),
		},
		tokens:     tokens,
		httpClient: cfg.HTTPClient,
	}, nil
}

func (p *RefreshTokenProvider) Obtain(ctx context.Context) (core.Credential, error) {
	if p == nil {
		return "", configError(GrantRefreshToken, "provider is not configured")
	}
	refreshToken, ok, err := p.tokens.Get(ctx)
	if err != nil {
		return "", tokenError(GrantRefreshToken, err)
	}
	if !ok {
		return "", configError(GrantRefreshToken, "no refresh token available")
	}

	source := p.config.TokenSource(withHTTPClient(ctx, p.httpClient), &oauth2.Token{
		RefreshToken: refreshToken.Token(),
	})
	token, err := source.Token()
	if err != nil {
		return "", tokenError(GrantRefreshToken, err)
	}
	credential, err := credentialFromToken(GrantRefreshToken, token)
	if err != nil {
		return "", err
	}

	rotated := core.Credential(strings.TrimSpace(token.RefreshToken))
	if !rotated.IsZero() && rotated != refreshToken {
		if err := p.tokens.Set(ctx, rotated); err != nil {
			return "", tokenError(GrantRefreshToken, err)
		}
	}
	return credential, nil
}

// RefreshToken returns the refresh token currently in use.
func (p *RefreshTokenProvider) RefreshToken(ctx context.Context) (core.Credential, bool, error) {
	if p == nil {
		return "", false, nil
	}
	return p.tokens.Get(ctx)
}

var _ core.CredentialProvider = (*RefreshTokenProvider)(nil)
