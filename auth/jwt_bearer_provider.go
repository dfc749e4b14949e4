package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-authretry/core"
	"golang.org/x/oauth2/jwt"
)

const GrantJWTBearer = "jwt_bearer"

type JWTBearerConfig struct {
	Issuer       string        `koanf:"issuer" mapstructure:"issuer"`
	Subject      string        `koanf:"subject" mapstructure:"subject"`
	Audience     string        `koanf:"audience" mapstructure:"audience"`
	TokenURL     string        `koanf:"token_url" mapstructure:"token_url"`
	PrivateKey   string        `koanf:"private_key" mapstructure:"private_key"`
	PrivateKeyID string        `koanf:"private_key_id" mapstructure:"private_key_id"`
	Scopes       []string      `koanf:"scopes" mapstructure:"scopes"`
	AssertionTTL time.Duration `koanf:"assertion_ttl" mapstructure:"assertion_ttl"`
	HTTPClient   *http.Client  `koanf:"-" mapstructure:"-"`
}

// JWTBearerProvider signs a service account assertion with an RSA key and
// trades it for an access token (RFC 7523).
type JWTBearerProvider struct {
	config     jwt.Config
	httpClient *http.Client
}

func NewJWTBearerProvider(cfg JWTBearerConfig) (*JWTBearerProvider, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if issuer == "" {
		return nil, configError(GrantJWTBearer, "issuer is required")
	}
	if tokenURL == "" {
		return nil, configError(GrantJWTBearer, "token_url is required")
	}
	if privateKey == "" {
		return nil, configError(GrantJWTBearer, "private_key is required")
	}
	ttl := cfg.AssertionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &JWTBearerProvider{
		config: jwt.Config{
			Email:        issuer,
			Subject:      strings.TrimSpace(cfg.Subject),
			Audience:     strings.TrimSpace(cfg.Audience),
			TokenURL:     tokenURL,
			PrivateKey:   []byte(privateKey),
			PrivateKeyID: strings.TrimSpace(cfg.PrivateKeyID),
			Scopes:       normalizeValues(cfg.Scopes),
			Expires:      ttl,
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

func (p *JWTBearerProvider) Obtain(ctx context.Context) (core.Credential, error) {
	if p == nil {
		return "", configError(GrantJWTBearer, "provider is not configured")
	}
	token, err := p.config.TokenSource(withHTTPClient(ctx, p.httpClient)).Token()
	if err != nil {
		return "", tokenError(GrantJWTBearer, err)
	}
	return credentialFromToken(GrantJWTBearer, token)
}

var _ core.CredentialProvider = (*JWTBearerProvider)(nil)
