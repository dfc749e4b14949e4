package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func generateTestRSAPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block))
}

func TestJWTBearerProvider_ObtainSignsAssertion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Fatalf("unexpected grant type %q", got)
		}
		parts := strings.Split(r.Form.Get("assertion"), ".")
		if len(parts) != 3 {
			t.Fatalf("expected signed jwt assertion, got %d parts", len(parts))
		}
		raw, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			t.Fatalf("decode claims: %v", err)
		}
		claims := map[string]any{}
		if err := json.Unmarshal(raw, &claims); err != nil {
			t.Fatalf("unmarshal claims: %v", err)
		}
		if claims["iss"] != "svc@example.com" || claims["sub"] != "user-7" {
			t.Fatalf("unexpected claims %#v", claims)
		}
		if claims["scope"] != "repo:read" {
			t.Fatalf("expected scope claim, got %#v", claims["scope"])
		}
		writeToken(t, w, map[string]any{"access_token": "jwt-access", "token_type": "bearer", "expires_in": 600})
	}))
	defer server.Close()

	provider, err := NewJWTBearerProvider(JWTBearerConfig{
		Issuer:     "svc@example.com",
		Subject:    "user-7",
		TokenURL:   server.URL,
		PrivateKey: generateTestRSAPrivateKeyPEM(t),
		Scopes:     []string{"repo:read"},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	credential, err := provider.Obtain(context.Background())
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if credential.Token() != "jwt-access" {
		t.Fatalf("unexpected access token %q", credential.Token())
	}
}

func TestJWTBearerProvider_RequiresConfig(t *testing.T) {
	_, err := NewJWTBearerProvider(JWTBearerConfig{Issuer: "svc", TokenURL: "https://oauth.example/token"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != ErrorProviderConfig {
		t.Fatalf("expected provider config error, got %v", err)
	}
}

func TestJWTBearerProvider_InvalidKeyFails(t *testing.T) {
	provider, err := NewJWTBearerProvider(JWTBearerConfig{
		Issuer:     "svc@example.com",
		TokenURL:   "https://oauth.example/token",
		PrivateKey: "not-a-key",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Obtain(context.Background()); err == nil {
		t.Fatalf("expected invalid private key to fail")
	}
}
