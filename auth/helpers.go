package auth

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/goliatone/go-authretry/core"
	"golang.org/x/oauth2"
)

const (
	AuthStyleAuto   = "auto"
	AuthStyleHeader = "header"
	AuthStyleParams = "params"
)

func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		lowered := strings.ToLower(trimmed)
		if _, ok := seen[lowered]; ok {
			continue
		}
		seen[lowered] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func authStyle(value string) oauth2.AuthStyle {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case AuthStyleHeader:
		return oauth2.AuthStyleInHeader
	case AuthStyleParams:
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

// withHTTPClient routes token requests through client when one is set.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func credentialFromToken(grant string, token *oauth2.Token) (core.Credential, error) {
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return "", tokenError(grant, core.ErrEmptyCredential)
	}
	return core.Credential(token.AccessToken), nil
}
