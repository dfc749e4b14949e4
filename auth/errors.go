package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

const (
	ErrorProviderConfig = "AUTH_PROVIDER_CONFIG_INVALID"
	ErrorTokenEndpoint  = "AUTH_TOKEN_ENDPOINT_ERROR"
	ErrorTokenCanceled  = "AUTH_TOKEN_CANCELED"
)

func configError(grant, message string) *goerrors.Error {
	return goerrors.New("auth: "+grant+" "+message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorProviderConfig).
		WithMetadata(map[string]any{"grant": grant})
}

// tokenError maps a token endpoint failure into an error envelope. OAuth
// error responses keep their status and error code in metadata.
func tokenError(grant string, err error) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "auth: "+grant+" token request interrupted").
			WithCode(499).
			WithTextCode(ErrorTokenCanceled).
			WithMetadata(map[string]any{"grant": grant})
	}

	metadata := map[string]any{"grant": grant}
	status := http.StatusBadGateway
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			metadata["status"] = retrieveErr.Response.StatusCode
			if retrieveErr.Response.StatusCode >= 400 {
				status = retrieveErr.Response.StatusCode
			}
		}
		if code := strings.TrimSpace(retrieveErr.ErrorCode); code != "" {
			metadata["error_code"] = code
		}
		if description := strings.TrimSpace(retrieveErr.ErrorDescription); description != "" {
			metadata["error_description"] = description
		}
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "auth: "+grant+" token request failed").
		WithCode(status).
		WithTextCode(ErrorTokenEndpoint).
		WithMetadata(metadata)
}
