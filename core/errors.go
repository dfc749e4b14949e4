package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorTransport         = "AUTH_TRANSPORT_ERROR"
	ErrorRequestFailed     = "AUTH_REQUEST_FAILED"
	ErrorCredentialInvalid = "AUTH_CREDENTIAL_INVALID"
	ErrorRefreshFailed     = "AUTH_REFRESH_FAILED"
	ErrorRetryExhausted    = "AUTH_RETRY_EXHAUSTED"
	ErrorCanceled          = "AUTH_CANCELED"
	ErrorBadInput          = "AUTH_BAD_INPUT"
	ErrorInternal          = "AUTH_INTERNAL_ERROR"
)

const responseMetadataKey = "response"

var (
	ErrEmptyCredential     = errors.New("core: provider returned an empty credential")
	ErrRefreshNotSupported = errors.New("core: credential strategy does not support refresh")
)

func newTransportError(source error, desc RequestDescriptor) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, "core: transport dispatch failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorTransport).
		WithMetadata(map[string]any{
			"operation": desc.OperationName(),
			"retried":   desc.Retried,
		})
}

func newRequestFailedError(desc RequestDescriptor, res TransportResponse, classification Classification) *goerrors.Error {
	code := res.StatusCode
	if code <= 0 {
		code = http.StatusBadGateway
	}
	return goerrors.New(
		fmt.Sprintf("core: request %s failed with status %d", desc.OperationName(), res.StatusCode),
		goerrors.CategoryExternal,
	).
		WithCode(code).
		WithTextCode(ErrorRequestFailed).
		WithMetadata(map[string]any{
			"operation":         desc.OperationName(),
			"retried":           desc.Retried,
			"status_code":       res.StatusCode,
			"error_code":        classification.ErrorCode,
			"classification":    string(classification.Kind),
			responseMetadataKey: res,
		})
}

func newCredentialRejectedError(desc RequestDescriptor, res *TransportResponse, classification Classification, textCode string) *goerrors.Error {
	message := "core: credential rejected"
	if textCode == ErrorRetryExhausted {
		message = "core: credential rejected after refresh and retry"
	}
	metadata := map[string]any{
		"operation":      desc.OperationName(),
		"retried":        desc.Retried,
		"status_code":    classification.StatusCode,
		"error_code":     classification.ErrorCode,
		"classification": string(classification.Kind),
	}
	if res != nil {
		metadata[responseMetadataKey] = *res
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func newRefreshFailure(source error) *goerrors.Error {
	if source == nil {
		source = fmt.Errorf("core: credential refresh failed")
	}
	return goerrors.Wrap(source, goerrors.CategoryAuth, "core: credential refresh failed").
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorRefreshFailed)
}

func newCanceledError(source error) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryOperation, "core: operation canceled").
		WithCode(499).
		WithTextCode(ErrorCanceled)
}

func newBadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func newInternalError(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func IsTransportError(err error) bool { return hasTextCode(err, ErrorTransport) }

func IsRequestFailed(err error) bool { return hasTextCode(err, ErrorRequestFailed) }

func IsCredentialInvalid(err error) bool { return hasTextCode(err, ErrorCredentialInvalid) }

func IsRefreshFailure(err error) bool { return hasTextCode(err, ErrorRefreshFailed) }

func IsRetryExhausted(err error) bool { return hasTextCode(err, ErrorRetryExhausted) }

func IsCanceled(err error) bool {
	return hasTextCode(err, ErrorCanceled) || errors.Is(err, context.Canceled)
}

// ResponseFromError returns the failed response carried by a pipeline error.
func ResponseFromError(err error) (TransportResponse, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil || rich.Metadata == nil {
		return TransportResponse{}, false
	}
	res, ok := rich.Metadata[responseMetadataKey].(TransportResponse)
	return res, ok
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(rich.TextCode), textCode)
}

func clientErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return newCanceledError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryOperation, "core: deadline exceeded").
			WithCode(http.StatusGatewayTimeout))
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newBadInputError(err.Error())
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth:
		return ErrorCredentialInvalid
	case goerrors.CategoryExternal:
		return ErrorTransport
	case goerrors.CategoryOperation:
		return ErrorCanceled
	default:
		return ErrorInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// newRefreshFailureForRequest copies the shared refresh outcome and adds the
// failure that triggered it. The shared error is never modified.
func newRefreshFailureForRequest(source error, desc RequestDescriptor, classification Classification) *goerrors.Error {
	return goerrors.Wrap(newRefreshFailure(source), goerrors.CategoryAuth, "core: request "+desc.OperationName()).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorRefreshFailed).
		WithMetadata(map[string]any{
			"operation":      desc.OperationName(),
			"status_code":    classification.StatusCode,
			"error_code":     classification.ErrorCode,
			"classification": string(classification.Kind),
		})
}
