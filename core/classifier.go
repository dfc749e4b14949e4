package core

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

type ClassificationKind string

const (
	ClassificationCredentialInvalid ClassificationKind = "credential_invalid"
	ClassificationOther             ClassificationKind = "other"
)

const (
	reasonCredentialInvalidCode   = "credential_invalid_code"
	reasonCredentialInvalidStatus = "credential_invalid_status"
	reasonUnrecognizedErrorCode   = "unrecognized_error_code"
	reasonNonCredentialFailure    = "non_credential_failure"
	reasonTransportError          = "transport_error"
)

var DefaultErrorCodePaths = []string{"code", "error.code", "errors.0.code", "error_code"}

const DefaultErrorCodeHeader = "X-Error-Code"

// Classification is the immutable verdict for one failed call.
type Classification struct {
	Kind       ClassificationKind
	StatusCode int
	ErrorCode  string
	Reason     string
}

func (c Classification) CredentialInvalid() bool {
	return c.Kind == ClassificationCredentialInvalid
}

// FailedCall is the failure outcome of a dispatch: a transport error, a
// response with a failure status, or both.
type FailedCall struct {
	Response *TransportResponse
	Err      error
}

type ClassifierConfig struct {
	CredentialInvalidCodes    []string
	CredentialInvalidStatuses []int
	ErrorCodePaths            []string
	ErrorCodeHeader           string
}

// Classifier maps failed calls to classifications. It holds only the
// configured code set and is safe to share.
type Classifier struct {
	codes    map[string]struct{}
	statuses map[int]struct{}
	paths    []string
	header   string
}

func NewClassifier(cfg ClassifierConfig) Classifier {
	codes := make(map[string]struct{}, len(cfg.CredentialInvalidCodes))
	for _, code := range cfg.CredentialInvalidCodes {
		if normalized := normalizeErrorCode(code); normalized != "" {
			codes[normalized] = struct{}{}
		}
	}
	statuses := make(map[int]struct{}, len(cfg.CredentialInvalidStatuses))
	for _, status := range cfg.CredentialInvalidStatuses {
		if status > 0 {
			statuses[status] = struct{}{}
		}
	}
	paths := make([]string, 0, len(cfg.ErrorCodePaths))
	for _, path := range cfg.ErrorCodePaths {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	if len(paths) == 0 {
		paths = append(paths, DefaultErrorCodePaths...)
	}
	return Classifier{
		codes:    codes,
		statuses: statuses,
		paths:    paths,
		header:   strings.TrimSpace(cfg.ErrorCodeHeader),
	}
}

func (c Classifier) Classify(call FailedCall) Classification {
	if call.Response == nil {
		return Classification{Kind: ClassificationOther, Reason: reasonTransportError}
	}
	res := *call.Response
	out := Classification{
		Kind:       ClassificationOther,
		StatusCode: res.StatusCode,
		ErrorCode:  c.ExtractErrorCode(res),
		Reason:     reasonNonCredentialFailure,
	}
	if out.ErrorCode != "" {
		if _, ok := c.codes[out.ErrorCode]; ok {
			out.Kind = ClassificationCredentialInvalid
			out.Reason = reasonCredentialInvalidCode
			return out
		}
	}
	if _, ok := c.statuses[res.StatusCode]; ok {
		out.Kind = ClassificationCredentialInvalid
		out.Reason = reasonCredentialInvalidStatus
		return out
	}
	if out.ErrorCode != "" {
		out.Reason = reasonUnrecognizedErrorCode
	}
	return out
}

// ExtractErrorCode reads the server-supplied error code from the configured
// header or, failing that, the first configured JSON path that holds a value.
func (c Classifier) ExtractErrorCode(res TransportResponse) string {
	if c.header != "" {
		for key, value := range res.Headers {
			if http.CanonicalHeaderKey(key) != http.CanonicalHeaderKey(c.header) {
				continue
			}
			if code := normalizeErrorCode(value); code != "" {
				return code
			}
		}
	}
	if len(res.Body) == 0 || !gjson.ValidBytes(res.Body) {
		return ""
	}
	for _, path := range c.paths {
		result := gjson.GetBytes(res.Body, path)
		if !result.Exists() {
			continue
		}
		switch result.Type {
		case gjson.String, gjson.Number:
			if code := normalizeErrorCode(result.String()); code != "" {
				return code
			}
		}
	}
	return ""
}

func normalizeErrorCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
