package core

import (
	"net/http"
	"strings"
	"time"
)

// RequestDescriptor is an immutable snapshot of one logical outbound call.
// Retried is the only guard against retry loops: a descriptor with Retried
// set is never refreshed and resent again.
type RequestDescriptor struct {
	Kind      string
	Operation string
	Method    string
	URL       string
	Headers   map[string]string
	Query     map[string]string
	Body      []byte
	Metadata  map[string]any
	Timeout   time.Duration
	Retried   bool
}

func (d RequestDescriptor) Clone() RequestDescriptor {
	cloned := d
	cloned.Headers = cloneStringMap(d.Headers)
	cloned.Query = cloneStringMap(d.Query)
	cloned.Metadata = cloneFields(d.Metadata)
	if d.Body != nil {
		cloned.Body = append([]byte(nil), d.Body...)
	}
	return cloned
}

// WithRetry returns a copy marked as the single permitted retry.
func (d RequestDescriptor) WithRetry() RequestDescriptor {
	cloned := d.Clone()
	cloned.Retried = true
	return cloned
}

// WithCredential returns a copy carrying credential in header. A zero
// credential leaves the headers untouched.
func (d RequestDescriptor) WithCredential(header string, scheme string, credential Credential) RequestDescriptor {
	cloned := d.Clone()
	if credential.IsZero() {
		return cloned
	}
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultAuthHeader
	}
	value := credential.Token()
	if scheme = strings.TrimSpace(scheme); scheme != "" {
		value = scheme + " " + value
	}
	for key := range cloned.Headers {
		if strings.EqualFold(key, header) {
			delete(cloned.Headers, key)
		}
	}
	cloned.Headers[http.CanonicalHeaderKey(header)] = value
	return cloned
}

func (d RequestDescriptor) OperationName() string {
	if operation := strings.TrimSpace(d.Operation); operation != "" {
		return operation
	}
	method := strings.TrimSpace(strings.ToUpper(d.Method))
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + strings.TrimSpace(d.URL)
}

func (d RequestDescriptor) transportRequest() TransportRequest {
	return TransportRequest{
		Method:   strings.TrimSpace(strings.ToUpper(d.Method)),
		URL:      strings.TrimSpace(d.URL),
		Headers:  cloneStringMap(d.Headers),
		Query:    cloneStringMap(d.Query),
		Body:     d.Body,
		Metadata: cloneFields(d.Metadata),
		Timeout:  d.Timeout,
	}
}

func cloneStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
