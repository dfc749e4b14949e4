package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/goliatone/go-authretry/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	KindJSON      = "json"
	KindForm      = "form"
	KindMultipart = "multipart"
	KindGraphQL   = "graphql"
)

// Metadata keys read by the form and multipart adapters when the request
// carries no pre-encoded body.
const (
	MetadataFormFields = "form_fields"
	MetadataFormFiles  = "form_files"

	MetadataGraphQLQuery     = "query"
	MetadataGraphQLOperation = "operation_name"
	MetadataGraphQLVariables = "variables"
)

// FormFile is one file part of a multipart request.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

type bodyEncoder func(req core.TransportRequest) ([]byte, string, error)

// ProtocolHTTPAdapter is a RESTAdapter with per-content-type defaults. All
// kinds share one dispatch path and differ only in headers and body encoding.
type ProtocolHTTPAdapter struct {
	kind          string
	defaultMethod string
	defaultHeader map[string]string
	encode        bodyEncoder
	// wrapBody runs encode even when the request already has a body.
	wrapBody bool
	rest     *RESTAdapter
}

func NewJSONAdapter(client HTTPDoer) *ProtocolHTTPAdapter {
	return newProtocolHTTPAdapter(KindJSON, client, http.MethodPost, map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}, nil)
}

func NewFormAdapter(client HTTPDoer) *ProtocolHTTPAdapter {
	return newProtocolHTTPAdapter(KindForm, client, http.MethodPost, map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	}, encodeForm)
}

func NewMultipartAdapter(client HTTPDoer) *ProtocolHTTPAdapter {
	return newProtocolHTTPAdapter(KindMultipart, client, http.MethodPost, map[string]string{
		"Accept": "application/json",
	}, encodeMultipart)
}

// NewGraphQLAdapter posts {query, operationName, variables}. The query comes
// from the "query" metadata key or, failing that, the raw request body.
func NewGraphQLAdapter(client HTTPDoer) *ProtocolHTTPAdapter {
	adapter := newProtocolHTTPAdapter(KindGraphQL, client, http.MethodPost, map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}, encodeGraphQL)
	adapter.wrapBody = true
	return adapter
}

func newProtocolHTTPAdapter(
	kind string,
	client HTTPDoer,
	defaultMethod string,
	defaultHeaders map[string]string,
	encode bodyEncoder,
) *ProtocolHTTPAdapter {
	return &ProtocolHTTPAdapter{
		kind:          normalizeKind(kind),
		defaultMethod: strings.TrimSpace(strings.ToUpper(defaultMethod)),
		defaultHeader: cloneHeaders(defaultHeaders),
		encode:        encode,
		rest:          NewRESTAdapter(client),
	}
}

func (a *ProtocolHTTPAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *ProtocolHTTPAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.rest == nil {
		return core.TransportResponse{}, transportError(
			"transport: protocol adapter is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	resolved := req
	if strings.TrimSpace(resolved.Method) == "" {
		resolved.Method = a.defaultMethod
	}
	headers := cloneHeaders(a.defaultHeader)
	if a.encode != nil && (len(req.Body) == 0 || a.wrapBody) {
		body, contentType, err := a.encode(req)
		if err != nil {
			return core.TransportResponse{}, transportWrapError(
				err,
				goerrors.CategoryBadInput,
				"transport: encode request body",
				http.StatusBadRequest,
				map[string]any{"adapter": a.kind},
			)
		}
		resolved.Body = body
		if contentType != "" {
			headers["Content-Type"] = contentType
		}
	}
	for key, value := range req.Headers {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		headers[trimmed] = strings.TrimSpace(value)
	}
	resolved.Headers = headers
	response, err := a.rest.Do(ctx, resolved)
	if err != nil {
		return core.TransportResponse{}, err
	}
	response.Metadata = cloneMetadata(response.Metadata)
	response.Metadata["kind"] = a.kind
	return response, nil
}

func encodeForm(req core.TransportRequest) ([]byte, string, error) {
	fields, err := formFields(req.Metadata)
	if err != nil || len(fields) == 0 {
		return nil, "", err
	}
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	return []byte(values.Encode()), "", nil
}

func encodeGraphQL(req core.TransportRequest) ([]byte, string, error) {
	query, _ := req.Metadata[MetadataGraphQLQuery].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		query = strings.TrimSpace(string(req.Body))
	}
	if query == "" {
		return nil, "", fmt.Errorf("transport: graphql query is required")
	}
	payload := map[string]any{"query": query}
	if name, _ := req.Metadata[MetadataGraphQLOperation].(string); strings.TrimSpace(name) != "" {
		payload["operationName"] = strings.TrimSpace(name)
	}
	if variables, ok := req.Metadata[MetadataGraphQLVariables].(map[string]any); ok {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return body, "", nil
}

func encodeMultipart(req core.TransportRequest) ([]byte, string, error) {
	fields, err := formFields(req.Metadata)
	if err != nil {
		return nil, "", err
	}
	files, _ := req.Metadata[MetadataFormFiles].([]FormFile)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", err
		}
	}
	for _, file := range files {
		if strings.TrimSpace(file.Field) == "" {
			return nil, "", fmt.Errorf("transport: multipart file field is required")
		}
		part, err := createFilePart(writer, file)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func createFilePart(writer *multipart.Writer, file FormFile) (io.Writer, error) {
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		return writer.CreateFormFile(file.Field, file.Filename)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
	header.Set("Content-Type", contentType)
	return writer.CreatePart(header)
}

func formFields(metadata map[string]any) (map[string]string, error) {
	raw, ok := metadata[MetadataFormFields]
	if !ok || raw == nil {
		return map[string]string{}, nil
	}
	switch typed := raw.(type) {
	case map[string]string:
		return cloneHeaders(typed), nil
	case map[string]any:
		out := make(map[string]string, len(typed))
		for key, value := range typed {
			out[key] = fmt.Sprint(value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("transport: %s must be a string map, got %T", MetadataFormFields, raw)
	}
}

func cloneHeaders(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		out[trimmed] = strings.TrimSpace(value)
	}
	return out
}

func cloneMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

var _ core.Transport = (*ProtocolHTTPAdapter)(nil)
