package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type kindContextKey struct{}

// ContextWithTransportKind tags ctx so Do and RoundTrip route requests to
// the named transport.
func ContextWithTransportKind(ctx context.Context, kind string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, kindContextKey{}, strings.TrimSpace(kind))
}

func transportKindFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	kind, _ := ctx.Value(kindContextKey{}).(string)
	return kind
}

// DescriptorFromHTTPRequest snapshots req, consuming its body.
func DescriptorFromHTTPRequest(req *http.Request) (RequestDescriptor, error) {
	if req == nil || req.URL == nil {
		return RequestDescriptor{}, newBadInputError("core: http request is required")
	}
	desc := RequestDescriptor{
		Kind:    transportKindFromContext(req.Context()),
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: make(map[string]string, len(req.Header)),
	}
	for key, values := range req.Header {
		desc.Headers[key] = strings.Join(values, ", ")
	}
	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return RequestDescriptor{}, newBadInputError(fmt.Sprintf("core: read request body: %v", err))
		}
		desc.Body = body
	}
	return desc, nil
}

// Do sends req through the pipeline.
func (c *Client) Do(ctx context.Context, req *http.Request) (Response, error) {
	desc, err := DescriptorFromHTTPRequest(req)
	if err != nil {
		return Response{}, c.mapError(err)
	}
	if ctx == nil {
		ctx = req.Context()
	}
	if desc.Kind == "" {
		desc.Kind = transportKindFromContext(ctx)
	}
	return c.Send(ctx, desc)
}

// RoundTripper exposes the client as an http.RoundTripper. Failures that
// carry a server response are returned as that response; only failures
// without one surface as errors.
func (c *Client) RoundTripper() http.RoundTripper {
	return roundTripper{client: c}
}

type roundTripper struct {
	client *Client
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := rt.client.Do(req.Context(), req)
	if err != nil {
		failed, ok := ResponseFromError(err)
		if !ok {
			return nil, err
		}
		res = failed
	}
	return toHTTPResponse(req, res), nil
}

func toHTTPResponse(req *http.Request, res Response) *http.Response {
	header := make(http.Header, len(res.Headers))
	for key, value := range res.Headers {
		header.Set(key, value)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode)),
		StatusCode:    res.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(res.Body)),
		ContentLength: int64(len(res.Body)),
		Request:       req,
	}
}
