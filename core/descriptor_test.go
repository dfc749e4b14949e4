package core

import (
	"context"
	"testing"
)

func TestRequestDescriptor_WithCredentialReplacesHeader(t *testing.T) {
	desc := RequestDescriptor{
		Method:  "get",
		URL:     "https://api.example.com/me",
		Headers: map[string]string{"authorization": "Bearer old", "Accept": "application/json"},
	}
	attached := desc.WithCredential("", DefaultAuthScheme, "new")

	if attached.Headers["Authorization"] != "Bearer new" {
		t.Fatalf("expected canonical header with new credential, got %#v", attached.Headers)
	}
	if _, ok := attached.Headers["authorization"]; ok {
		t.Fatalf("expected case-insensitive duplicate removed")
	}
	if desc.Headers["authorization"] != "Bearer old" {
		t.Fatalf("original descriptor was mutated")
	}
	if attached.Headers["Accept"] != "application/json" {
		t.Fatalf("expected unrelated headers kept")
	}
}

func TestRequestDescriptor_ZeroCredentialAttachesNothing(t *testing.T) {
	attached := RequestDescriptor{URL: "https://api.example.com"}.WithCredential(DefaultAuthHeader, DefaultAuthScheme, "")
	if len(attached.Headers) != 0 {
		t.Fatalf("expected no headers, got %#v", attached.Headers)
	}
}

func TestRequestDescriptor_WithRetryCopies(t *testing.T) {
	desc := RequestDescriptor{URL: "https://api.example.com", Body: []byte("payload"), Metadata: map[string]any{"k": "v"}}
	retry := desc.WithRetry()
	if !retry.Retried || desc.Retried {
		t.Fatalf("expected only the copy to be marked retried")
	}
	retry.Body[0] = 'X'
	retry.Metadata["k"] = "changed"
	if string(desc.Body) != "payload" || desc.Metadata["k"] != "v" {
		t.Fatalf("retry copy shares state with original")
	}
}

func TestRequestDescriptor_OperationName(t *testing.T) {
	if got := (RequestDescriptor{URL: "https://api.example.com/me"}).OperationName(); got != "GET https://api.example.com/me" {
		t.Fatalf("unexpected derived operation %q", got)
	}
	if got := (RequestDescriptor{Operation: "profile", URL: "x"}).OperationName(); got != "profile" {
		t.Fatalf("unexpected explicit operation %q", got)
	}
}

func TestMemoryCredentialStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore("")
	if _, ok, err := store.Get(ctx); ok || err != nil {
		t.Fatalf("expected empty store")
	}
	if err := store.Set(ctx, "token"); err != nil {
		t.Fatalf("set: %v", err)
	}
	credential, ok, _ := store.Get(ctx)
	if !ok || credential != "token" {
		t.Fatalf("expected stored credential")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx); ok {
		t.Fatalf("expected cleared store")
	}
}

func TestCredentialStringIsRedacted(t *testing.T) {
	credential := Credential("super-secret")
	if credential.String() != RedactedValue {
		t.Fatalf("expected redacted string")
	}
	if credential.Token() != "super-secret" {
		t.Fatalf("expected raw token")
	}
}

func TestRedactSensitiveMap(t *testing.T) {
	out := RedactSensitiveMap(map[string]any{
		"access_token":        "abc",
		"credential_strategy": StrategyRefreshing,
		"has_credential":      true,
		"headers":             map[string]string{"Authorization": "Bearer abc", "Accept": "*/*"},
	})
	if out["access_token"] != RedactedValue {
		t.Fatalf("expected token redacted")
	}
	if out["credential_strategy"] != StrategyRefreshing || out["has_credential"] != true {
		t.Fatalf("expected traceability keys kept, got %#v", out)
	}
	headers, _ := out["headers"].(map[string]string)
	if headers["Authorization"] != RedactedValue || headers["Accept"] != "*/*" {
		t.Fatalf("unexpected header redaction %#v", headers)
	}
}
