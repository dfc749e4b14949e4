package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-authretry/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubCredentialStore struct {
	mu         sync.Mutex
	credential core.Credential
	getCalls   int
	setCalls   int
	getErr     error
	setErr     error
}

func (s *stubCredentialStore) Get(context.Context) (core.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.credential, !s.credential.IsZero(), nil
}

func (s *stubCredentialStore) Set(_ context.Context, credential core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.credential = credential
	return nil
}

func (s *stubCredentialStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = ""
	return nil
}

func TestCachedCredentialStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubCredentialStore{credential: "tok-1"}
	store, err := NewCachedCredentialStore(base, newTestCredentialCacheService(t), "")
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	for i := 0; i < 2; i++ {
		credential, ok, err := store.Get(context.Background())
		if err != nil || !ok || credential.Token() != "tok-1" {
			t.Fatalf("get %d: %q ok=%v err=%v", i, credential.Token(), ok, err)
		}
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedCredentialStore_SetAndClearInvalidate(t *testing.T) {
	base := &stubCredentialStore{credential: "tok-1"}
	store, err := NewCachedCredentialStore(base, newTestCredentialCacheService(t), "access_token")
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	if _, _, err := store.Get(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Set(ctx, "tok-2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	credential, _, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if credential.Token() != "tok-2" {
		t.Fatalf("expected invalidated cache to return tok-2, got %q", credential.Token())
	}
	if base.getCalls != 2 {
		t.Fatalf("expected refetch after set, base get calls=%d", base.getCalls)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx); ok {
		t.Fatalf("expected cleared credential")
	}
}

func TestCachedCredentialStore_SetErrorKeepsCache(t *testing.T) {
	base := &stubCredentialStore{credential: "tok-1"}
	store, err := NewCachedCredentialStore(base, newTestCredentialCacheService(t), "")
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()
	if _, _, err := store.Get(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	base.setErr = errors.New("write failed")
	if err := store.Set(ctx, "tok-2"); err == nil {
		t.Fatalf("expected set error")
	}
	credential, _, _ := store.Get(ctx)
	if credential.Token() != "tok-1" || base.getCalls != 1 {
		t.Fatalf("expected cached tok-1 after failed write, got %q calls=%d", credential.Token(), base.getCalls)
	}
}

func TestCachedCredentialStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedCredentialStore(nil, newTestCredentialCacheService(t), ""); err == nil {
		t.Fatalf("expected missing base error")
	}
	if _, err := NewCachedCredentialStore(&stubCredentialStore{}, nil, ""); err == nil {
		t.Fatalf("expected missing cache error")
	}
}

func TestCredentialCacheKey_EscapesStoreKey(t *testing.T) {
	if got := CredentialCacheKey("tenant/a b"); got != "go-authretry::credential::v1::tenant%2Fa%20b" {
		t.Fatalf("unexpected cache key %q", got)
	}
}

func newTestCredentialCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
