package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-authretry/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-authretry::credential::v1"

type cachedCredential struct {
	Token string
	Found bool
}

// CachedCredentialStore reads through a cache in front of a persistent
// store. Writes go to the base store first and then drop the cached entry.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
	key   string
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
	key string,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		if keyed, ok := base.(interface{ Key() string }); ok {
			key = keyed.Key()
		}
	}
	if key == "" {
		key = DefaultStoreKey
	}
	return &CachedCredentialStore{base: base, cache: cacheService, key: key}, nil
}

// CredentialCacheKey returns go-authretry::credential::v1::<store_key> with
// the key URL-path escaped.
func CredentialCacheKey(storeKey string) string {
	return credentialCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(storeKey))
}

func (s *CachedCredentialStore) Get(ctx context.Context) (core.Credential, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", false, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cached, err := repositorycache.GetOrFetch(ctx, s.cache, CredentialCacheKey(s.key), func(ctx context.Context) (cachedCredential, error) {
		credential, ok, fetchErr := s.base.Get(ctx)
		if fetchErr != nil {
			return cachedCredential{}, fetchErr
		}
		return cachedCredential{Token: credential.Token(), Found: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	if !cached.Found {
		return "", false, nil
	}
	return core.Credential(cached.Token), true, nil
}

func (s *CachedCredentialStore) Set(ctx context.Context, credential core.Credential) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Set(ctx, credential); err != nil {
		return err
	}
	return s.cache.Delete(ctx, CredentialCacheKey(s.key))
}

func (s *CachedCredentialStore) Clear(ctx context.Context) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Clear(ctx); err != nil {
		return err
	}
	return s.cache.Delete(ctx, CredentialCacheKey(s.key))
}
