package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-authclient/core"
)

const sessionCacheKeyPrefix = "go-authclient::session::v1"

// CachedSessionStore serves Load from a read-through cache and invalidates
// the key on every write.
type CachedSessionStore struct {
	base  core.SessionPersister
	cache repositorycache.CacheService
}

func NewCachedSessionStore(base core.SessionPersister, cacheService repositorycache.CacheService) (*CachedSessionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base session store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: session cache service is required")
	}
	return &CachedSessionStore{base: base, cache: cacheService}, nil
}

// SessionCacheKey returns go-authclient::session::v1::<key> with the key
// trimmed and URL-path escaped.
func SessionCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: session key is required")
	}
	return sessionCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedSessionStore) Load(ctx context.Context, key string) (core.PersistedSession, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PersistedSession{}, fmt.Errorf("sqlstore: cached session store is not configured")
	}
	cacheKey, err := SessionCacheKey(key)
	if err != nil {
		return core.PersistedSession{}, err
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.PersistedSession, error) {
		return s.base.Load(ctx, strings.TrimSpace(key))
	})
	if err != nil {
		return core.PersistedSession{}, err
	}
	record.Payload = append([]byte(nil), record.Payload...)
	return record, nil
}

func (s *CachedSessionStore) Save(ctx context.Context, record core.PersistedSession) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	cacheKey, err := SessionCacheKey(record.Key)
	if err != nil {
		return err
	}
	if err := s.base.Save(ctx, record); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedSessionStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	cacheKey, err := SessionCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.SessionPersister = (*CachedSessionStore)(nil)
