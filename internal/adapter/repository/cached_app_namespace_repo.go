package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
	lru "github.com/hashicorp/golang-lru"
	"github.com/juju/clock"
)

const (
	DefaultAppNamespaceCacheSize = 10000
	DefaultAppNamespaceCacheTTL  = time.Minute
)

var _ port.AppNamespaceRepository = (*CachedAppNamespaceRepo)(nil)

// CachedAppNamespaceRepo 按 TTL 缓存 namespace 归属查询。
// namespace 的创建与公开属性变更不经过变更日志，只能靠过期刷新。
type CachedAppNamespaceRepo struct {
	inner port.AppNamespaceRepository
	cache *lru.Cache
	clock clock.Clock
	ttl   time.Duration
}

type cachedAppNamespace struct {
	namespace *domain.AppNamespace // nil 表示不存在
	expiresAt time.Time
}

func NewCachedAppNamespaceRepo(inner port.AppNamespaceRepository, size int, ttl time.Duration, clk clock.Clock) (*CachedAppNamespaceRepo, error) {
	if size <= 0 {
		size = DefaultAppNamespaceCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultAppNamespaceCacheTTL
	}
	if clk == nil {
		clk = clock.WallClock
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedAppNamespaceRepo{inner: inner, cache: cache, clock: clk, ttl: ttl}, nil
}

func (r *CachedAppNamespaceRepo) FindByAppAndName(ctx context.Context, appID, namespaceName string) (*domain.AppNamespace, error) {
	// 与 AppNamespaceRepo 一致：appId 区分大小写，namespace 不区分
	key := "app:" + appID + "+" + strings.ToLower(namespaceName)
	return r.lookup(key, func() (*domain.AppNamespace, error) {
		return r.inner.FindByAppAndName(ctx, appID, namespaceName)
	})
}

func (r *CachedAppNamespaceRepo) FindPublicByName(ctx context.Context, namespaceName string) (*domain.AppNamespace, error) {
	key := "public:" + strings.ToLower(namespaceName)
	return r.lookup(key, func() (*domain.AppNamespace, error) {
		return r.inner.FindPublicByName(ctx, namespaceName)
	})
}

func (r *CachedAppNamespaceRepo) lookup(key string, load func() (*domain.AppNamespace, error)) (*domain.AppNamespace, error) {
	now := r.clock.Now()
	if v, ok := r.cache.Get(key); ok {
		entry := v.(cachedAppNamespace)
		if now.Before(entry.expiresAt) {
			return entry.unwrap()
		}
		r.cache.Remove(key)
	}

	ns, err := load()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	entry := cachedAppNamespace{namespace: ns, expiresAt: now.Add(r.ttl)}
	r.cache.Add(key, entry)
	return entry.unwrap()
}

func (e cachedAppNamespace) unwrap() (*domain.AppNamespace, error) {
	if e.namespace == nil {
		return nil, domain.ErrAppNamespaceNotFound
	}
	return e.namespace, nil
}
