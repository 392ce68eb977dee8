package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/metrics"
	"github.com/chiwei-platform/config-service/internal/port"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// DefaultReleaseCacheSize 是缓存的作用域数量上限。
const DefaultReleaseCacheSize = 10000

var _ port.ReleaseRepository = (*CachedReleaseRepo)(nil)

// CachedReleaseRepo 缓存每个作用域的最新发布（包括"不存在"），
// 由变更日志驱动失效，因此缓存永远不会比已投递的通知更旧。
type CachedReleaseRepo struct {
	inner port.ReleaseRepository
	cache *lru.Cache
	group singleflight.Group

	// 每次失效递增；加载期间发生过失效的结果不写入缓存，
	// 也不会与失效之后发起的加载合并。
	mu         sync.Mutex
	generation uint64
}

type cachedRelease struct {
	release *domain.Release // nil 表示作用域下没有有效发布
}

func NewCachedReleaseRepo(inner port.ReleaseRepository, size int) (*CachedReleaseRepo, error) {
	if size <= 0 {
		size = DefaultReleaseCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedReleaseRepo{inner: inner, cache: cache}, nil
}

func (r *CachedReleaseRepo) FindLatestActive(ctx context.Context, appID, clusterName, namespaceName string) (*domain.Release, error) {
	key := releaseCacheKey(appID, clusterName, namespaceName)
	if v, ok := r.cache.Get(key); ok {
		metrics.ReleaseCacheLookups.WithLabelValues("hit").Inc()
		return v.(cachedRelease).unwrap()
	}
	metrics.ReleaseCacheLookups.WithLabelValues("miss").Inc()

	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()

	// 共享的加载不随发起者的 ctx 取消
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		release, err := r.inner.FindLatestActive(loadCtx, appID, clusterName, namespaceName)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		entry := cachedRelease{release: release}
		r.mu.Lock()
		if r.generation == gen {
			r.cache.Add(key, entry)
		}
		r.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cachedRelease).unwrap()
}

func (r *CachedReleaseRepo) FindByID(ctx context.Context, id int64) (*domain.Release, error) {
	return r.inner.FindByID(ctx, id)
}

// HandleMessage 使变更日志所指作用域的缓存失效。
func (r *CachedReleaseRepo) HandleMessage(_ context.Context, msg *domain.ReleaseMessage) {
	r.Invalidate(msg.Message)
}

// Invalidate 丢弃 watch key 对应作用域的缓存，并让进行中的加载结果作废。
func (r *CachedReleaseRepo) Invalidate(watchKey string) {
	scope, ok := domain.ParseWatchKey(watchKey)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.cache.Remove(releaseCacheKey(scope.AppID, scope.ClusterName, scope.NamespaceName))
}

func (r *CachedReleaseRepo) Len() int {
	return r.cache.Len()
}

// releaseCacheKey 与 ReleaseRepo 的查询条件一致：appId、cluster 区分大小写，namespace 不区分。
func releaseCacheKey(appID, clusterName, namespaceName string) string {
	return domain.AssembleWatchKey(appID, clusterName, strings.ToLower(namespaceName))
}

func (e cachedRelease) unwrap() (*domain.Release, error) {
	if e.release == nil {
		return nil, domain.ErrReleaseNotFound
	}
	return e.release, nil
}
