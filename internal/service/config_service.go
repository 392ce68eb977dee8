package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/metrics"
	"github.com/chiwei-platform/config-service/internal/port"
)

// releaseKeySeparator 拼接多层 Release（App 自身、公共 namespace）的 releaseKey。
const releaseKeySeparator = "+"

type ConfigService struct {
	releases   port.ReleaseRepository
	gray       port.GrayReleaseMatcher
	namespaces *NamespaceNormalizer
}

func NewConfigService(
	releases port.ReleaseRepository,
	gray port.GrayReleaseMatcher,
	namespaces *NamespaceNormalizer,
) *ConfigService {
	return &ConfigService{
		releases:   releases,
		gray:       gray,
		namespaces: namespaces,
	}
}

// ClientInfo 标识发起请求的客户端，用于灰度规则匹配。
type ClientInfo struct {
	AppID string
	IP    string
	Label string
}

// Resolve 计算客户端在 (appID, clusterName, namespaceName) 下生效的 Release。
// 回退顺序：指定集群 → dataCenter → default 集群，每一层都先查灰度再查最新发布。
func (s *ConfigService) Resolve(ctx context.Context, client ClientInfo, appID, clusterName, namespaceName, dataCenter string) (*domain.Release, error) {
	if clusterName != domain.DefaultClusterName {
		release, err := s.findRelease(ctx, client, appID, clusterName, namespaceName)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return release, err
		}
	}

	if dataCenter != "" && dataCenter != clusterName {
		release, err := s.findRelease(ctx, client, appID, dataCenter, namespaceName)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return release, err
		}
	}

	return s.findRelease(ctx, client, appID, domain.DefaultClusterName, namespaceName)
}

func (s *ConfigService) findRelease(ctx context.Context, client ClientInfo, appID, clusterName, namespaceName string) (*domain.Release, error) {
	if id, ok := s.gray.FindReleaseID(client.AppID, client.IP, client.Label, appID, clusterName, namespaceName); ok {
		release, err := s.releases.FindByID(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if err == nil && release.Effective() {
			return release, nil
		}
	}

	release, err := s.releases.FindLatestActive(ctx, appID, clusterName, namespaceName)
	if err != nil {
		return nil, err
	}
	if !release.Effective() {
		return nil, domain.ErrReleaseNotFound
	}
	return release, nil
}

type ConfigQuery struct {
	AppID         string
	ClusterName   string
	NamespaceName string
	DataCenter    string
	ReleaseKey    string // 客户端当前持有的 releaseKey，相同则返回 NotModified
	ClientIP      string
	ClientLabel   string
}

type ConfigResult struct {
	AppID          string                 `json:"appId"`
	Cluster        string                 `json:"cluster"`
	NamespaceName  string                 `json:"namespaceName"`
	Configurations *domain.Configurations `json:"configurations"`
	ReleaseKey     string                 `json:"releaseKey"`

	NotModified bool `json:"-"`
}

func (q ConfigQuery) validate() error {
	if err := domain.ValidateName("appId", q.AppID); err != nil {
		return err
	}
	if err := domain.ValidateName("cluster", q.ClusterName); err != nil {
		return err
	}
	if err := domain.ValidateName("namespace", q.NamespaceName); err != nil {
		return err
	}
	return domain.ValidateOptionalName("dataCenter", q.DataCenter)
}

// QueryConfig 返回客户端的生效配置。namespace 为其他 App 的公共 namespace 时，
// 公共配置与 App 自身的覆盖配置合并，App 的值优先。
func (s *ConfigService) QueryConfig(ctx context.Context, q ConfigQuery) (*ConfigResult, error) {
	if err := q.validate(); err != nil {
		metrics.ConfigQueries.WithLabelValues("invalid").Inc()
		return nil, err
	}

	namespace := s.namespaces.Normalize(ctx, q.AppID, q.NamespaceName)
	client := ClientInfo{AppID: q.AppID, IP: q.ClientIP, Label: q.ClientLabel}

	var releases []*domain.Release
	appRelease, err := s.resolveOptional(ctx, client, q.AppID, q.ClusterName, namespace, q.DataCenter)
	if err != nil {
		metrics.ConfigQueries.WithLabelValues("error").Inc()
		return nil, err
	}
	if appRelease != nil {
		releases = append(releases, appRelease)
	}

	owner, public, err := s.namespaces.PublicOwner(ctx, q.AppID, namespace)
	if err != nil {
		metrics.ConfigQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve public namespace %s: %w", namespace, err)
	}
	if public {
		publicRelease, err := s.resolveOptional(ctx, client, owner, q.ClusterName, namespace, q.DataCenter)
		if err != nil {
			metrics.ConfigQueries.WithLabelValues("error").Inc()
			return nil, err
		}
		if publicRelease != nil {
			releases = append(releases, publicRelease)
		}
	}

	if len(releases) == 0 {
		metrics.ConfigQueries.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%s: %w", domain.AssembleWatchKey(q.AppID, q.ClusterName, namespace), domain.ErrReleaseNotFound)
	}

	keys := make([]string, len(releases))
	layers := make([]*domain.Configurations, len(releases))
	for i, r := range releases {
		keys[i] = r.ReleaseKey
		// 后面的层覆盖前面的层，App 自身的 Release 放在最后
		layers[len(releases)-1-i] = r.Configurations
	}
	result := &ConfigResult{
		AppID:         q.AppID,
		Cluster:       releases[0].ClusterName,
		NamespaceName: q.NamespaceName,
		ReleaseKey:    strings.Join(keys, releaseKeySeparator),
	}

	if q.ReleaseKey != "" && q.ReleaseKey == result.ReleaseKey {
		metrics.ConfigQueries.WithLabelValues("not_modified").Inc()
		result.NotModified = true
		return result, nil
	}

	result.Configurations = domain.Merge(layers...)
	metrics.ConfigQueries.WithLabelValues("ok").Inc()
	return result, nil
}

// ConfigFile 返回合并后的扁平配置，不做 releaseKey 比较。
func (s *ConfigService) ConfigFile(ctx context.Context, q ConfigQuery) (*domain.Configurations, error) {
	q.ReleaseKey = ""
	result, err := s.QueryConfig(ctx, q)
	if err != nil {
		return nil, err
	}
	return result.Configurations, nil
}

// CompareReleases 对比两个 Release 的配置差异。baseReleaseID 为 0 时视为与空配置比较。
func (s *ConfigService) CompareReleases(ctx context.Context, baseReleaseID, toReleaseID int64) ([]domain.ConfigChange, error) {
	if baseReleaseID < 0 {
		return nil, fmt.Errorf("%w: baseReleaseId must not be negative", domain.ErrInvalidInput)
	}
	if toReleaseID <= 0 {
		return nil, fmt.Errorf("%w: toReleaseId is required", domain.ErrInvalidInput)
	}

	var base *domain.Configurations
	if baseReleaseID > 0 {
		r, err := s.releases.FindByID(ctx, baseReleaseID)
		if err != nil {
			return nil, err
		}
		base = r.Configurations
	}

	to, err := s.releases.FindByID(ctx, toReleaseID)
	if err != nil {
		return nil, err
	}
	return domain.CalcConfigChanges(base, to.Configurations), nil
}

func (s *ConfigService) resolveOptional(ctx context.Context, client ClientInfo, appID, clusterName, namespaceName, dataCenter string) (*domain.Release, error) {
	release, err := s.Resolve(ctx, client, appID, clusterName, namespaceName, dataCenter)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return release, err
}
