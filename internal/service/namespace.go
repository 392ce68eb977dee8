package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
)

// NamespaceNormalizer 把客户端传入的 namespace 名称映射为规范名称。
type NamespaceNormalizer struct {
	appNamespaces port.AppNamespaceRepository
}

func NewNamespaceNormalizer(appNamespaces port.AppNamespaceRepository) *NamespaceNormalizer {
	return &NamespaceNormalizer{appNamespaces: appNamespaces}
}

// Normalize 去掉 .properties 后缀，再按 App 私有 namespace、公共 namespace 的顺序取规范大小写。
// 查询失败时退化为只去后缀，不阻断请求。
func (n *NamespaceNormalizer) Normalize(ctx context.Context, appID, namespace string) string {
	namespace = domain.TrimNamespaceSuffix(namespace)

	own, err := n.appNamespaces.FindByAppAndName(ctx, appID, namespace)
	if err == nil {
		return own.Name
	}
	if !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("namespace lookup failed", "app_id", appID, "namespace", namespace, "error", err)
		return namespace
	}

	public, err := n.appNamespaces.FindPublicByName(ctx, namespace)
	if err == nil {
		return public.Name
	}
	if !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("public namespace lookup failed", "namespace", namespace, "error", err)
	}
	return namespace
}

// PublicOwner 当 namespace 不属于 appID、而是其他 App 的公共 namespace 时，返回其所属 App。
func (n *NamespaceNormalizer) PublicOwner(ctx context.Context, appID, namespace string) (string, bool, error) {
	_, err := n.appNamespaces.FindByAppAndName(ctx, appID, namespace)
	if err == nil {
		return "", false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", false, err
	}

	public, err := n.appNamespaces.FindPublicByName(ctx, namespace)
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if public.AppID == appID {
		return "", false, nil
	}
	return public.AppID, true, nil
}
