package port

import (
	"context"

	"github.com/chiwei-platform/config-service/internal/domain"
)

// ReleaseRepository 只读访问发布记录。
type ReleaseRepository interface {
	// FindLatestActive 返回作用域内最新的未废弃发布，不存在时返回 domain.ErrReleaseNotFound。
	FindLatestActive(ctx context.Context, appID, clusterName, namespaceName string) (*domain.Release, error)
	FindByID(ctx context.Context, id int64) (*domain.Release, error)
}

type GrayReleaseRuleRepository interface {
	// FindActive 返回作用域内处于 Active 状态的灰度规则，按 ID 倒序。
	FindActive(ctx context.Context, appID, clusterName, namespaceName string) ([]*domain.GrayReleaseRule, error)
	FindAllActive(ctx context.Context) ([]*domain.GrayReleaseRule, error)
}

type ReleaseMessageRepository interface {
	// FindSince 返回 ID 大于 watermark 的消息，按 ID 升序，最多 limit 条。
	FindSince(ctx context.Context, watermark int64, limit int) ([]*domain.ReleaseMessage, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*domain.ReleaseMessage, error)
	// FindLatestID 返回当前最大消息 ID，表为空时返回 0。
	FindLatestID(ctx context.Context) (int64, error)
	// FindLatestByMessages 对每个 watch key（不区分大小写）返回最新的一条消息。
	FindLatestByMessages(ctx context.Context, messages []string) ([]*domain.ReleaseMessage, error)
}

type AppNamespaceRepository interface {
	// FindByAppAndName 按 appId 与 namespace 名称（不区分大小写）查询。
	FindByAppAndName(ctx context.Context, appID, namespaceName string) (*domain.AppNamespace, error)
	// FindPublicByName 查询公共 namespace（不区分大小写）。
	FindPublicByName(ctx context.Context, namespaceName string) (*domain.AppNamespace, error)
}
