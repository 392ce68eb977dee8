package port

import (
	"context"

	"github.com/chiwei-platform/config-service/internal/domain"
)

// ReleaseMessageHandler 消费一条变更日志，例如让缓存或灰度索引失效。
type ReleaseMessageHandler interface {
	HandleMessage(ctx context.Context, msg *domain.ReleaseMessage)
}
