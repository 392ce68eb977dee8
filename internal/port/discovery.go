package port

import "github.com/chiwei-platform/config-service/internal/domain"

// InstanceLister 列出当前可用的 config-service 实例，供客户端做服务发现。
type InstanceLister interface {
	Instances() []domain.ServiceInstance
}
