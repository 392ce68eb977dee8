package service

import (
	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
)

// DiscoveryService 返回可供客户端连接的 config-service 实例；
// 未接入 Kubernetes 或尚无就绪实例时返回本实例。
type DiscoveryService struct {
	lister port.InstanceLister
	self   domain.ServiceInstance
}

func NewDiscoveryService(lister port.InstanceLister, self domain.ServiceInstance) *DiscoveryService {
	return &DiscoveryService{lister: lister, self: self}
}

func (s *DiscoveryService) Instances() []domain.ServiceInstance {
	if s.lister != nil {
		if instances := s.lister.Instances(); len(instances) > 0 {
			return instances
		}
	}
	if s.self.HomepageURL == "" {
		return []domain.ServiceInstance{}
	}
	return []domain.ServiceInstance{s.self}
}
