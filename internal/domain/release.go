package domain

import "time"

// DefaultClusterName 是每个 App 都存在的兜底集群。
const DefaultClusterName = "default"

// Release 代表某个 (app, cluster, namespace) 的一次发布快照。
// 发布后不可变，唯一允许变更的是 IsAbandoned（回滚标记）；被废弃的 Release 在解析时视为不存在。
type Release struct {
	ID             int64           `json:"id"`
	ReleaseKey     string          `json:"releaseKey"`
	Name           string          `json:"name,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	AppID          string          `json:"appId"`
	ClusterName    string          `json:"clusterName"`
	NamespaceName  string          `json:"namespaceName"`
	Configurations *Configurations `json:"configurations"`
	IsAbandoned    bool            `json:"isAbandoned"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Effective 判断 Release 是否仍可被客户端看到。
func (r *Release) Effective() bool {
	return r != nil && !r.IsAbandoned
}

// WatchKey 返回该 Release 所属作用域的变更通知 key。
func (r *Release) WatchKey() string {
	return AssembleWatchKey(r.AppID, r.ClusterName, r.NamespaceName)
}

// AppNamespace 记录 namespace 的归属。公共 namespace 可以被其他 App 关联读取。
type AppNamespace struct {
	AppID    string `json:"appId"`
	Name     string `json:"name"`
	IsPublic bool   `json:"isPublic"`
}

// ServiceInstance 是一个可对外提供配置读取的 config-service 实例。
type ServiceInstance struct {
	AppName     string `json:"appName"`
	InstanceID  string `json:"instanceId"`
	HomepageURL string `json:"homepageUrl"`
}
