package domain

import "strings"

const watchKeySeparator = "+"

// Scope 标识一组配置的作用域：(app, cluster, namespace)。
type Scope struct {
	AppID         string
	ClusterName   string
	NamespaceName string
}

// WatchKey 返回作用域对应的通知 key（保留原始大小写）。
func (s Scope) WatchKey() string {
	return AssembleWatchKey(s.AppID, s.ClusterName, s.NamespaceName)
}

// AssembleWatchKey 拼出 appId+cluster+namespace。
// 名称经过 ValidateName 校验，不会包含分隔符。
func AssembleWatchKey(appID, clusterName, namespaceName string) string {
	return appID + watchKeySeparator + clusterName + watchKeySeparator + namespaceName
}

// NormalizeWatchKey 将 key 统一为小写，仅大小写不同的 namespace 必须落到同一个 key。
func NormalizeWatchKey(key string) string {
	return strings.ToLower(key)
}

// ParseWatchKey 将 key 拆回作用域。格式不合法时返回 false。
func ParseWatchKey(key string) (Scope, bool) {
	parts := strings.SplitN(key, watchKeySeparator, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Scope{}, false
	}
	return Scope{AppID: parts[0], ClusterName: parts[1], NamespaceName: parts[2]}, true
}

const propertiesSuffix = ".properties"

// TrimNamespaceSuffix 去掉客户端可能带上的 .properties 后缀（不区分大小写）。
func TrimNamespaceSuffix(namespace string) string {
	if len(namespace) > len(propertiesSuffix) &&
		strings.EqualFold(namespace[len(namespace)-len(propertiesSuffix):], propertiesSuffix) {
		return namespace[:len(namespace)-len(propertiesSuffix)]
	}
	return namespace
}
