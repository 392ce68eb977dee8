package service

import "github.com/chiwei-platform/config-service/internal/domain"

// assembleWatchKeys 返回一个 namespace 需要监听的全部 key，顺序与 Resolve 的回退顺序一致。
func assembleWatchKeys(appID, clusterName, namespaceName, dataCenter string) []string {
	keys := make([]string, 0, 3)
	if clusterName != domain.DefaultClusterName {
		keys = append(keys, domain.AssembleWatchKey(appID, clusterName, namespaceName))
	}
	if dataCenter != "" && dataCenter != clusterName {
		keys = append(keys, domain.AssembleWatchKey(appID, dataCenter, namespaceName))
	}
	return append(keys, domain.AssembleWatchKey(appID, domain.DefaultClusterName, namespaceName))
}
