package port

// GrayReleaseMatcher 在内存中匹配灰度规则，命中时返回灰度发布的 Release ID。
type GrayReleaseMatcher interface {
	FindReleaseID(clientAppID, clientIP, clientLabel, appID, clusterName, namespaceName string) (int64, bool)
}
