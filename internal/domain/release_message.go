package domain

// ReleaseMessage 是变更日志中的一行：只携带作用域的 watch key，不携带新值。
// ID 单调递增，客户端收到通知后必须重新拉取配置。
type ReleaseMessage struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// NotificationIDUnknown 表示客户端尚未见过任何通知。
const NotificationIDUnknown int64 = -1

// Notification 是长轮询返回给客户端的单个 namespace 变更信号。
type Notification struct {
	NamespaceName  string           `json:"namespaceName"`
	NotificationID int64            `json:"notificationId"`
	Messages       map[string]int64 `json:"messages,omitempty"`
}
