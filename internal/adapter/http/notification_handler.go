package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/service"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// Poll GET /notifications/v2?appId=&cluster=&notifications=[...]&dataCenter=&ip=
// 有变更时返回 200 和变更的 namespace 列表，超时返回 304。
func (h *NotificationHandler) Poll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var notifications []domain.Notification
	if raw := q.Get("notifications"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &notifications); err != nil {
			writeError(w, fmt.Errorf("%w: notifications is not a valid JSON array", domain.ErrInvalidInput))
			return
		}
	}

	result, err := h.svc.Poll(r.Context(), service.PollRequest{
		AppID:         q.Get("appId"),
		ClusterName:   q.Get("cluster"),
		DataCenter:    q.Get("dataCenter"),
		ClientIP:      q.Get("ip"),
		Notifications: notifications,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// 客户端已断开，没有人接收响应
			return
		}
		writeError(w, err)
		return
	}
	if len(result) == 0 {
		writeNotModified(w)
		return
	}
	writeBody(w, http.StatusOK, result)
}
