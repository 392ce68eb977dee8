package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/notification"
	"github.com/chiwei-platform/config-service/internal/port"
)

// DefaultLongPollTimeout 是长轮询在没有变更时的挂起时长。
const DefaultLongPollTimeout = 60 * time.Second

type NotificationService struct {
	hub        *notification.Hub
	messages   port.ReleaseMessageRepository
	namespaces *NamespaceNormalizer
	timeout    time.Duration
	// catchUp 在直接从库里发现新变更时先于唤醒执行，
	// 与 scanner 的监听者一致（发布缓存、灰度索引），但不包括 hub。
	catchUp []port.ReleaseMessageHandler
}

func NewNotificationService(
	hub *notification.Hub,
	messages port.ReleaseMessageRepository,
	namespaces *NamespaceNormalizer,
	timeout time.Duration,
	catchUp ...port.ReleaseMessageHandler,
) *NotificationService {
	if timeout <= 0 {
		timeout = DefaultLongPollTimeout
	}
	return &NotificationService{
		hub:        hub,
		messages:   messages,
		namespaces: namespaces,
		timeout:    timeout,
		catchUp:    catchUp,
	}
}

type PollRequest struct {
	AppID         string
	ClusterName   string
	DataCenter    string
	ClientIP      string
	Notifications []domain.Notification
}

func (r PollRequest) validate() error {
	if err := domain.ValidateName("appId", r.AppID); err != nil {
		return err
	}
	if err := domain.ValidateName("cluster", r.ClusterName); err != nil {
		return err
	}
	if err := domain.ValidateOptionalName("dataCenter", r.DataCenter); err != nil {
		return err
	}
	if len(r.Notifications) == 0 {
		return fmt.Errorf("%w: notifications must not be empty", domain.ErrInvalidInput)
	}
	for _, n := range r.Notifications {
		if err := domain.ValidateName("namespaceName", n.NamespaceName); err != nil {
			return err
		}
	}
	return nil
}

// watchedNamespace 是请求中去重后的一个 namespace。
type watchedNamespace struct {
	canonical string
	original  string
	clientID  int64
	keys      []string
}

// Poll 注册长轮询并挂起，直到任一 namespace 有新的变更消息或超时。
// 超时返回 (nil, nil)；客户端断开返回 ctx 的错误。
func (s *NotificationService) Poll(ctx context.Context, req PollRequest) ([]domain.Notification, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	watched, err := s.collectNamespaces(ctx, req)
	if err != nil {
		return nil, err
	}

	var keys []string
	originals := make(map[string]string, len(watched))
	clientIDs := make(map[string]int64, len(watched))
	for _, ns := range watched {
		keys = append(keys, ns.keys...)
		originals[ns.canonical] = ns.original
		clientIDs[ns.canonical] = ns.clientID
	}

	// 先注册再查库：注册之后写入的消息一定会被 scanner 送达，
	// 注册之前的消息由下面的比对补上。
	w := s.hub.Watch(notification.WatchRequest{
		Keys:            keys,
		Namespaces:      originals,
		NotificationIDs: clientIDs,
		Timeout:         s.timeout,
	})

	latest, err := s.messages.FindLatestByMessages(ctx, keys)
	if err != nil {
		w.Cancel()
		return nil, fmt.Errorf("load latest release messages: %w", err)
	}
	if pending, ahead := newerNotifications(watched, latest); len(pending) > 0 {
		// 这些消息可能还在 scanner 的水位之后，先让缓存追上，
		// 客户端被唤醒后重新拉取才能拿到对应的发布
		for _, msg := range ahead {
			for _, h := range s.catchUp {
				h.HandleMessage(ctx, msg)
			}
		}
		w.Notify(pending...)
	}

	select {
	case res := <-w.Done():
		return pollResult(ctx, res)
	case <-ctx.Done():
		if w.Cancel() {
			slog.Debug("long poll cancelled", "app_id", req.AppID, "waiter", w.ID())
			return nil, ctx.Err()
		}
		return pollResult(ctx, <-w.Done())
	}
}

func (s *NotificationService) collectNamespaces(ctx context.Context, req PollRequest) ([]*watchedNamespace, error) {
	var order []*watchedNamespace
	byName := make(map[string]*watchedNamespace, len(req.Notifications))

	for _, n := range req.Notifications {
		canonical := s.namespaces.Normalize(ctx, req.AppID, n.NamespaceName)
		lower := strings.ToLower(canonical)
		if existing, ok := byName[lower]; ok {
			// 同一 namespace 重复出现时保留较大的 notificationId
			if n.NotificationID > existing.clientID {
				existing.clientID = n.NotificationID
				existing.original = n.NamespaceName
			}
			continue
		}
		ns := &watchedNamespace{canonical: canonical, original: n.NamespaceName, clientID: n.NotificationID}
		byName[lower] = ns
		order = append(order, ns)
	}

	for _, ns := range order {
		ns.keys = assembleWatchKeys(req.AppID, req.ClusterName, ns.canonical, req.DataCenter)
		owner, public, err := s.namespaces.PublicOwner(ctx, req.AppID, ns.canonical)
		if err != nil {
			return nil, fmt.Errorf("resolve public namespace %s: %w", ns.canonical, err)
		}
		if public {
			ns.keys = append(ns.keys, assembleWatchKeys(owner, req.ClusterName, ns.canonical, req.DataCenter)...)
		}
	}
	return order, nil
}

// newerNotifications 返回库中已有、但客户端尚未见过的变更，以及触发这些变更的消息。
func newerNotifications(watched []*watchedNamespace, latest []*domain.ReleaseMessage) ([]domain.Notification, []*domain.ReleaseMessage) {
	if len(latest) == 0 {
		return nil, nil
	}
	byKey := make(map[string]*domain.ReleaseMessage, len(latest))
	for _, m := range latest {
		byKey[domain.NormalizeWatchKey(m.Message)] = m
	}

	var out []domain.Notification
	var ahead []*domain.ReleaseMessage
	seen := make(map[int64]struct{})
	for _, ns := range watched {
		maxID := domain.NotificationIDUnknown
		messages := make(map[string]int64)
		for _, key := range ns.keys {
			m, ok := byKey[domain.NormalizeWatchKey(key)]
			if !ok {
				continue
			}
			messages[key] = m.ID
			if m.ID > maxID {
				maxID = m.ID
			}
			if _, dup := seen[m.ID]; !dup && m.ID > ns.clientID {
				seen[m.ID] = struct{}{}
				ahead = append(ahead, m)
			}
		}
		if maxID > ns.clientID {
			out = append(out, domain.Notification{
				NamespaceName:  ns.canonical,
				NotificationID: maxID,
				Messages:       messages,
			})
		}
	}
	return out, ahead
}

func pollResult(ctx context.Context, res notification.Result) ([]domain.Notification, error) {
	switch res.Outcome {
	case notification.OutcomeNotified:
		return res.Notifications, nil
	case notification.OutcomeTimedOut:
		return nil, nil
	default:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}
}
