package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/metrics"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Hub owns the watch registry and the lifecycle of every long-poll waiter.
type Hub struct {
	registry *Registry[*Waiter]
	clock    clock.Clock
}

func NewHub(registry *Registry[*Waiter], clk clock.Clock) *Hub {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Hub{registry: registry, clock: clk}
}

// WatchRequest describes what a long-poll waits for.
type WatchRequest struct {
	// Namespaces maps the normalised namespace name to the name the client sent.
	Namespaces map[string]string
	// NotificationIDs maps the normalised namespace name to the client's
	// current notification id. Changes at or below it never wake the waiter.
	NotificationIDs map[string]int64
	// Keys are the watch keys to register under.
	Keys    []string
	Timeout time.Duration
}

// Watch registers a new waiter under every key and arms its deadline.
// The caller must eventually receive from Done or call Cancel.
func (h *Hub) Watch(req WatchRequest) *Waiter {
	w := newWaiter(uuid.New().String(), dedupeKeys(req.Keys), req.Namespaces, req.NotificationIDs, h.release)
	for _, key := range w.keys {
		h.registry.Register(key, w)
	}
	metrics.LongPollWaiters.Inc()
	w.arm(h.clock, req.Timeout)
	return w
}

func (h *Hub) release(w *Waiter, outcome Outcome) {
	for _, key := range w.keys {
		h.registry.Deregister(key, w)
	}
	metrics.LongPollWaiters.Dec()
	metrics.LongPollCompletions.WithLabelValues(outcome.String()).Inc()
}

// HandleMessage wakes every waiter registered under the message's watch key.
// A message without waiters is not an error.
func (h *Hub) HandleMessage(_ context.Context, msg *domain.ReleaseMessage) {
	waiters := h.registry.Lookup(msg.Message)
	if len(waiters) == 0 {
		return
	}
	scope, ok := domain.ParseWatchKey(msg.Message)
	if !ok {
		slog.Warn("notification: malformed watch key", "message", msg.Message, "id", msg.ID)
		return
	}

	woken := 0
	for _, w := range waiters {
		n := domain.Notification{
			NamespaceName:  scope.NamespaceName,
			NotificationID: msg.ID,
			Messages:       map[string]int64{msg.Message: msg.ID},
		}
		if w.Notify(n) {
			woken++
		}
	}
	slog.Debug("notification: waiters woken", "message", msg.Message, "id", msg.ID, "count", woken)
}

// Waiting returns the number of watch keys that currently have waiters.
func (h *Hub) Waiting() int {
	return h.registry.Len()
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		nk := domain.NormalizeWatchKey(k)
		if _, ok := seen[nk]; ok {
			continue
		}
		seen[nk] = struct{}{}
		out = append(out, nk)
	}
	return out
}
