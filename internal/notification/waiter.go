package notification

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/juju/clock"
)

// Outcome is the terminal state of a Waiter.
type Outcome int

const (
	OutcomeNotified Outcome = iota + 1
	OutcomeTimedOut
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotified:
		return "notified"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Result is delivered exactly once on Waiter.Done.
type Result struct {
	Outcome       Outcome
	Notifications []domain.Notification
}

// Waiter is a suspended long-poll request. It completes exactly once, on
// notification, deadline or cancellation, and is deregistered from every
// watch key before its result becomes visible.
type Waiter struct {
	id   string
	keys []string

	// lower-cased namespace -> namespace name as sent by the client
	namespaces map[string]string
	// lower-cased namespace -> highest notification id the client already has
	seen map[string]int64

	completed atomic.Bool
	result    chan Result

	mu    sync.Mutex
	timer clock.Timer

	release func(*Waiter, Outcome)
}

func newWaiter(id string, keys []string, namespaces map[string]string, seen map[string]int64, release func(*Waiter, Outcome)) *Waiter {
	ns := make(map[string]string, len(namespaces))
	for normalized, original := range namespaces {
		ns[strings.ToLower(normalized)] = original
	}
	ids := make(map[string]int64, len(seen))
	for normalized, id := range seen {
		ids[strings.ToLower(normalized)] = id
	}
	return &Waiter{
		id:         id,
		keys:       keys,
		namespaces: ns,
		seen:       ids,
		result:     make(chan Result, 1),
		release:    release,
	}
}

func (w *Waiter) ID() string { return w.id }

// Keys returns the watch keys the waiter was registered under.
func (w *Waiter) Keys() []string {
	out := make([]string, len(w.keys))
	copy(out, w.keys)
	return out
}

// Done yields the single Result once the waiter completes.
func (w *Waiter) Done() <-chan Result { return w.result }

// Completed reports whether a terminal state has been claimed.
func (w *Waiter) Completed() bool { return w.completed.Load() }

// Complete claims the terminal state. Only the first caller wins; later calls
// return false and have no effect.
func (w *Waiter) Complete(res Result) bool {
	return w.complete(res, true)
}

func (w *Waiter) complete(res Result, stopTimer bool) bool {
	if !w.completed.CompareAndSwap(false, true) {
		return false
	}

	if stopTimer {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}

	if w.release != nil {
		w.release(w, res.Outcome)
	}

	select {
	case w.result <- res:
	default:
		panic("notification: waiter " + w.id + " completed twice")
	}
	return true
}

// Cancel completes the waiter without notifications, e.g. on client disconnect.
func (w *Waiter) Cancel() bool {
	return w.Complete(Result{Outcome: OutcomeCancelled})
}

// Notify completes the waiter with the given notifications, translating
// namespace names back to the client's casing. Notifications the client
// already has (id not above its known id for the namespace) are dropped; if
// none remain the waiter keeps waiting and Notify returns false.
func (w *Waiter) Notify(notifications ...domain.Notification) bool {
	out := make([]domain.Notification, 0, len(notifications))
	for _, n := range notifications {
		if !w.isNewer(n) {
			continue
		}
		n.NamespaceName = w.OriginalNamespace(n.NamespaceName)
		out = append(out, n)
	}
	if len(out) == 0 {
		return false
	}
	return w.Complete(Result{Outcome: OutcomeNotified, Notifications: out})
}

func (w *Waiter) isNewer(n domain.Notification) bool {
	seen, ok := w.seen[strings.ToLower(n.NamespaceName)]
	return !ok || n.NotificationID > seen
}

// OriginalNamespace maps a namespace name of any casing back to the name the
// client supplied.
func (w *Waiter) OriginalNamespace(namespace string) string {
	if original, ok := w.namespaces[strings.ToLower(namespace)]; ok {
		return original
	}
	return namespace
}

// arm starts the deadline timer unless the waiter already completed.
func (w *Waiter) arm(clk clock.Clock, timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.completed.Load() {
		return
	}
	w.timer = clk.AfterFunc(timeout, func() {
		w.complete(Result{Outcome: OutcomeTimedOut}, false)
	})
}
