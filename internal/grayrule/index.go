// Package grayrule keeps an in-memory, snapshot-swapped view of the active
// gray release rules so that config reads never wait on the store.
package grayrule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/metrics"
	"github.com/chiwei-platform/config-service/internal/port"
	"github.com/juju/clock"
)

// DefaultResyncInterval bounds how stale the index can get if a change-log
// row is missed.
const DefaultResyncInterval = time.Minute

type snapshot struct {
	// lower-cased scope key -> the single rule in effect for that scope
	rules   map[string]*domain.GrayReleaseRule
	builtAt time.Time
}

// Index answers gray matching queries from an immutable snapshot. Readers
// load the snapshot pointer and never lock; writers are serialised and
// publish a new snapshot with a single pointer swap.
type Index struct {
	repo     port.GrayReleaseRuleRepository
	clock    clock.Clock
	interval time.Duration

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	ready   atomic.Bool
}

func NewIndex(repo port.GrayReleaseRuleRepository, clk clock.Clock, interval time.Duration) *Index {
	if clk == nil {
		clk = clock.WallClock
	}
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	idx := &Index{repo: repo, clock: clk, interval: interval}
	idx.current.Store(&snapshot{rules: map[string]*domain.GrayReleaseRule{}, builtAt: clk.Now()})
	return idx
}

// Ready reports whether at least one full resync has succeeded.
func (i *Index) Ready() bool {
	return i.ready.Load()
}

// Len returns the number of scopes that currently have a rule.
func (i *Index) Len() int {
	return len(i.current.Load().rules)
}

// BuiltAt returns when the snapshot being served was published.
func (i *Index) BuiltAt() time.Time {
	return i.current.Load().builtAt
}

// FindReleaseID returns the release id of the gray rule in the given scope
// that matches the client, if any.
func (i *Index) FindReleaseID(clientAppID, clientIP, clientLabel, appID, clusterName, namespaceName string) (int64, bool) {
	rule, ok := i.current.Load().rules[scopeKey(appID, clusterName, namespaceName)]
	if !ok {
		return 0, false
	}
	if !rule.Match(clientAppID, clientIP, clientLabel) {
		return 0, false
	}
	return rule.ReleaseID, true
}

// Resync rebuilds the whole index from the store. On failure the previous
// snapshot stays in place.
func (i *Index) Resync(ctx context.Context) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	rules, err := i.repo.FindAllActive(ctx)
	if err != nil {
		metrics.GrayRuleRefreshErrors.WithLabelValues("full").Inc()
		return fmt.Errorf("load active gray rules: %w", err)
	}

	next := make(map[string]*domain.GrayReleaseRule, len(rules))
	for _, r := range rules {
		if !usable(r) {
			continue
		}
		key := ruleKey(r)
		if prev, ok := next[key]; ok && prev.ID > r.ID {
			continue
		}
		next[key] = r
	}
	i.publish(next)
	i.ready.Store(true)
	return nil
}

// RefreshScope reloads the rules of a single scope and swaps in a snapshot
// that differs from the current one only in that scope.
func (i *Index) RefreshScope(ctx context.Context, scope domain.Scope) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	rules, err := i.repo.FindActive(ctx, scope.AppID, scope.ClusterName, scope.NamespaceName)
	if err != nil {
		metrics.GrayRuleRefreshErrors.WithLabelValues("scope").Inc()
		return fmt.Errorf("load gray rules for %s: %w", scope.WatchKey(), err)
	}

	var latest *domain.GrayReleaseRule
	for _, r := range rules {
		if usable(r) && (latest == nil || r.ID > latest.ID) {
			latest = r
		}
	}

	key := scopeKey(scope.AppID, scope.ClusterName, scope.NamespaceName)
	cur := i.current.Load().rules
	if _, had := cur[key]; !had && latest == nil {
		return nil
	}

	next := make(map[string]*domain.GrayReleaseRule, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if latest == nil {
		delete(next, key)
	} else {
		next[key] = latest
	}
	i.publish(next)
	return nil
}

// HandleMessage refreshes the scope named by a change-log row. Errors are
// logged and the stale snapshot keeps serving until the next resync.
func (i *Index) HandleMessage(ctx context.Context, msg *domain.ReleaseMessage) {
	scope, ok := domain.ParseWatchKey(msg.Message)
	if !ok {
		return
	}
	if err := i.RefreshScope(ctx, scope); err != nil {
		slog.Warn("grayrule: scope refresh failed", "message", msg.Message, "id", msg.ID, "error", err)
	}
}

// Run resyncs immediately and then on every interval until ctx is done.
func (i *Index) Run(ctx context.Context) error {
	i.resyncAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-i.clock.After(i.interval):
			i.resyncAndLog(ctx)
		}
	}
}

func (i *Index) resyncAndLog(ctx context.Context) {
	if err := i.Resync(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("grayrule: resync failed, serving previous snapshot", "error", err)
		return
	}
	slog.Debug("grayrule: resynced", "scopes", i.Len())
}

func (i *Index) publish(rules map[string]*domain.GrayReleaseRule) {
	i.current.Store(&snapshot{rules: rules, builtAt: i.clock.Now()})
	metrics.GrayRuleScopes.Set(float64(len(rules)))
}

func usable(r *domain.GrayReleaseRule) bool {
	return r != nil && r.BranchStatus == domain.BranchStatusActive && r.ReleaseID > 0
}

func ruleKey(r *domain.GrayReleaseRule) string {
	return scopeKey(r.AppID, r.ClusterName, r.NamespaceName)
}

func scopeKey(appID, clusterName, namespaceName string) string {
	return domain.NormalizeWatchKey(domain.AssembleWatchKey(appID, clusterName, namespaceName))
}
