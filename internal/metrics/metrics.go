package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "config_service"

var (
	// LongPollWaiters is the number of long-poll requests currently suspended.
	LongPollWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "waiters",
		Help:      "Long-poll waiters currently registered",
	})

	// LongPollCompletions counts waiter completions.
	// Labels: outcome (notified, timed_out, cancelled)
	LongPollCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "completions_total",
		Help:      "Long-poll waiter completions by outcome",
	}, []string{"outcome"})

	// ScannerWatermark is the highest change-log id processed.
	ScannerWatermark = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "watermark",
		Help:      "Highest release message id processed",
	})

	ScannerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "errors_total",
		Help:      "Failed change-log reads",
	})

	// ScannerMissingIDs is the number of skipped ids still being rechecked.
	ScannerMissingIDs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "missing_ids",
		Help:      "Skipped release message ids awaiting recheck",
	})

	GrayRuleScopes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "grayrule",
		Name:      "scopes",
		Help:      "Scopes with an active gray release rule",
	})

	GrayRuleRefreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grayrule",
		Name:      "refresh_errors_total",
		Help:      "Failed gray rule refreshes",
	}, []string{"mode"})

	// ConfigQueries counts config lookups.
	// Labels: result (ok, not_modified, not_found, invalid, error)
	ConfigQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "queries_total",
		Help:      "Config queries by result",
	}, []string{"result"})

	ReleaseCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "release_cache",
		Name:      "lookups_total",
		Help:      "Latest-release cache lookups by result",
	}, []string{"result"})
)
