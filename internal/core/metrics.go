package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instrumentation, grounded on
// internal/manager/metrics.go and internal/probing's metrics files in the
// teacher repo (package-level promauto.New*Vec variables, label constants
// for outcome/kind).

const (
	labelAlarmOutcomeScheduled = "scheduled"
	labelAlarmOutcomeFired     = "fired"
	labelAlarmOutcomeCancelled = "cancelled"

	labelEdgeAllow    = "allow"
	labelEdgeDisallow = "disallow"
)

var (
	metricActionsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "repowerd",
		Name:      "actions_processed_total",
		Help:      "Total number of actions dequeued and dispatched by the daemon loop.",
	})

	metricActionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "repowerd",
		Name:      "action_queue_depth",
		Help:      "Current number of actions waiting in the daemon's FIFO queue.",
	})

	metricSessionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "repowerd",
		Name:      "sessions",
		Help:      "Current number of tracked sessions.",
	})

	metricAlarmsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowerd",
		Name:      "alarms_total",
		Help:      "Total number of Timer alarm lifecycle events, by outcome.",
	}, []string{"outcome"})

	metricInactivityDisallowancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowerd",
		Name:      "inactivity_timeout_disallowances_total",
		Help:      "Total number of inactivity timeout allow/disallow edges applied to a state machine.",
	}, []string{"edge"})

	metricSuspendDisallowancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowerd",
		Name:      "suspend_disallowances_total",
		Help:      "Total number of suspend allow/disallow edges applied to the system power control sink.",
	}, []string{"edge"})
)
