package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_events_published_total",
		Help: "Total number of events published on the bus, labelled by event type.",
	}, []string{"event_type"})

	SubscriberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_bus_subscriber_failures_total",
		Help: "Total number of subscriber errors and panics, labelled by event type and kind.",
	}, []string{"event_type", "kind"})

	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docflow_events_enqueued_total",
		Help: "Total number of events placed on the rule engine queue.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docflow_events_processed_total",
		Help: "Total number of events fully processed by the rule engine.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docflow_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	RulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_rules_matched_total",
		Help: "Total number of rule matches, labelled by workflow ID.",
	}, []string{"workflow_id"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_actions_executed_total",
		Help: "Total number of actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docflow_event_processing_duration_ms",
		Help:    "Rule engine processing latency per event in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docflow_queue_utilization_ratio",
		Help: "Current rule engine queue utilization (0-1).",
	})

	RuleCacheFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_rule_cache_fetches_total",
		Help: "Rule cache fetches, labelled by outcome (ok, error, stale).",
	}, []string{"outcome"})

	StockOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_stock_operations_total",
		Help: "Stock ledger line operations, labelled by operation and outcome.",
	}, []string{"operation", "outcome"})

	ApprovalsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_approvals_submitted_total",
		Help: "Approval requests created, labelled by document type and level.",
	}, []string{"document_type", "level"})

	ApprovalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_approvals_decided_total",
		Help: "Approval decisions recorded, labelled by document type and decision.",
	}, []string{"document_type", "decision"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_status_transitions_total",
		Help: "Document status transitions, labelled by document type and target status.",
	}, []string{"document_type", "to"})
)
