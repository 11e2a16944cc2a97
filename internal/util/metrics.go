package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerDeltasTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_ledger_deltas_total",
		Help: "Total number of ledger deltas applied",
	}, []string{"reason"})

	LedgerUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_ledger_units_total",
		Help: "Absolute stock units moved through the ledger",
	}, []string{"direction"})

	InsufficientStockTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_insufficient_stock_total",
		Help: "Total number of deltas rejected for insufficient stock",
	})

	TransactionsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_transactions_recorded_total",
		Help: "Total number of transactions recorded",
	}, []string{"type"})

	TransactionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_transactions_rejected_total",
		Help: "Total number of rejected transactions",
	}, []string{"reason"})

	TransactionRecordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_transaction_record_latency_seconds",
		Help:    "Latency of recording a transaction",
		Buckets: prometheus.DefBuckets,
	})

	ReordersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reorders_created_total",
		Help: "Total number of reorder requests created",
	}, []string{"source"})

	ReorderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reorder_transitions_total",
		Help: "Total number of reorder transitions applied",
	}, []string{"action", "status"})

	ReorderTransitionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reorder_transition_failures_total",
		Help: "Total number of rejected reorder transitions",
	}, []string{"reason"})

	ReorderShortfallUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reorder_shortfall_units_total",
		Help: "Units requested but not delivered on received reorders",
	})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_events_publish_failed_total",
		Help: "Total number of events that failed to publish",
	}, []string{"event_type"})

	ConsumerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_consumer_retries_total",
		Help: "Total number of failed message handling attempts that were retried",
	}, []string{"topic"})

	ProductCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_product_cache_requests_total",
		Help: "Product cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
