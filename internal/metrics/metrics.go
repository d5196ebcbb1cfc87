// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	// TransactionsTotal counts create-transaction outcomes: created or replayed.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Transactions recorded, labeled by type and outcome",
	}, []string{"type", "outcome"})

	ReversalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reversals_total",
		Help: "Transactions reversed",
	})

	IntegrityAlarmsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_integrity_alarms_total",
		Help: "Debit/credit mismatches detected, labeled by the check that found them",
	}, []string{"source"})

	ReportCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_report_cache_total",
		Help: "Report cache lookups, labeled by report and result",
	}, []string{"report", "result"})

	EventPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_event_publish_failures_total",
		Help: "Domain events that could not be delivered",
	})
)
