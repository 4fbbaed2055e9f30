// Package metrics registers the Prometheus instruments shared by the
// harvester and the warehouse sink.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	categoryLabelConstant = "category"
	tableLabelConstant    = "table"
)

var (
	// PagesFetchedTotal counts GitLab API pages retrieved across all endpoints.
	PagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glharvest_api_pages_fetched_total",
		Help: "The total number of GitLab API pages retrieved",
	})
	// RequestRetriesTotal counts retried GitLab API requests.
	RequestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glharvest_api_request_retries_total",
		Help: "The total number of GitLab API requests retried after transient failures",
	})
	// RequestLatencySeconds observes GitLab API request latency.
	RequestLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glharvest_api_request_latency_seconds",
		Help:    "Latency of GitLab API requests",
		Buckets: prometheus.DefBuckets,
	})
	// RecordsCollectedTotal counts records accumulated per audit category.
	RecordsCollectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glharvest_records_collected_total",
		Help: "The total number of records accumulated per audit category",
	}, []string{categoryLabelConstant})
	// CategoryFailuresTotal counts categories that failed and were skipped.
	CategoryFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glharvest_category_failures_total",
		Help: "The total number of audit categories marked failed during a run",
	}, []string{categoryLabelConstant})
	// RecordsDroppedTotal counts malformed records dropped per category.
	RecordsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glharvest_records_dropped_total",
		Help: "The total number of malformed records dropped per audit category",
	}, []string{categoryLabelConstant})
	// SinkRowsInsertedTotal counts rows loaded into warehouse tables.
	SinkRowsInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glharvest_sink_rows_inserted_total",
		Help: "The total number of rows inserted into warehouse tables",
	}, []string{tableLabelConstant})
)
