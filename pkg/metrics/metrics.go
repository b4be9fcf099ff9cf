// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessedTotal tracks legacy records processed by outcome
	RecordsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "conversion",
			Name:      "records_total",
			Help:      "Total number of legacy records processed by outcome",
		},
		[]string{"load_type", "outcome"},
	)

	// RecordErrorsTotal tracks per-record errors by kind
	RecordErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "conversion",
			Name:      "errors_total",
			Help:      "Total number of per-record errors by kind",
		},
		[]string{"kind"},
	)

	// UpsertsTotal tracks destination record upserts per pass
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "conversion",
			Name:      "upserts_total",
			Help:      "Total number of destination record upserts by outcome",
		},
		[]string{"outcome"},
	)

	// EnrollmentsCreatedTotal tracks dependent enrollments created
	EnrollmentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "enrollment",
			Name:      "created_total",
			Help:      "Total number of optional and career program enrollments created",
		},
		[]string{"kind", "code"},
	)

	// DocumentsRenderedTotal tracks document generation calls
	DocumentsRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "documents",
			Name:      "rendered_total",
			Help:      "Total number of rendered documents by kind and status",
		},
		[]string{"kind", "status"},
	)

	// RunsTotal tracks batch runs by status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of conversion runs by status",
		},
		[]string{"status"},
	)

	// PartitionDuration tracks how long a partition worker ran
	PartitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "partition_duration_seconds",
			Help:      "Duration of partition workers in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// CredentialRefreshes tracks credential cache refreshes
	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "credential_refreshes_total",
			Help:      "Total number of credential refresh operations",
		},
		[]string{"reason", "status"},
	)

	// RuleCacheLookups tracks rule cache hits and misses
	RuleCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "rules",
			Name:      "cache_lookups_total",
			Help:      "Total number of rule cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"service", "method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordRecord records the outcome of one legacy record
func RecordRecord(loadType, outcome string) {
	RecordsProcessedTotal.WithLabelValues(loadType, outcome).Inc()
}

// RecordError records a per-record error
func RecordError(kind string) {
	RecordErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordUpsert records a destination upsert
func RecordUpsert(outcome string) {
	UpsertsTotal.WithLabelValues(outcome).Inc()
}

// RecordEnrollment records a created dependent enrollment
func RecordEnrollment(kind, code string) {
	EnrollmentsCreatedTotal.WithLabelValues(kind, code).Inc()
}

// RecordDocument records a document generation call
func RecordDocument(kind, status string) {
	DocumentsRenderedTotal.WithLabelValues(kind, status).Inc()
}

// RecordRun records a completed or failed run
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// RecordCredentialRefresh records a credential refresh
func RecordCredentialRefresh(reason, status string) {
	CredentialRefreshes.WithLabelValues(reason, status).Inc()
}

// RecordRuleCacheLookup records a rule cache hit or miss
func RecordRuleCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	RuleCacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(service, method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(service, method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(service, method).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
