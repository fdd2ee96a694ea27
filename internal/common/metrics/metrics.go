// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	SetsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sets_closed_total",
			Help: "Total number of sets migrated into projects",
		},
		[]string{"office"},
	)

	CommissionAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commission_amount_total",
			Help: "Sum of commission amounts credited to ledgers",
		},
	)

	CloserAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "closer_assignments_total",
			Help: "Total number of closer assignments written",
		},
	)

	LifecycleConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_conflicts_total",
			Help: "Optimistic concurrency conflicts per lifecycle operation",
		},
		[]string{"operation"},
	)

	LifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifecycle_operation_duration_seconds",
			Help:    "Duration of lifecycle engine operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP API requests by route and status",
		},
		[]string{"route", "method", "status"},
	)
)
