// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vellumpipeline"

var (
	// JobsProcessedTotal tracks completed transcode jobs.
	// Labels:
	//   - strategy: copy, selective, reencode
	//   - outcome: completed, failed
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of transcode jobs processed, by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// FFmpegDurationSeconds tracks wall-clock time spent inside ffmpeg per job.
	FFmpegDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ffmpeg_duration_seconds",
			Help:      "Duration of ffmpeg HLS rendition runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"strategy"},
	)

	// PublishBatchDurationSeconds tracks one object-store publish batch.
	PublishBatchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_batch_duration_seconds",
			Help:      "Duration of one concurrent upload batch during PublishTree",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// WebhookAttemptsTotal tracks webhook delivery attempts.
	// Labels:
	//   - outcome: delivered, rejected, failed (transport error)
	WebhookAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "Total number of webhook delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)

	// QueueReconnectsTotal tracks broker reconnects by the queue consumer.
	QueueReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_reconnects_total",
			Help:      "Total number of message queue reconnects",
		},
	)

	// StoreOperationsTotal tracks C1 (bbolt) record-store operations.
	// Labels:
	//   - operation: create, get, update, list_all, list_pending_callbacks, try_acquire
	//   - status: success, error
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of video record store operations",
		},
		[]string{"operation", "status"},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior on the cached
	// status/listing read path.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// Job outcome constants.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Webhook attempt outcome constants.
const (
	WebhookDelivered = "delivered"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
