package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of Zeebe jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of Zeebe jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of Zeebe job processing in seconds",
		},
		[]string{"task_type"},
	)

	ClaimAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_claim_attempts_total",
			Help: "Claim attempts by outcome",
		},
		[]string{"result"},
	)

	OffersPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_offers_published_total",
			Help: "Offers created by mission publication",
		},
	)

	MissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_mission_transitions_total",
			Help: "Mission status transitions",
		},
		[]string{"to"},
	)

	DispatchEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_dropped_total",
			Help: "Dispatch events a sink failed to accept",
		},
		[]string{"sink"},
	)

	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Notification enqueue outcomes (created, duplicate, skipped)",
		},
		[]string{"outcome"},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Channel delivery attempts by resulting status",
		},
		[]string{"channel", "status"},
	)

	NotificationDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Provider call duration per channel",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	NotificationBatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_batch_size",
			Help: "Size of the last claimed delivery batch per channel",
		},
		[]string{"channel"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_stream_subscribers",
			Help: "Open server-sent event streams",
		},
	)
)
