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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "communication_messages_sent_total",
			Help: "Messages handed to a transport, by channel",
		},
		[]string{"channel"},
	)

	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "communication_messages_skipped_total",
			Help: "Sends skipped before reaching a transport, by reason",
		},
		[]string{"reason"},
	)

	AuditEventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "communication_events_created_total",
			Help: "Communication audit events recorded, by event code",
		},
		[]string{"event_code"},
	)

	AlertsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "communication_product_alerts_closed_total",
			Help: "Product alerts closed after a stock notification run",
		},
	)

	DeprecatedTemplatesUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "communication_deprecated_templates_used_total",
			Help: "Renders that used a legacy template location",
		},
		[]string{"template"},
	)
)

const (
	ChannelEmail        = "email"
	ChannelSMS          = "sms"
	ChannelNotification = "notification"

	SkipNoRecipient  = "no_recipient"
	SkipNoContent    = "no_content"
	SkipUnavailable  = "unavailable"
	SkipNoTemplate   = "no_template"
	SkipNoStockFound = "no_stock_records"
)
