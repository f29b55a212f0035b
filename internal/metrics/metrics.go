// Package metrics registers the Prometheus collectors of the mail services
// and exposes small helpers so callers never touch label plumbing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sendsTotal counts messages handled by the sending service.
	// Labels:
	// - mode:    "individual" or "batch"
	// - outcome: "sent", "failed" or "skipped"
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "sending",
			Name:      "messages_total",
			Help:      "Messages handled by the sending service by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	// providerAttempts counts HTTP attempts against the provider.
	// Labels:
	// - endpoint: "send" or "batch"
	// - result:   "ok", "retry" or "error"
	providerAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Provider API attempts by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	// batchChunks counts batch chunks by final outcome ("ok" or "failed").
	batchChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "sending",
			Name:      "batch_chunks_total",
			Help:      "Batch chunks submitted by outcome.",
		},
		[]string{"outcome"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mailer",
			Subsystem: "sending",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a complete batch send.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// webhookEvents counts verified webhook payloads.
	// Labels:
	// - event_type: mapped status or "unknown"
	// - outcome:    "applied", "ignored", "orphan", "dropped" or "error"
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Verified delivery webhook events by type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	// webhookRejections counts requests refused before processing.
	// Labels:
	// - reason: "not_configured", "missing_headers", "timestamp", "signature", "body"
	webhookRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "webhook",
			Name:      "rejections_total",
			Help:      "Delivery webhook requests rejected before processing.",
		},
		[]string{"reason"},
	)

	// renders counts template renders ("rendered", "missing", "error").
	renders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "render",
			Name:      "templates_total",
			Help:      "Template render requests by outcome.",
		},
		[]string{"outcome"},
	)

	// dispatchJobs counts campaign jobs taken off the queue.
	dispatchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "dispatch",
			Name:      "jobs_total",
			Help:      "Campaign dispatch jobs by outcome.",
		},
		[]string{"outcome"},
	)
)

// RecordSend increments the message counter.
func RecordSend(mode, outcome string) {
	sendsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordSends adds n to the message counter.
func RecordSends(mode, outcome string, n int) {
	if n > 0 {
		sendsTotal.WithLabelValues(mode, outcome).Add(float64(n))
	}
}

// RecordProviderAttempt counts one provider call.
func RecordProviderAttempt(endpoint, result string) {
	providerAttempts.WithLabelValues(endpoint, result).Inc()
}

// RecordBatchChunk counts one finished chunk.
func RecordBatchChunk(outcome string) {
	batchChunks.WithLabelValues(outcome).Inc()
}

// ObserveBatchDuration records the duration of one batch send.
func ObserveBatchDuration(d time.Duration) {
	batchDuration.Observe(d.Seconds())
}

// RecordWebhookEvent counts one verified webhook payload.
func RecordWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordWebhookRejection counts one refused webhook request.
func RecordWebhookRejection(reason string) {
	webhookRejections.WithLabelValues(reason).Inc()
}

// RecordRender counts one render request.
func RecordRender(outcome string) {
	renders.WithLabelValues(outcome).Inc()
}

// RecordDispatchJob counts one campaign job.
func RecordDispatchJob(outcome string) {
	dispatchJobs.WithLabelValues(outcome).Inc()
}
