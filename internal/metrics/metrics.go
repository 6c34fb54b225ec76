// Package metrics holds the Prometheus collectors for the relay. All
// collectors are registered with the default registry and are safe for
// concurrent use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WebhookEvents counts inbound webhook calls by classified event type.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feishu_webhook_events_total",
			Help: "Inbound webhook events by classified type.",
		},
		[]string{"type"},
	)

	// TokenMismatch counts webhook calls whose verification token did not match.
	TokenMismatch = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feishu_token_mismatch_total",
			Help: "Webhook calls rejected for a wrong verification token.",
		},
	)

	// TokenFetches counts tenant access token acquisitions by source and result.
	TokenFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feishu_tenant_token_total",
			Help: "Tenant access token lookups by source (cache|remote) and result.",
		},
		[]string{"source", "result"},
	)

	// Sends counts outbound send-message attempts by result.
	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feishu_send_total",
			Help: "Send-message attempts by result (ok|auth_error|error).",
		},
		[]string{"result"},
	)

	// DispatchOutcomes counts finished dispatches by terminal state.
	DispatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Message dispatches by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// DispatchDropped counts messages rejected because the queue was full.
	DispatchDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_dropped_total",
			Help: "Messages dropped because the dispatch queue was full.",
		},
	)

	// DispatchQueueDepth reports queued, not yet started dispatches.
	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Messages waiting for a dispatch worker.",
		},
	)

	// NLULatency records Dialogflow round trips in seconds by call kind.
	NLULatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlu_request_duration_seconds",
			Help:    "Duration of NLU requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// DedupPurged counts expired dedup records removed by the purge job.
	DedupPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_purged_total",
			Help: "Expired dedup records removed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WebhookEvents, TokenMismatch, TokenFetches, Sends,
		DispatchOutcomes, DispatchDropped, DispatchQueueDepth,
		NLULatency, DedupPurged,
		httpReqs, httpLat, httpInflight,
	)
}
