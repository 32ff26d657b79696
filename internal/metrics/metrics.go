// Package metrics registers the relay's Prometheus collectors on the default
// registry and exposes them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

var (
	// MessagesTotal counts relay outcomes by classification label.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_messages_total",
			Help: "Messages handled by the relay, by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	// InboundTotal counts updates accepted from Telegram, by ingress path.
	InboundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_inbound_updates_total",
			Help: "Updates received from Telegram, by source (webhook or polling)",
		},
		[]string{"source"},
	)

	// WebhookRejected counts webhook requests refused before decoding.
	WebhookRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_webhook_rejected_total",
			Help: "Webhook requests rejected, by reason",
		},
		[]string{"reason"},
	)

	// BusDropped counts inbound messages lost before reaching the relay loop.
	BusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_bus_dropped_total",
			Help: "Inbound messages dropped by the bus, by reason (full, closed, cancelled, shutdown)",
		},
		[]string{"reason"},
	)

	SinkLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signalrelay_sink_latency_seconds",
			Help:    "Latency of Bot API send calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"media"},
	)

	KeepAlivePings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_keepalive_pings_total",
			Help: "Keep-alive self pings, by result",
		},
		[]string{"result"},
	)

	_ = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "signalrelay_uptime_seconds",
			Help: "Time since process start in seconds",
		},
		func() float64 { return Uptime().Seconds() },
	)
)

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(startTime)
}

// Handler renders the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
