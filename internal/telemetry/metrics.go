// Package telemetry provides application-level observability for the Chatdeck
// backend.
//
// All metrics are registered against the default Prometheus registry and served
// on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CD_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router, so it is never
// behind auth or rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/api-keys/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Chat metrics, recorded by the /chat/send handler and the key resolver.
//
// ChatRequestsTotal is labelled by provider and key source ("user" for a
// personal default key, "app" for a platform key serving a free-tier call).
// ChatRejectionsTotal is labelled by provider and reason code
// (QUOTA_EXCEEDED, USER_KEY_REQUIRED, PROVIDER_NOT_CONFIGURED).
//
// Example PromQL queries:
//   - Free-tier share:        sum(rate(chat_requests_total{source="app"}[1h])) / sum(rate(chat_requests_total[1h]))
//   - Quota-rejection alert:  increase(chat_rejections_total{reason="QUOTA_EXCEEDED"}[30m]) > 100
var (
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total number of chat completions served, by provider and key source.",
		},
		[]string{"provider", "source"},
	)

	ChatRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rejections_total",
			Help: "Total number of chat requests rejected by the key resolution policy, by provider and reason.",
		},
		[]string{"provider", "reason"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_upstream_duration_seconds",
			Help:    "Histogram of upstream LLM provider call latencies, by provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)
)

// MailSendFailuresTotal counts outbound email deliveries that failed, by kind
// (otp, reset). OTP issuance is soft-fail: the code is stored even when the
// email bounces, so this counter is the only deployment-wide signal that SMTP
// is broken. Alert on any sustained increase.
var MailSendFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mail_send_failures_total",
		Help: "Total number of failed outbound notification emails, by kind.",
	},
	[]string{"kind"},
)

// PaymentWebhookRejectionsTotal counts webhook deliveries rejected for a bad
// signature. A nonzero rate usually means a misconfigured webhook secret.
var PaymentWebhookRejectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "payment_webhook_rejections_total",
		Help: "Total number of payment webhook deliveries rejected due to signature mismatch.",
	},
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. It is sampled every 30 seconds by StartDBStatsCollector
// rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the
// DBOpenConnections gauge. The goroutine exits cleanly when the database
// becomes unreachable (db.Ping fails), which happens automatically when the
// application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
