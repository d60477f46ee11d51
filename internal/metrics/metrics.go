// Package metrics exposes Prometheus collectors for the stock monitor.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal                *prometheus.CounterVec
	taskAttemptsTotal          *prometheus.CounterVec
	taskDurationSeconds        *prometheus.HistogramVec
	activeSessions             prometheus.Gauge
	poolRestartsTotal          *prometheus.CounterVec
	consecutiveNavTimeouts     prometheus.Gauge
	notificationsTotal         *prometheus.CounterVec
	stockChangesTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmon_checks_total",
				Help: "Total number of stock checks, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		taskAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmon_task_attempts_total",
				Help: "Total number of pool task attempts, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		taskDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockmon_task_duration_seconds",
				Help:    "Histogram of pool task durations including retries.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"site"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockmon_active_sessions",
				Help: "Number of browser sessions currently running a task.",
			},
		)

		poolRestartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmon_pool_restarts_total",
				Help: "Total number of pool restarts, labeled by reason.",
			},
			[]string{"reason"},
		)

		consecutiveNavTimeouts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockmon_consecutive_nav_timeouts",
				Help: "Current run of consecutive navigation timeouts.",
			},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmon_notifications_total",
				Help: "Total number of notifications, labeled by channel and status.",
			},
			[]string{"channel", "status"},
		)

		stockChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmon_stock_changes_total",
				Help: "Total number of detected stock changes, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockmon_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if trimmed := strings.TrimPrefix(host, "www."); trimmed != "" {
		return trimmed
	}
	return host
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheck counts one completed check for the target URL.
func ObserveCheck(target, outcome string) {
	Init()
	checksTotal.WithLabelValues(SanitizeSite(target), outcome).Inc()
}

// ObserveTaskAttempt counts one pool attempt.
func ObserveTaskAttempt(target, result string) {
	Init()
	taskAttemptsTotal.WithLabelValues(SanitizeSite(target), result).Inc()
}

// ObserveTaskDuration records the wall time of a submitted task.
func ObserveTaskDuration(target string, duration time.Duration) {
	Init()
	taskDurationSeconds.WithLabelValues(SanitizeSite(target)).Observe(duration.Seconds())
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// ObservePoolRestart counts a completed pool restart.
func ObservePoolRestart(reason string) {
	Init()
	poolRestartsTotal.WithLabelValues(reason).Inc()
}

// SetConsecutiveNavTimeouts publishes the health counter.
func SetConsecutiveNavTimeouts(n int) {
	Init()
	consecutiveNavTimeouts.Set(float64(n))
}

// ObserveNotification counts a notification attempt on channel.
func ObserveNotification(channel string, err error) {
	Init()
	status := "sent"
	if err != nil {
		status = "failed"
	}
	notificationsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveStockChange counts a detected change for the target URL.
func ObserveStockChange(target string) {
	Init()
	stockChangesTotal.WithLabelValues(SanitizeSite(target)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
