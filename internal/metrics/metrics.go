// Package metrics exposes Prometheus collectors for the fare crawler.
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
	tasksInFlight          prometheus.Gauge
	taskAttemptsTotal      *prometheus.CounterVec
	taskRetriesTotal       *prometheus.CounterVec
	captchaTotal           prometheus.Counter
	batchesTotal           *prometheus.CounterVec
	activeWorkers          prometheus.Gauge
	rateLimitDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors on the default registry. It is safe to call
// more than once and every helper calls it lazily.
func Init() {
	once.Do(func() {
		tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flights_tasks_in_flight",
			Help: "Number of scrape tasks currently admitted.",
		})
		taskAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flights_task_attempts_total",
			Help: "Scrape attempts partitioned by attempt number.",
		}, []string{"attempt"})
		taskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flights_task_retries_total",
			Help: "Retries triggered by transient scrape failures.",
		}, []string{"reason"})
		captchaTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "flights_captcha_detections_total",
			Help: "Tasks that ran into a bot-detection page.",
		})
		batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flights_batches_total",
			Help: "Batches processed, labeled by result.",
		}, []string{"result"})
		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flights_active_workers",
			Help: "Service workers currently running a batch.",
		})
		rateLimitDelaySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flights_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the navigation rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"host"})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"})
		httpRequestDurationSec = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"})
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HostLabel reduces a URL to a lowercase host, or "unknown".
func HostLabel(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// IncTasksInFlight marks a task as admitted.
func IncTasksInFlight() {
	Init()
	tasksInFlight.Inc()
}

// DecTasksInFlight marks an admitted task as finished.
func DecTasksInFlight() {
	Init()
	tasksInFlight.Dec()
}

// ObserveAttempt counts one scrape attempt.
func ObserveAttempt(attempt int) {
	Init()
	taskAttemptsTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// ObserveRetry counts a retry and why it happened.
func ObserveRetry(reason string) {
	Init()
	taskRetriesTotal.WithLabelValues(reason).Inc()
}

// ObserveCaptcha counts a bot-detection hit.
func ObserveCaptcha() {
	Init()
	captchaTotal.Inc()
}

// ObserveBatch counts a finished batch.
func ObserveBatch(result string) {
	Init()
	batchesTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records a limiter wait.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSec.WithLabelValues(method, route).Observe(d.Seconds())
}
