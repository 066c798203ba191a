// Package metrics - Prometheus-метрики сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry - реестр метрик сервиса
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blog",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	likeToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "likes",
			Name:      "toggles_total",
			Help:      "Like toggles acknowledged by the backend.",
		},
		[]string{"action"},
	)

	commentsPosted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "comments",
			Name:      "posted_total",
			Help:      "Comments appended.",
		},
	)

	commentSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blog",
			Subsystem: "comments",
			Name:      "active_subscriptions",
			Help:      "Open live comment subscriptions.",
		},
	)

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Media uploads by result.",
		},
		[]string{"success"},
	)

	writeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "backend",
			Name:      "write_failures_total",
			Help:      "Backend write failures by operation.",
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		likeToggles,
		commentsPosted,
		commentSubscriptions,
		uploads,
		writeFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler отдаёт метрики из Registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware собирает метрики HTTP-запросов. Маршрут берётся из шаблона gin, а не из URL.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordLike - action: "like" или "unlike"
func RecordLike(action string) {
	likeToggles.WithLabelValues(action).Inc()
}

func RecordComment() {
	commentsPosted.Inc()
}

// SubscriptionOpened и SubscriptionClosed ведут счётчик живых подписок на комментарии
func SubscriptionOpened() { commentSubscriptions.Inc() }
func SubscriptionClosed() { commentSubscriptions.Dec() }

func RecordUpload(success bool) {
	uploads.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordWriteFailure считает ошибки записи, которые пользователь не видит
func RecordWriteFailure(op string) {
	writeFailures.WithLabelValues(op).Inc()
}
