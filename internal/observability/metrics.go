package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. Each instance owns its
// registry so tests can build as many as they like. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpErrors    *prometheus.CounterVec
	messages      *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	subscriptions prometheus.Gauge
	resyncs       prometheus.Counter
	tickets       *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_support_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "banking_support_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_support_http_errors_total",
			Help: "HTTP requests that ended in a domain error",
		}, []string{"method", "path", "code"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_support_messages_appended_total",
			Help: "Messages appended to support threads",
		}, []string{"type", "author"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_support_uploads_total",
			Help: "Attachment uploads by bucket and outcome",
		}, []string{"bucket", "outcome"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "banking_support_realtime_subscriptions",
			Help: "Open realtime subscriptions",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banking_support_realtime_resyncs_total",
			Help: "Subscribers that fell behind and were told to re-fetch",
		}),
		tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_support_tickets_submitted_total",
			Help: "Support tickets submitted",
		}, []string{"priority"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_support_service_requests_total",
			Help: "Banking requests by kind and action",
		}, []string{"kind", "action"}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.httpErrors,
		m.messages,
		m.uploads,
		m.subscriptions,
		m.resyncs,
		m.tickets,
		m.requests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RecordRequest observes one completed HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) MessageAppended(kind string, fromStaff bool) {
	if m == nil {
		return
	}
	author := "customer"
	if fromStaff {
		author = "staff"
	}
	m.messages.WithLabelValues(kind, author).Inc()
}

func (m *Metrics) UploadFinished(bucket string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.uploads.WithLabelValues(bucket, outcome).Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

func (m *Metrics) SubscriberResynced() {
	if m == nil {
		return
	}
	m.resyncs.Inc()
}

func (m *Metrics) TicketSubmitted(priority string) {
	if m == nil {
		return
	}
	m.tickets.WithLabelValues(priority).Inc()
}

// RequestRecorded counts a banking request action ("submitted" or "reviewed").
func (m *Metrics) RequestRecorded(kind, action string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, action).Inc()
}
