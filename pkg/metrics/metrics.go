// Package metrics exposes pulse counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/pulse/pkg/notifications"
)

const namespace = "pulse"

// Source reports live counts for the gauges. Values are read at scrape time.
type Source interface {
	Connections() int
	OnlineUsers() int
	ActiveRooms() int
}

// Metrics holds every pulse collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	fanoutDelivered prometheus.Counter
	fanoutFailed    prometheus.Counter
	fanoutQueued    prometheus.Counter
	dispatches      *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	evictions       prometheus.Counter
	overflows       prometheus.Counter
	inbound         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var _ notifications.Observer = (*Metrics)(nil)

// New registers the collectors. src may be nil when no gauges are wanted.
func New(src Source) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fanoutDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "deliveries_total",
			Help:      "Messages accepted by live connections.",
		}),
		fanoutFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "failures_total",
			Help:      "Messages rejected by closed or full connections.",
		}),
		fanoutQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "offline_notifications_total",
			Help:      "Notifications queued for offline participants.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "channel_attempts_total",
			Help:      "Notification channel attempts by outcome.",
		}, []string{"channel", "outcome"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "channel_duration_seconds",
			Help:      "Duration of notification channel attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"channel"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "store_evictions_total",
			Help:      "Notifications evicted from full per-user buffers.",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "queue_overflows_total",
			Help:      "Connections closed because their outbound queue filled up.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "inbound_events_total",
			Help:      "Client events received by name and outcome.",
		}, []string{"event", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.fanoutDelivered,
		m.fanoutFailed,
		m.fanoutQueued,
		m.dispatches,
		m.dispatchLatency,
		m.evictions,
		m.overflows,
		m.inbound,
		m.httpRequests,
		m.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	if src != nil {
		m.registry.MustRegister(
			gauge("connections", "open", "Open WebSocket connections.", src.Connections),
			gauge("presence", "online_users", "Identities with at least one connection.", src.OnlineUsers),
			gauge("rooms", "active", "Conversations with at least one subscribed connection.", src.ActiveRooms),
		)
	}
	return m
}

func gauge(subsystem, name, help string, fn func() int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChannelAttempt(channel notifications.ChannelName, success bool, took time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.dispatches.WithLabelValues(string(channel), outcome).Inc()
	if took > 0 {
		m.dispatchLatency.WithLabelValues(string(channel)).Observe(took.Seconds())
	}
}

func (m *Metrics) StoreEvicted(n int) {
	m.evictions.Add(float64(n))
}

func (m *Metrics) MessageFanout(delivered, failed, queued int) {
	m.fanoutDelivered.Add(float64(delivered))
	m.fanoutFailed.Add(float64(failed))
	m.fanoutQueued.Add(float64(queued))
}

// QueueOverflow counts a connection dropped for a full outbound queue.
func (m *Metrics) QueueOverflow() {
	m.overflows.Inc()
}

// InboundEvent counts a client event. outcome is "ok" or an error code.
func (m *Metrics) InboundEvent(event, outcome string) {
	m.inbound.WithLabelValues(event, outcome).Inc()
}

// Instrument records request counts and latency keyed by chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || websocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
