// Package metrics provides Prometheus metrics for the resume update pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcomes used as the "outcome" label.
const (
	NotificationSent     = "sent"
	NotificationCooldown = "cooldown"
	NotificationFailed   = "failed"
)

// Manager owns every collector of the service. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	eventsIngested    *prometheus.CounterVec
	triggersFired     prometheus.Counter
	drafts            *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	reviewsSaved      prometheus.Counter
	trackersDiscarded prometheus.Counter
	versionConflicts  prometheus.Counter
	llmCalls          *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom histogram buckets for latency metrics.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers the collectors on registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "resume_updater",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "events_ingested_total",
		Help:      "Key member events processed, by result status",
	}, []string{"status"})

	m.triggersFired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "triggers_fired_total",
		Help:      "Trackers moved to in_progress by the trigger engine",
	})

	m.drafts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "drafts_total",
		Help:      "Draft generations, by result",
	}, []string{"result"})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "notifications_total",
		Help:      "Notification attempts, by outcome",
	}, []string{"outcome"})

	m.reviewsSaved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "reviews_saved_total",
		Help:      "Trackers marked as added to the resume",
	})

	m.trackersDiscarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "trackers_discarded_total",
		Help:      "Trackers discarded by employees",
	})

	m.versionConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "tracker_version_conflicts_total",
		Help:      "Conditional tracker writes rejected because the stored version moved",
	})

	m.llmCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "llm_calls_total",
		Help:      "Language model calls, by operation and result",
	}, []string{"operation", "result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by route, method and status code",
	}, []string{"route", "method", "code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

func (m *Manager) EventIngested(status string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(status).Inc()
}

func (m *Manager) TriggerFired() {
	if m == nil {
		return
	}
	m.triggersFired.Inc()
}

func (m *Manager) DraftGenerated(ok bool) {
	if m == nil {
		return
	}
	m.drafts.WithLabelValues(result(ok)).Inc()
}

func (m *Manager) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Manager) ReviewSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reviewsSaved.Add(float64(n))
}

func (m *Manager) TrackerDiscarded() {
	if m == nil {
		return
	}
	m.trackersDiscarded.Inc()
}

func (m *Manager) VersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *Manager) LLMCall(operation string, ok bool) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(operation, result(ok)).Inc()
}

func (m *Manager) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
