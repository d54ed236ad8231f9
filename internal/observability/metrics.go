package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	sessionsFinished  *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	messagesSent      *prometheus.CounterVec
	generationFailure prometheus.Counter
	deliveryFailure   prometheus.Counter
	repliesCorrelated prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "banter_sessions_active",
					Help: "Current active banter session count.",
				},
			),
			sessionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "banter_sessions_total",
					Help: "Total banter sessions started.",
				},
			),
			sessionsFinished: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "banter_sessions_finished_total",
					Help: "Total banter sessions finished by terminal state.",
				},
				[]string{"state"},
			),
			sessionDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "banter_session_duration_seconds",
					Help:    "Banter session lifetime in seconds.",
					Buckets: prometheus.ExponentialBuckets(60, 4, 8),
				},
			),
			messagesSent: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "banter_messages_sent_total",
					Help: "Total banter messages sent by kind.",
				},
				[]string{"kind"},
			),
			generationFailure: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "banter_generation_failures_total",
					Help: "Total LLM generation failures that fell back to canned text.",
				},
			),
			deliveryFailure: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "banter_delivery_failures_total",
					Help: "Total message delivery failures.",
				},
			),
			repliesCorrelated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "banter_replies_correlated_total",
					Help: "Total subject replies correlated back to a session.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsTotal,
			m.sessionsFinished,
			m.sessionDuration,
			m.messagesSent,
			m.generationFailure,
			m.deliveryFailure,
			m.repliesCorrelated,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionStart() {
	getMetrics().sessionsTotal.Inc()
}

func RecordSessionFinish(state string, lifetime time.Duration) {
	m := getMetrics()
	m.sessionsFinished.WithLabelValues(state).Inc()
	m.sessionDuration.Observe(lifetime.Seconds())
}

func RecordMessageSent(kind string) {
	getMetrics().messagesSent.WithLabelValues(kind).Inc()
}

func RecordGenerationFailure() {
	getMetrics().generationFailure.Inc()
}

func RecordDeliveryFailure() {
	getMetrics().deliveryFailure.Inc()
}

func RecordReplyCorrelated() {
	getMetrics().repliesCorrelated.Inc()
}
