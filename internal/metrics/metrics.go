package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's collectors. A nil *Metrics is valid and
// records nothing, so packages can take one optionally.
type Metrics struct {
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	QuestionsServed *prometheus.CounterVec
	AnswersGraded   *prometheus.CounterVec
	Completions     prometheus.Counter
	Degraded        *prometheus.CounterVec
	OracleDuration  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New builds the collectors and registers them on reg. A nil reg gets a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		QuestionsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_questions_served_total",
				Help: "Questions served adaptively, by distance from the oracle's target difficulty",
			},
			[]string{"offset"},
		),
		AnswersGraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_answers_total",
				Help: "Graded answers by correctness",
			},
			[]string{"correct"},
		),
		Completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_completions_total",
			Help: "Attempts sealed by the finalizer",
		}),
		Degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_oracle_degraded_total",
				Help: "Best-effort oracle notifications that failed",
			},
			[]string{"op"},
		),
		OracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_request_duration_seconds",
				Help:    "Latency of difficulty oracle calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "outcome"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.RequestCounter, m.RequestDuration,
		m.QuestionsServed, m.AnswersGraded, m.Completions, m.Degraded, m.OracleDuration,
	)
	return m
}

func (m *Metrics) QuestionServed(offset int) {
	if m == nil {
		return
	}
	m.QuestionsServed.WithLabelValues(strconv.Itoa(offset)).Inc()
}

func (m *Metrics) AnswerGraded(correct bool) {
	if m == nil {
		return
	}
	m.AnswersGraded.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) Completed() {
	if m == nil {
		return
	}
	m.Completions.Inc()
}

func (m *Metrics) OracleDegraded(op string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveOracle(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OracleDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// Middleware records request count and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
