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
)

const namespace = "usermatch"

// PrometheusRecorder exposes Recorder events as Prometheus collectors.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	pools            *prometheus.CounterVec
	matches          *prometheus.CounterVec
	fanout           prometheus.Histogram
	decisionSkips    prometheus.Counter

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheus builds a recorder backed by its own registry.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Upstream calls by service, operation and outcome.",
		}, []string{"service", "operation", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Duration of upstream calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 11), // 5ms to ~5s
		}, []string{"service", "operation"}),
		pools: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pools",
			Name:      "placements_total",
			Help:      "Users placed into pools, by whether the pool was created.",
		}, []string{"kind"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matches",
			Name:      "creations_total",
			Help:      "Match creation attempts during generation, by result.",
		}, []string{"result"}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matches",
			Name:      "generation_peers",
			Help:      "Peers selected per generation run.",
			Buckets:   prometheus.LinearBuckets(0, 2, 11),
		}),
		decisionSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decisions",
			Name:      "fetch_skipped_total",
			Help:      "Per-match decision lookups skipped during aggregation.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
	}

	p.registry.MustRegister(
		p.upstreamCalls,
		p.upstreamDuration,
		p.pools,
		p.matches,
		p.fanout,
		p.decisionSkips,
		p.httpInFlight,
		p.httpRequests,
		p.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return p
}

// Handler returns the exposition endpoint for this recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveUpstreamCall records one upstream call.
func (p *PrometheusRecorder) ObserveUpstreamCall(service, operation, outcome string, duration time.Duration) {
	p.upstreamCalls.WithLabelValues(service, operation, outcome).Inc()
	p.upstreamDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// IncPoolCreated records a placement into a newly created pool.
func (p *PrometheusRecorder) IncPoolCreated() {
	p.pools.WithLabelValues("created").Inc()
}

// IncPoolJoined records a placement into an existing pool.
func (p *PrometheusRecorder) IncPoolJoined() {
	p.pools.WithLabelValues("joined").Inc()
}

// IncMatchCreated records a successful match creation.
func (p *PrometheusRecorder) IncMatchCreated() {
	p.matches.WithLabelValues("created").Inc()
}

// IncMatchSkipped records a swallowed match creation failure.
func (p *PrometheusRecorder) IncMatchSkipped() {
	p.matches.WithLabelValues("skipped").Inc()
}

// ObserveGenerationFanout records how many peers a generation run targeted.
func (p *PrometheusRecorder) ObserveGenerationFanout(peers int) {
	p.fanout.Observe(float64(peers))
}

// IncDecisionFetchSkipped records a skipped decision lookup.
func (p *PrometheusRecorder) IncDecisionFetchSkipped() {
	p.decisionSkips.Inc()
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Routes are labelled by their chi pattern so user ids do not explode cardinality.
func (p *PrometheusRecorder) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		p.httpInFlight.Inc()
		defer p.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		p.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
