package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec
	retrievals       *prometheus.CounterVec
	intents          *prometheus.CounterVec
	conflicts        prometheus.Counter
	scopeViolations  prometheus.Counter
	otpOutcomes      *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrassist_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hrassist_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrassist_provider_failures_total",
			Help: "Model provider calls that exhausted their retries.",
		}, []string{"operation"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrassist_policy_answers_total",
			Help: "Policy questions by outcome.",
		}, []string{"outcome"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrassist_intents_total",
			Help: "Routed chat turns by intent kind.",
		}, []string{"kind"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrassist_leave_conflicts_total",
			Help: "Leave decisions rejected because the request was already decided.",
		}),
		scopeViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrassist_query_scope_violations_total",
			Help: "Generated query plans rejected by validation.",
		}),
		otpOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrassist_otp_verifications_total",
			Help: "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests,
		c.requestDuration,
		c.providerFailures,
		c.retrievals,
		c.intents,
		c.conflicts,
		c.scopeViolations,
		c.otpOutcomes,
	)
	return c
}

func (c *Collector) Record(method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) ProviderFailure(operation string) {
	if c == nil {
		return
	}
	c.providerFailures.WithLabelValues(operation).Inc()
}

func (c *Collector) PolicyAnswer(found bool) {
	if c == nil {
		return
	}
	outcome := "answered"
	if !found {
		outcome = "not_found"
	}
	c.retrievals.WithLabelValues(outcome).Inc()
}

func (c *Collector) Intent(kind string) {
	if c == nil {
		return
	}
	c.intents.WithLabelValues(kind).Inc()
}

func (c *Collector) WorkflowConflict() {
	if c == nil {
		return
	}
	c.conflicts.Inc()
}

func (c *Collector) ScopeViolation() {
	if c == nil {
		return
	}
	c.scopeViolations.Inc()
}

func (c *Collector) OTPOutcome(outcome string) {
	if c == nil {
		return
	}
	c.otpOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
