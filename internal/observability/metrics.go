package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for the HTTP surface, the
// automation engine, and the sweeper. All methods are fire-and-forget and
// nil-safe so collaborators never need to guard against a missing sink.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	requestErrors *prometheus.CounterVec
	rulesFired    *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	dispatchTime  prometheus.Histogram
	recursionHits prometheus.Counter
	sweepsTotal   prometheus.Counter
	sweepTickets  prometheus.Counter
	sweepDispatch prometheus.Counter
	sweepDuration prometheus.Histogram
}

// NewMetrics registers all instruments on the given registerer. Duplicate
// registration is logged by the registerer itself; failures are not fatal.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketautomation_http_requests_total",
			Help: "HTTP requests by path, method, and status.",
		}, []string{"path", "method", "status"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketautomation_http_request_errors_total",
			Help: "HTTP requests that resolved to a domain error, by code.",
		}, []string{"path", "method", "code"}),
		rulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketautomation_rules_fired_total",
			Help: "Automation rules fired, by rule type.",
		}, []string{"rule_type"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketautomation_dispatches_total",
			Help: "Engine dispatches, by event kind.",
		}, []string{"event"}),
		dispatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticketautomation_dispatch_duration_seconds",
			Help:    "End-to-end dispatch duration including cascade passes.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
		recursionHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketautomation_dispatch_recursion_limit_total",
			Help: "Dispatches halted by the recursion ceiling.",
		}),
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketautomation_sweeps_total",
			Help: "Time-trigger sweep runs.",
		}),
		sweepTickets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketautomation_sweep_tickets_checked_total",
			Help: "Tickets examined across sweep runs.",
		}),
		sweepDispatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketautomation_sweep_dispatches_total",
			Help: "time_trigger dispatches fired by the sweeper.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticketautomation_sweep_duration_seconds",
			Help:    "Duration of each sweep run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.requestsTotal, m.requestErrors, m.rulesFired, m.dispatches,
		m.dispatchTime, m.recursionHits, m.sweepsTotal, m.sweepTickets,
		m.sweepDispatch, m.sweepDuration,
	} {
		_ = reg.Register(collector)
	}
	return m
}

// RecordRequest increments request counters.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.requestErrors.WithLabelValues(path, method, code).Inc()
}

// RecordRuleFired counts one rule firing.
func (m *Metrics) RecordRuleFired(ruleType string) {
	if m == nil {
		return
	}
	m.rulesFired.WithLabelValues(ruleType).Inc()
}

// RecordDispatch counts a completed dispatch and observes its duration.
func (m *Metrics) RecordDispatch(event string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(event).Inc()
	m.dispatchTime.Observe(duration.Seconds())
}

// RecordRecursionLimit counts a dispatch halted by the recursion ceiling.
func (m *Metrics) RecordRecursionLimit() {
	if m == nil {
		return
	}
	m.recursionHits.Inc()
}

// RecordSweep counts a sweep run.
func (m *Metrics) RecordSweep(ticketsChecked, dispatches int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepsTotal.Inc()
	m.sweepTickets.Add(float64(ticketsChecked))
	m.sweepDispatch.Add(float64(dispatches))
	m.sweepDuration.Observe(duration.Seconds())
}
