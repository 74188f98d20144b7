package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gateDecisions      *prometheus.CounterVec
	dispatchOutcomes   *prometheus.CounterVec
	auditWrites        *prometheus.CounterVec
	auditMirrorErrors  prometheus.Counter
	ticketTransitions  *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Authorization gate decisions by command and reason.",
		}, []string{"command", "decision", "reason"}),
		dispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Dispatcher outcomes by command.",
		}, []string{"command", "outcome"}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Durable audit writes by result.",
		}, []string{"result"}),
		auditMirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_mirror_failures_total",
			Help: "Failed best-effort audit stream mirrors.",
		}),
		ticketTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_transitions_total",
			Help: "Ticket status transitions.",
		}, []string{"from", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(
		m.gateDecisions, m.dispatchOutcomes, m.auditWrites, m.auditMirrorErrors,
		m.ticketTransitions, m.httpRequests, m.httpRequestSeconds,
	)
	return m
}

func (m *Metrics) GateDecision(command, decision, reason string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(command, decision, reason).Inc()
}

func (m *Metrics) DispatchOutcome(command, outcome string) {
	if m == nil {
		return
	}
	m.dispatchOutcomes.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) AuditWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.auditWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) AuditMirrorFailed() {
	if m == nil {
		return
	}
	m.auditMirrorErrors.Inc()
}

func (m *Metrics) TicketTransition(from, to string) {
	if m == nil {
		return
	}
	m.ticketTransitions.WithLabelValues(from, to).Inc()
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		path := c.Route().Path
		labels := []string{c.Method(), path, strconv.Itoa(status)}
		m.httpRequests.WithLabelValues(labels...).Inc()
		m.httpRequestSeconds.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return err
	}
}
