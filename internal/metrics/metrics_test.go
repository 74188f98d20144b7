package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.GateDecision("ban", "denied", "cooldown-active")
	m.GateDecision("ban", "denied", "cooldown-active")
	m.DispatchOutcome("ban", "success")
	m.AuditWrite(nil)
	m.AuditWrite(errors.New("down"))
	m.AuditMirrorFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues("ban", "denied", "cooldown-active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchOutcomes.WithLabelValues("ban", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditMirrorErrors))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.GateDecision("ban", "proceed", "")
	m.DispatchOutcome("ban", "success")
	m.AuditWrite(nil)
	m.AuditMirrorFailed()
	m.TicketTransition("open", "closed")
}

func TestMiddleware(t *testing.T) {
	m := New(prometheus.NewRegistry())
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/health", "200")))
}
