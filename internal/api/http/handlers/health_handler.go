package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lifecycle-engine/internal/observability"
)

const probeTimeout = 2 * time.Second

// Probe checks one backend. A nil Check marks the backend as not configured.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler responds to liveness, readiness and metrics requests.
type HealthHandler struct {
	serviceName string
	version     string
	metrics     *observability.Metrics
	probes      []Probe
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, metrics *observability.Metrics, probes ...Probe) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, metrics: metrics, probes: probes}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready runs every probe. Unconfigured backends report "disabled" and do not fail readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	deps := make(map[string]string, len(h.probes))
	ready := true
	for _, p := range h.probes {
		switch {
		case p.Check == nil:
			deps[p.Name] = "disabled"
		case p.Check(ctx) != nil:
			deps[p.Name] = "unreachable"
			ready = false
		default:
			deps[p.Name] = "ok"
		}
	}

	if !ready {
		details := make(map[string]any, len(deps))
		for k, v := range deps {
			details[k] = v
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": details,
		}})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": deps})
}

// Metrics reports in-process counters.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
