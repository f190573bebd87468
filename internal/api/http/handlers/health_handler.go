package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/appointment-service/internal/observability"
)

const readinessTimeout = 2 * time.Second

// Dependency is an optional backing service probed by the readiness check.
type Dependency interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    Dependency
	redis       Dependency
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance. Nil dependencies count as disabled.
func NewHealthHandler(serviceName, version string, postgres, redis Dependency, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, postgres: postgres, redis: redis, metrics: metrics}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings each configured dependency. Disabled ones are reported but never fail readiness;
// the postgres entry says so explicitly because the service then runs on the in-memory store.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	pgStatus, pgOK := probe(ctx, h.postgres, "disabled (in-memory store)")
	redisStatus, redisOK := probe(ctx, h.redis, "disabled")
	depStatus := fiber.Map{"postgres": pgStatus, "redis": redisStatus}

	if pgOK && redisOK {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

func probe(ctx context.Context, dep Dependency, disabled string) (string, bool) {
	if dep == nil || !dep.Enabled() {
		return disabled, true
	}
	if err := dep.Ping(ctx); err != nil {
		return err.Error(), false
	}
	return "ok", true
}

// Metrics exposes the in-memory request counters.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	if h.metrics == nil {
		return c.JSON(fiber.Map{"data": fiber.Map{}})
	}
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
