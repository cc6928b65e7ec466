package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks   map[string]Check
	services map[string]bool
}

// NewHealthHandler reports checks as up or down and services as whether
// they are configured or mocked.
func NewHealthHandler(checks map[string]Check, services map[string]bool) *HealthHandler {
	return &HealthHandler{checks: checks, services: services}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = fiber.Map{"status": "down", "error": err.Error()}
			status = "degraded"
			continue
		}
		deps[name] = fiber.Map{"status": "up"}
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"dependencies": deps,
		"services":     h.services,
	})
}
