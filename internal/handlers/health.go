package handlers

import (
	"context"
	"time"

	"tapdeal/internal/repositories"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

// HealthChecker is implemented by the cache service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	store repositories.Store
	cache HealthChecker
}

// NewHealthHandler builds the health endpoint. cache may be nil when the
// service runs without redis.
func NewHealthHandler(store repositories.Store, cache HealthChecker) *HealthHandler {
	return &HealthHandler{store: store, cache: cache}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	status := fiber.StatusOK
	services := fiber.Map{"database": "connected", "redis": "disabled"}

	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("database health check failed")
		services["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	}
	if h.cache != nil {
		services["redis"] = "connected"
		if err := h.cache.HealthCheck(ctx); err != nil {
			log.Error().Err(err).Msg("redis health check failed")
			services["redis"] = "unavailable"
			status = fiber.StatusServiceUnavailable
		}
	}

	state := "ok"
	if status != fiber.StatusOK {
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   state,
		"services": services,
	})
}
