package mgmt

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/focusguild/focusbot/internal/health"
	"github.com/focusguild/focusbot/internal/reset"
	"github.com/focusguild/focusbot/internal/session"
)

// ResetRunner is the administrative reset trigger.
type ResetRunner interface {
	ForceRun(ctx context.Context) (reset.Summary, bool)
	Running() bool
}

// Handlers holds dependencies for the admin API endpoints.
type Handlers struct {
	scheduler ResetRunner
	registry  *session.Registry
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a Handlers instance.
func NewHandlers(scheduler ResetRunner, registry *session.Registry, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		scheduler: scheduler,
		registry:  registry,
		checker:   checker,
		logger:    logger.With().Str("component", "mgmt.handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}

	resp := fiber.Map{"checks": results}
	if ready {
		resp["status"] = "ready"
		return c.JSON(resp)
	}
	resp["status"] = "not_ready"
	return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
}

// Status handles GET /api/v1/status.
func (h *Handlers) Status(c *fiber.Ctx) error {
	active, grace := h.registry.Counts()
	return c.JSON(StatusResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		ActiveSessions: active,
		GraceSessions:  grace,
		ResetRunning:   h.scheduler.Running(),
		Checks:         h.checker.RunAll(c.Context()),
	})
}

// ForceReset handles POST /api/v1/reset, the administrative trigger
// for the daily reset.
func (h *Handlers) ForceReset(c *fiber.Ctx) error {
	sum, ok := h.scheduler.ForceRun(c.Context())
	if !ok {
		return problemResponse(c, fiber.StatusConflict,
			"reset_in_flight", "Conflict",
			"A reset is already running or today's boundary was already processed")
	}

	h.logger.Info().Int("users_crossed", sum.UsersCrossed).Msg("manual reset triggered via api")

	return c.JSON(ResetResponse{
		Trigger:          sum.Trigger,
		Boundary:         sum.Boundary.Format(time.RFC3339),
		UsersCrossed:     sum.UsersCrossed,
		SessionsSplit:    sum.SessionsSplit,
		SessionsClosed:   sum.SessionsClosed,
		MinutesProcessed: sum.MinutesProcessed,
		PointsAwarded:    sum.PointsAwarded,
		StatsArchived:    sum.StatsArchived,
		TasksDeleted:     sum.TasksDeleted,
		UsersNotified:    sum.UsersNotified,
		QuotaRowsReset:   sum.QuotaRowsReset,
		Errors:           sum.PhaseErrors,
		DurationMs:       sum.Duration.Milliseconds(),
	})
}
