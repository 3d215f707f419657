package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/supportsoft/subhub/internal/pkg/lifecycle"
	"github.com/supportsoft/subhub/internal/pkg/scheduler"
)

var (
	engine  *lifecycle.Engine
	sweeper *scheduler.Manager
	clk     lifecycle.Clock = lifecycle.SystemClock{}
)

// Setup injects the collaborators the handlers dispatch to. Called once at
// bootstrap, before routes are installed. Handlers read "now" through the
// injected clock, the same one the engine and scheduler run on.
func Setup(e *lifecycle.Engine, s *scheduler.Manager, c lifecycle.Clock) {
	engine = e
	sweeper = s
	if c != nil {
		clk = c
	}
}

// lifecycleError translates a domain error from the subscription core into
// the matching JSON error response.
func lifecycleError(c *fiber.Ctx, err error) error {
	switch {
	case lifecycle.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case lifecycle.IsForbidden(err):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": err.Error()})
	case lifecycle.IsConflict(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	case lifecycle.IsInvalidInput(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Operation failed"})
	}
}

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": message})
}

func internalError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": message})
}
