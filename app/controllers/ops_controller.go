package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// HandleRunExpiryReminders triggers one reminder sweep on demand. It runs
// the exact code path the scheduled sweep uses.
func HandleRunExpiryReminders(c *fiber.Ctx) error {
	sent, err := sweeper.RunExpiryNotificationsOnce()
	if err != nil {
		return internalError(c, "Reminder sweep failed")
	}
	return c.JSON(fiber.Map{"reminders_sent": sent})
}

// HandleRunExpirationCheck triggers one expiration sweep on demand.
func HandleRunExpirationCheck(c *fiber.Ctx) error {
	cancelled, expired, err := sweeper.RunExpirationCheckOnce()
	if err != nil {
		return internalError(c, "Expiration sweep failed")
	}
	return c.JSON(fiber.Map{
		"cancelled": cancelled,
		"expired":   expired,
	})
}

// HandleSchedulerStatus reports whether the sweep manager is running.
func HandleSchedulerStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"running": sweeper.IsRunning()})
}
