package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/usercontext"
)

type createSubscriptionRequest struct {
	PlanID    uint   `json:"plan_id" validate:"required,min=1"`
	StartDate string `json:"start_date" validate:"omitempty"`
}

type upgradeSubscriptionRequest struct {
	PlanID uint `json:"plan_id" validate:"required,min=1"`
}

type cancelSubscriptionRequest struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason" validate:"omitempty,max=255"`
}

// HandleCreateSubscription subscribes the authenticated user to a plan.
func HandleCreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var startDate *time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return badRequest(c, "start_date must be RFC3339")
		}
		startDate = &parsed
	}

	sub, err := engine.Create(usercontext.GetUserID(c), req.PlanID, startDate)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscription": sub})
}

// HandleGetMySubscription returns the user's current subscription. The read
// runs the lazy expiry check, so a lapsed record comes back already expired.
func HandleGetMySubscription(c *fiber.Ctx) error {
	sub, err := engine.CheckStatus(usercontext.GetUserID(c))
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleSubscriptionHistory returns all of the user's subscription records,
// newest first.
func HandleSubscriptionHistory(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()
	history, err := repo.HistoryByUserID(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load history")
	}
	return c.JSON(fiber.Map{"subscriptions": history})
}

// HandleUpgradeSubscription switches the user's active subscription to a
// different plan. Billing dates stay put; no proration is applied.
func HandleUpgradeSubscription(c *fiber.Ctx) error {
	var req upgradeSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sub, err := engine.ChangePlan(usercontext.GetUserID(c), req.PlanID)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleCancelSubscription cancels the user's subscription, either right now
// or at the end of the current period.
func HandleCancelSubscription(c *fiber.Ctx) error {
	var req cancelSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	userID := usercontext.GetUserID(c)
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()
	current, err := repo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription to cancel"})
		}
		return internalError(c, "Failed to load subscription")
	}

	sub, err := engine.Cancel(current.ID, userID, false, req.Immediate, req.Reason)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleReactivateSubscription restores the user's subscription with a fresh
// billing cycle starting now.
func HandleReactivateSubscription(c *fiber.Ctx) error {
	sub, err := engine.Reactivate(usercontext.GetUserID(c))
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleProrationPreview computes, read-only, what switching the active
// subscription to ?plan_id would charge or credit today.
func HandleProrationPreview(c *fiber.Ctx) error {
	planID := c.QueryInt("plan_id")
	if planID <= 0 {
		return badRequest(c, "plan_id query parameter is required")
	}

	preview, err := engine.PreviewProration(usercontext.GetUserID(c), uint(planID))
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"proration": preview})
}
