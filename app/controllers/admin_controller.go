package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/notifier"
	"github.com/supportsoft/subhub/internal/pkg/scheduler"
	"github.com/supportsoft/subhub/internal/pkg/usercontext"
)

// announcer is the notifier used for new-plan announcements. Set at bootstrap
// together with Setup.
var announcer notifier.Notifier

// SetAnnouncer injects the notifier for admin plan announcements.
func SetAnnouncer(n notifier.Notifier) {
	announcer = n
}

type planDurationRequest struct {
	Value int    `json:"value" validate:"required,min=1"`
	Unit  string `json:"unit" validate:"omitempty,oneof=days months years"`
}

type createPlanRequest struct {
	Name        string              `json:"name" validate:"required,min=2,max=150"`
	Description string              `json:"description" validate:"required"`
	Price       float64             `json:"price" validate:"min=0"`
	Duration    planDurationRequest `json:"duration" validate:"required"`
	Features    []string            `json:"features"`
	Active      *bool               `json:"active"`
}

type updatePlanRequest struct {
	Name        *string              `json:"name" validate:"omitempty,min=2,max=150"`
	Description *string              `json:"description"`
	Price       *float64             `json:"price" validate:"omitempty,min=0"`
	Duration    *planDurationRequest `json:"duration"`
	Features    *[]string            `json:"features"`
	Active      *bool                `json:"active"`
}

// HandleAdminListPlans returns the full catalog with optional filters:
// ?name=, ?min_price=, ?max_price=, ?active=, ?sort_by=, ?order=.
func HandleAdminListPlans(c *fiber.Ctx) error {
	filter := repository.PlanFilter{
		Name:   c.Query("name"),
		SortBy: c.Query("sort_by"),
		Order:  c.Query("order"),
	}
	if raw := c.Query("min_price"); raw != "" {
		v := c.QueryFloat("min_price")
		filter.MinPrice = &v
	}
	if raw := c.Query("max_price"); raw != "" {
		v := c.QueryFloat("max_price")
		filter.MaxPrice = &v
	}
	if raw := c.Query("active"); raw != "" {
		v := c.QueryBool("active")
		filter.Active = &v
	}

	repo := repository.GetGlobalFactory().GetPlanRepository()
	plans, err := repo.List(filter)
	if err != nil {
		return internalError(c, "Failed to load plans")
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleAdminCreatePlan creates a plan and announces it to subscribers.
func HandleAdminCreatePlan(c *fiber.Ctx) error {
	var req createPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	adminID := usercontext.GetUserID(c)
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	plan := &models.Plan{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Duration:    models.PlanDuration{Value: req.Duration.Value, Unit: req.Duration.Unit},
		Features:    req.Features,
		Active:      active,
		CreatedByID: &adminID,
	}
	if plan.Duration.Unit == "" {
		plan.Duration.Unit = models.DurationUnitMonths
	}

	repos := repository.GetGlobalRepositories()
	if err := repos.Plan.Create(plan); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Plan name is already taken"})
		}
		if errors.Is(err, models.ErrDurationValueRequired) {
			return badRequest(c, err.Error())
		}
		return internalError(c, "Failed to create plan")
	}
	invalidatePlanCache()

	// Announce to subscribers in the background; delivery failures only log.
	if plan.Active && announcer != nil {
		go func(name string, price float64) {
			emails, err := repos.User.ListEmailsByRole(models.ROLE_USER)
			if err != nil {
				log.Errorf("[Admin] Loading announcement recipients failed: %v", err)
				return
			}
			if len(emails) == 0 {
				return
			}
			if err := announcer.SendNewPlanAnnouncement(emails, name, price); err != nil {
				log.Errorf("[Admin] New plan announcement failed: %v", err)
			}
		}(plan.Name, plan.Price)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"plan": plan})
}

// HandleAdminUpdatePlan applies a partial update to a plan.
func HandleAdminUpdatePlan(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req updatePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	repo := repository.GetGlobalFactory().GetPlanRepository()
	plan, err := repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return internalError(c, "Failed to load plan")
	}

	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.Price != nil {
		plan.Price = *req.Price
	}
	if req.Duration != nil {
		plan.Duration = models.PlanDuration{Value: req.Duration.Value, Unit: req.Duration.Unit}
		if plan.Duration.Unit == "" {
			plan.Duration.Unit = models.DurationUnitMonths
		}
	}
	if req.Features != nil {
		plan.Features = *req.Features
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}

	if err := repo.Update(plan); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Plan name is already taken"})
		}
		if errors.Is(err, models.ErrDurationValueRequired) {
			return badRequest(c, err.Error())
		}
		return internalError(c, "Failed to update plan")
	}
	invalidatePlanCache()
	return c.JSON(fiber.Map{"plan": plan})
}

// HandleAdminDeletePlan removes a plan. Active subscriptions referencing it
// are cancelled first, so no subscriber keeps paying for a plan that no
// longer exists.
func HandleAdminDeletePlan(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	repos := repository.GetGlobalRepositories()
	if _, err := repos.Plan.GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return internalError(c, "Failed to load plan")
	}

	cancelled, err := repos.Subscription.CancelActiveByPlanID(id, clk.Now())
	if err != nil {
		return internalError(c, "Failed to cancel plan subscriptions")
	}
	if err := repos.Plan.Delete(id); err != nil {
		return internalError(c, "Failed to delete plan")
	}
	invalidatePlanCache()

	return c.JSON(fiber.Map{
		"message":                 "Plan deleted",
		"cancelled_subscriptions": cancelled,
	})
}

// HandleAdminListSubscriptions returns paginated subscriptions with optional
// ?status=, ?plan_id=, ?user_id=, ?sort_by=, ?order=, ?page=, ?limit=.
func HandleAdminListSubscriptions(c *fiber.Ctx) error {
	filter := repository.SubscriptionFilter{
		Status: c.Query("status"),
		PlanID: uint(c.QueryInt("plan_id")),
		UserID: uint(c.QueryInt("user_id")),
		SortBy: c.Query("sort_by"),
		Order:  c.Query("order"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 10),
	}

	repo := repository.GetGlobalFactory().GetSubscriptionRepository()
	subs, total, err := repo.List(filter)
	if err != nil {
		return internalError(c, "Failed to load subscriptions")
	}
	return c.JSON(fiber.Map{
		"subscriptions": subs,
		"total":         total,
		"page":          filter.Page,
		"limit":         filter.Limit,
	})
}

// HandleAdminSubscriptionStats aggregates counts, active revenue and the
// per-plan distribution of active subscriptions.
func HandleAdminSubscriptionStats(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()

	total, err := repo.Count()
	if err != nil {
		return internalError(c, "Failed to load stats")
	}

	byStatus := fiber.Map{}
	for _, status := range []string{
		models.SubscriptionStatusActive,
		models.SubscriptionStatusCancelled,
		models.SubscriptionStatusExpired,
		models.SubscriptionStatusPastDue,
	} {
		count, err := repo.CountByStatus(status)
		if err != nil {
			return internalError(c, "Failed to load stats")
		}
		byStatus[status] = count
	}

	revenue, err := repo.ActiveRevenue()
	if err != nil {
		return internalError(c, "Failed to load stats")
	}
	byPlan, err := repo.ActiveCountByPlan()
	if err != nil {
		return internalError(c, "Failed to load stats")
	}

	return c.JSON(fiber.Map{
		"total":          total,
		"by_status":      byStatus,
		"active_revenue": revenue,
		"by_plan":        byPlan,
	})
}

// HandleAdminGetSubscription returns a single subscription, addressed by
// numeric id or by its public UUID.
func HandleAdminGetSubscription(c *fiber.Ctx) error {
	raw := c.Params("id")
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()

	var sub *models.Subscription
	var err error
	if id, perr := strconv.ParseUint(raw, 10, 32); perr == nil && id > 0 {
		sub, err = repo.GetByID(uint(id))
	} else if _, perr := uuid.Parse(raw); perr == nil {
		sub, err = repo.GetByUUID(raw)
	} else {
		return badRequest(c, "invalid subscription identifier")
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return internalError(c, "Failed to load subscription")
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

type adminCreateSubscriptionRequest struct {
	UserID    uint   `json:"user_id" validate:"required,min=1"`
	PlanID    uint   `json:"plan_id" validate:"required,min=1"`
	StartDate string `json:"start_date" validate:"omitempty"`
}

// HandleAdminCreateSubscription subscribes a user on their behalf. The same
// lifecycle rules apply as for self-service creation.
func HandleAdminCreateSubscription(c *fiber.Ctx) error {
	var req adminCreateSubscriptionRequest
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

	sub, err := engine.Create(req.UserID, req.PlanID, startDate)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscription": sub})
}

type adminCancelSubscriptionRequest struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason" validate:"omitempty,max=255"`
}

// HandleAdminCancelSubscription cancels any user's subscription.
func HandleAdminCancelSubscription(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req adminCancelSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sub, err := engine.Cancel(id, usercontext.GetUserID(c), true, req.Immediate, req.Reason)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleAdminDeleteSubscription hard deletes a subscription record and clears
// the owner's back-reference when it points at the deleted record.
func HandleAdminDeleteSubscription(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	repos := repository.GetGlobalRepositories()
	sub, err := repos.Subscription.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return internalError(c, "Failed to load subscription")
	}

	if err := repos.Subscription.Delete(id); err != nil {
		return internalError(c, "Failed to delete subscription")
	}
	if user, err := repos.User.GetByID(sub.UserID); err == nil {
		if user.SubscriptionID != nil && *user.SubscriptionID == id {
			if err := repos.User.SetSubscriptionRef(user.ID, nil); err != nil {
				log.Errorf("[Admin] Clearing subscription reference for user %d failed: %v", user.ID, err)
			}
		}
	}
	return c.JSON(fiber.Map{"message": "Subscription deleted"})
}

// HandleAdminListUsers returns users with optional ?role=, ?page=, ?limit=.
func HandleAdminListUsers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 {
		limit = 20
	}
	role := c.Query("role")

	repo := repository.GetGlobalFactory().GetUserRepository()
	var users []models.User
	var err error
	if role == "" {
		users, err = repo.List((page-1)*limit, limit)
	} else {
		users, err = repo.ListByRole(role, (page-1)*limit, limit)
	}
	if err != nil {
		return internalError(c, "Failed to load users")
	}

	var total int64
	if role == "" {
		total, err = repo.Count()
	} else {
		total, err = repo.CountByRole(role)
	}
	if err != nil {
		return internalError(c, "Failed to load users")
	}

	return c.JSON(fiber.Map{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// HandleAdminDeleteUser removes a user account. An active subscription is
// cancelled first so it cannot linger without an owner.
func HandleAdminDeleteUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return internalError(c, "Failed to load user")
	}

	if active, err := repos.Subscription.GetActiveByUserID(user.ID); err == nil {
		if _, err := engine.Cancel(active.ID, usercontext.GetUserID(c), true, true, "account deleted"); err != nil {
			return lifecycleError(c, err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "Failed to load subscription")
	}

	if err := repos.RefreshToken.DeleteByUserID(user.ID); err != nil {
		return internalError(c, "Failed to revoke sessions")
	}
	if err := repos.User.Delete(user.ID); err != nil {
		return internalError(c, "Failed to delete user")
	}
	return c.JSON(fiber.Map{"message": "User deleted"})
}

// HandleAdminListExpiring returns active subscriptions whose end date falls
// inside the reminder window and that have not been reminded yet.
func HandleAdminListExpiring(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()
	subs, err := repo.ExpiringSoon(clk.Now(), scheduler.ReminderWindow)
	if err != nil {
		return internalError(c, "Failed to load expiring subscriptions")
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleAdminMarkNotificationSent manually flips the reminder flag, e.g.
// after an out-of-band notification. The write is conditional; a record that
// is no longer active or already reminded is reported as unchanged.
func HandleAdminMarkNotificationSent(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()
	updated, err := repo.MarkNotificationSent(id, clk.Now())
	if err != nil {
		return internalError(c, "Failed to update subscription")
	}
	return c.JSON(fiber.Map{"updated": updated})
}
