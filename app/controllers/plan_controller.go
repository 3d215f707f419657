package controllers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/cache"
)

const (
	activePlansCacheKey = "plans:active"
	activePlansCacheTTL = 5 * time.Minute
)

// HandleListPlans returns all purchasable plans, served from the cache when
// warm. The catalog is read-mostly; admin writes invalidate the key.
func HandleListPlans(c *fiber.Ctx) error {
	if cached, err := cache.Get(activePlansCacheKey); err == nil {
		var plans []models.Plan
		if err := json.Unmarshal([]byte(cached), &plans); err == nil {
			return c.JSON(fiber.Map{"plans": plans})
		}
	} else if !cache.IsMiss(err) {
		log.Warnf("[Plans] Cache read failed: %v", err)
	}

	repo := repository.GetGlobalFactory().GetPlanRepository()
	plans, err := repo.GetActive()
	if err != nil {
		return internalError(c, "Failed to load plans")
	}

	if payload, err := json.Marshal(plans); err == nil {
		if err := cache.Set(activePlansCacheKey, payload, activePlansCacheTTL); err != nil {
			log.Warnf("[Plans] Cache write failed: %v", err)
		}
	}

	return c.JSON(fiber.Map{"plans": plans})
}

// HandleGetPlan returns a single plan, addressed by numeric id or by its
// public UUID.
func HandleGetPlan(c *fiber.Ctx) error {
	raw := c.Params("id")
	repo := repository.GetGlobalFactory().GetPlanRepository()

	var plan *models.Plan
	var err error
	if id, perr := strconv.ParseUint(raw, 10, 32); perr == nil && id > 0 {
		plan, err = repo.GetByID(uint(id))
	} else if _, perr := uuid.Parse(raw); perr == nil {
		plan, err = repo.GetByUUID(raw)
	} else {
		return badRequest(c, "invalid plan identifier")
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return internalError(c, "Failed to load plan")
	}
	return c.JSON(fiber.Map{"plan": plan})
}

// invalidatePlanCache drops the cached catalog after an admin write.
func invalidatePlanCache() {
	if err := cache.Delete(activePlansCacheKey); err != nil {
		log.Warnf("[Plans] Cache invalidation failed: %v", err)
	}
}
