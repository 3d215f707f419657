package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/supportsoft/subhub/app/controllers"
	"github.com/supportsoft/subhub/internal/pkg/env"
	"github.com/supportsoft/subhub/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// authRateLimiter throttles credential endpoints. Counters live in Redis so
// the limit holds across instances.
func authRateLimiter() fiber.Handler {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	storage := redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Database: 1,
	})
	return limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		Storage:    storage,
	})
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.Authenticate)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	auth := v1.Group("/auth", authRateLimiter())
	auth.Post("/register", controllers.HandleRegister)
	auth.Post("/login", controllers.HandleLogin)
	auth.Post("/refresh", controllers.HandleRefresh)
	auth.Post("/logout", controllers.HandleLogout)

	me := v1.Group("/me", middleware.RequireAuth)
	me.Get("/", controllers.HandleGetProfile)
	me.Put("/", controllers.HandleUpdateProfile)
	me.Put("/password", controllers.HandleChangePassword)

	// Public catalog
	v1.Get("/plans", controllers.HandleListPlans)
	v1.Get("/plans/:id", controllers.HandleGetPlan)

	subs := v1.Group("/subscriptions", middleware.RequireAuth)
	subs.Post("/", controllers.HandleCreateSubscription)
	subs.Get("/me", controllers.HandleGetMySubscription)
	subs.Get("/history", controllers.HandleSubscriptionHistory)
	subs.Get("/proration-preview", controllers.HandleProrationPreview)
	subs.Post("/upgrade", controllers.HandleUpgradeSubscription)
	subs.Post("/cancel", controllers.HandleCancelSubscription)
	subs.Post("/reactivate", controllers.HandleReactivateSubscription)

	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Get("/plans", controllers.HandleAdminListPlans)
	admin.Post("/plans", controllers.HandleAdminCreatePlan)
	admin.Put("/plans/:id", controllers.HandleAdminUpdatePlan)
	admin.Delete("/plans/:id", controllers.HandleAdminDeletePlan)

	admin.Get("/subscriptions", controllers.HandleAdminListSubscriptions)
	admin.Post("/subscriptions", controllers.HandleAdminCreateSubscription)
	admin.Get("/subscriptions/stats", controllers.HandleAdminSubscriptionStats)
	admin.Get("/subscriptions/expiring", controllers.HandleAdminListExpiring)
	admin.Get("/subscriptions/:id", controllers.HandleAdminGetSubscription)
	admin.Post("/subscriptions/:id/cancel", controllers.HandleAdminCancelSubscription)
	admin.Post("/subscriptions/:id/mark-notified", controllers.HandleAdminMarkNotificationSent)
	admin.Delete("/subscriptions/:id", controllers.HandleAdminDeleteSubscription)

	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Delete("/users/:id", controllers.HandleAdminDeleteUser)

	ops := admin.Group("/ops")
	ops.Post("/sweeps/reminders", controllers.HandleRunExpiryReminders)
	ops.Post("/sweeps/expirations", controllers.HandleRunExpirationCheck)
	ops.Get("/scheduler", controllers.HandleSchedulerStatus)
}
