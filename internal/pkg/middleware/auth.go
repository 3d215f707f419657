package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/internal/pkg/security"
	"github.com/supportsoft/subhub/internal/pkg/usercontext"
)

// Authenticate parses an optional Bearer access token and populates the
// request user context. Requests without a valid token continue anonymously;
// RequireAuth decides whether that is acceptable.
func Authenticate(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		if claims, err := security.ParseAccessToken(strings.TrimPrefix(header, prefix)); err == nil {
			usercontext.SetUserContext(c, usercontext.UserContext{
				UserID:     claims.UserID,
				Role:       claims.Role,
				IsLoggedIn: true,
				IsAdmin:    claims.Role == models.ROLE_ADMIN,
			})
		}
	}
	return c.Next()
}

// RequireAuth ensures an authenticated request and returns JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures an authenticated admin and returns JSON 401/403 otherwise.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin access required",
		})
	}
	return c.Next()
}
