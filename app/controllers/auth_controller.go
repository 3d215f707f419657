package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/security"
	"github.com/supportsoft/subhub/internal/pkg/usercontext"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type updateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,min=3,max=150"`
	Email string `json:"email" validate:"omitempty,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

var validate = validator.New()

// issueTokenPair creates an access token plus a rotating refresh token whose
// hash is persisted for the user.
func issueTokenPair(user *models.User) (fiber.Map, error) {
	access, err := security.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	tokenRepo := repository.GetGlobalFactory().GetRefreshTokenRepository()
	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: models.HashRefreshToken(refresh),
		ExpiresAt: time.Now().Add(security.RefreshTokenTTL),
	}
	if err := tokenRepo.Create(record); err != nil {
		return nil, err
	}

	return fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    int(security.AccessTokenTTL.Seconds()),
	}, nil
}

// HandleRegister creates a new user account and logs it in.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password, models.ROLE_USER)
	if err != nil {
		return badRequest(c, err.Error())
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if err := repo.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Email is already registered"})
		}
		return internalError(c, "Failed to create user")
	}

	tokens, err := issueTokenPair(user)
	if err != nil {
		return internalError(c, "Failed to issue tokens")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":   user,
		"tokens": tokens,
	})
}

// HandleLogin authenticates by email and password.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid email or password"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account is disabled"})
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repo.Update(user); err != nil {
		return internalError(c, "Failed to update user")
	}

	tokens, err := issueTokenPair(user)
	if err != nil {
		return internalError(c, "Failed to issue tokens")
	}
	return c.JSON(fiber.Map{
		"user":   user,
		"tokens": tokens,
	})
}

// HandleRefresh rotates a refresh token and issues a new access token.
func HandleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	repos := repository.GetGlobalRepositories()
	hash := models.HashRefreshToken(req.RefreshToken)
	stored, err := repos.RefreshToken.GetByHash(hash)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid refresh token"})
	}
	if stored.IsExpired(time.Now()) {
		_ = repos.RefreshToken.DeleteByHash(hash)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Refresh token expired"})
	}

	user, err := repos.User.GetByID(stored.UserID)
	if err != nil || !user.IsActive() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Account unavailable"})
	}

	// Rotation: the presented token is consumed, a fresh pair replaces it.
	if err := repos.RefreshToken.DeleteByHash(hash); err != nil {
		return internalError(c, "Failed to rotate token")
	}
	tokens, err := issueTokenPair(user)
	if err != nil {
		return internalError(c, "Failed to issue tokens")
	}
	return c.JSON(fiber.Map{"tokens": tokens})
}

// HandleLogout revokes the presented refresh token.
func HandleLogout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	repo := repository.GetGlobalFactory().GetRefreshTokenRepository()
	if req.RefreshToken != "" {
		_ = repo.DeleteByHash(models.HashRefreshToken(req.RefreshToken))
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// HandleGetProfile returns the authenticated user's account.
func HandleGetProfile(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return internalError(c, "Failed to load user")
	}
	return c.JSON(fiber.Map{"user": user})
}

// HandleUpdateProfile updates the authenticated user's name and/or email.
func HandleUpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Name == "" && req.Email == "" {
		return badRequest(c, "Nothing to update")
	}

	userCtx := usercontext.GetUserContext(c)
	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		return internalError(c, "Failed to load user")
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if err := repo.Update(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Email is already registered"})
		}
		return internalError(c, "Failed to update user")
	}
	return c.JSON(fiber.Map{"user": user})
}

// HandleChangePassword sets a new password and revokes all refresh tokens.
func HandleChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	userCtx := usercontext.GetUserContext(c)
	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByID(userCtx.UserID)
	if err != nil {
		return internalError(c, "Failed to load user")
	}
	if !user.CheckPassword(req.CurrentPassword) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Current password is incorrect"})
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return internalError(c, "Failed to set password")
	}
	if err := repos.User.Update(user); err != nil {
		return internalError(c, "Failed to update user")
	}

	// Existing sessions must re-authenticate with the new password.
	if err := repos.RefreshToken.DeleteByUserID(user.ID); err != nil {
		return internalError(c, "Failed to revoke sessions")
	}
	return c.JSON(fiber.Map{"message": "Password updated"})
}
