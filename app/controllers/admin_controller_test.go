package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/lifecycle"
)

func newAdminFixture(t *testing.T) (*fiber.App, *repository.Repositories, *lifecycle.FixedClock) {
	t.Helper()

	repos := &repository.Repositories{
		User:         repository.NewMemoryUserRepository(),
		Plan:         repository.NewMemoryPlanRepository(),
		Subscription: repository.NewMemorySubscriptionRepository(),
		RefreshToken: repository.NewMemoryRefreshTokenRepository(),
	}
	repository.InitializeFactoryWithRepositories(repos)

	clock := &lifecycle.FixedClock{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	Setup(nil, nil, clock)

	app := fiber.New()
	app.Get("/plans/:id", HandleGetPlan)
	app.Get("/admin/users", HandleAdminListUsers)
	app.Get("/admin/subscriptions/expiring", HandleAdminListExpiring)
	app.Get("/admin/subscriptions/:id", HandleAdminGetSubscription)
	return app, repos, clock
}

func seedUser(t *testing.T, repos *repository.Repositories, email, role string) *models.User {
	t.Helper()
	user := &models.User{
		Name:   "Seeded User",
		Email:  email,
		Role:   role,
		Status: models.STATUS_ACTIVE,
	}
	require.NoError(t, repos.User.Create(user))
	return user
}

func TestAdminListUsersWithoutRoleFilter(t *testing.T) {
	app, repos, _ := newAdminFixture(t)
	seedUser(t, repos, "subscriber@example.com", models.ROLE_USER)
	seedUser(t, repos, "operator@example.com", models.ROLE_ADMIN)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/users", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Users []models.User `json:"users"`
		Total int64         `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	// The unfiltered listing must return every user, and the page contents
	// must agree with the reported total.
	assert.Len(t, body.Users, 2)
	assert.Equal(t, int64(2), body.Total)
}

func TestAdminListUsersWithRoleFilter(t *testing.T) {
	app, repos, _ := newAdminFixture(t)
	seedUser(t, repos, "subscriber@example.com", models.ROLE_USER)
	seedUser(t, repos, "operator@example.com", models.ROLE_ADMIN)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/users?role=admin", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Users []models.User `json:"users"`
		Total int64         `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Users, 1)
	assert.Equal(t, models.ROLE_ADMIN, body.Users[0].Role)
	assert.Equal(t, int64(1), body.Total)
}

func TestGetPlanByUUID(t *testing.T) {
	app, repos, _ := newAdminFixture(t)
	plan := &models.Plan{
		Name:        "Premium",
		Description: "All features",
		Price:       25.00,
		Duration:    models.PlanDuration{Value: 1, Unit: models.DurationUnitMonths},
		Active:      true,
	}
	require.NoError(t, repos.Plan.Create(plan))
	require.NotEmpty(t, plan.UUID)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/plans/"+plan.UUID, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Plan models.Plan `json:"plan"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, plan.ID, body.Plan.ID)
	assert.Equal(t, "Premium", body.Plan.Name)
}

func TestGetPlanRejectsMalformedIdentifier(t *testing.T) {
	app, _, _ := newAdminFixture(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/plans/not-an-identifier", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminGetSubscriptionByUUID(t *testing.T) {
	app, repos, clock := newAdminFixture(t)
	now := clock.Instant
	sub := &models.Subscription{
		UserID:           1,
		PlanID:           1,
		PlanName:         "Basic",
		PlanPrice:        10.00,
		Status:           models.SubscriptionStatusActive,
		StartDate:        now,
		EndDate:          now.Add(30 * 24 * time.Hour),
		CurrentPeriodEnd: now.Add(30 * 24 * time.Hour),
	}
	require.NoError(t, repos.Subscription.Create(sub))
	require.NotEmpty(t, sub.UUID)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/subscriptions/"+sub.UUID, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Subscription models.Subscription `json:"subscription"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, sub.ID, body.Subscription.ID)
}

func TestAdminListExpiringReadsInjectedClock(t *testing.T) {
	app, repos, clock := newAdminFixture(t)
	now := clock.Instant

	// End date two days past the injected instant, far from the wall clock.
	// The record only matches if the handler reads the injected clock.
	sub := &models.Subscription{
		UserID:           1,
		PlanID:           1,
		PlanName:         "Basic",
		PlanPrice:        10.00,
		UserEmail:        "soon@example.com",
		Status:           models.SubscriptionStatusActive,
		StartDate:        now.Add(-28 * 24 * time.Hour),
		EndDate:          now.Add(2 * 24 * time.Hour),
		CurrentPeriodEnd: now.Add(2 * 24 * time.Hour),
	}
	require.NoError(t, repos.Subscription.Create(sub))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/subscriptions/expiring", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Subscriptions, 1)
	assert.Equal(t, sub.ID, body.Subscriptions[0].ID)
}
