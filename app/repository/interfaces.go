package repository

import (
	"time"

	"github.com/supportsoft/subhub/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	SetSubscriptionRef(userID uint, subscriptionID *uint) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	ListByRole(role string, offset, limit int) ([]models.User, error)
	ListEmailsByRole(role string) ([]string, error)
	Count() (int64, error)
	CountByRole(role string) (int64, error)
}

// PlanFilter narrows and orders admin plan listings.
type PlanFilter struct {
	Name     string
	MinPrice *float64
	MaxPrice *float64
	Active   *bool
	SortBy   string
	Order    string
}

// PlanRepository defines the interface for plan catalog operations
type PlanRepository interface {
	Create(plan *models.Plan) error
	GetByID(id uint) (*models.Plan, error)
	GetByUUID(uuid string) (*models.Plan, error)
	GetActive() ([]models.Plan, error)
	List(filter PlanFilter) ([]models.Plan, error)
	Update(plan *models.Plan) error
	Delete(id uint) error
	Count() (int64, error)
}

// SubscriptionFilter narrows and paginates admin subscription listings.
type SubscriptionFilter struct {
	Status string
	PlanID uint
	UserID uint
	SortBy string
	Order  string
	Page   int
	Limit  int
}

// PlanCount is an aggregation row for subscriptions grouped by plan name.
type PlanCount struct {
	PlanName string `json:"plan_name"`
	Count    int64  `json:"count"`
}

// SubscriptionRepository defines the interface for subscription records.
//
// MarkNotificationSent and SweepLapsed carry the scheduler's concurrency
// contract: the former is a conditional write keyed on the same filter used
// to select the record, the latter runs its bulk transitions atomically.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetByUUID(uuid string) (*models.Subscription, error)
	GetByUserID(userID uint) (*models.Subscription, error)
	GetActiveByUserID(userID uint) (*models.Subscription, error)
	HistoryByUserID(userID uint) ([]models.Subscription, error)
	List(filter SubscriptionFilter) ([]models.Subscription, int64, error)
	Update(sub *models.Subscription) error
	Delete(id uint) error
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
	ActiveRevenue() (float64, error)
	ActiveCountByPlan() ([]PlanCount, error)
	ExpiringSoon(now time.Time, window time.Duration) ([]models.Subscription, error)
	MarkNotificationSent(id uint, at time.Time) (bool, error)
	SweepLapsed(now time.Time) (cancelled int64, expired int64, err error)
	CancelActiveByPlanID(planID uint, at time.Time) (int64, error)
}

// RefreshTokenRepository defines the interface for persisted refresh tokens
type RefreshTokenRepository interface {
	Create(token *models.RefreshToken) error
	GetByHash(hash string) (*models.RefreshToken, error)
	DeleteByHash(hash string) error
	DeleteByUserID(userID uint) error
	DeleteExpired(now time.Time) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Plan         PlanRepository
	Subscription SubscriptionRepository
	RefreshToken RefreshTokenRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Plan:         NewPlanRepository(db),
		Subscription: NewSubscriptionRepository(db),
		RefreshToken: NewRefreshTokenRepository(db),
	}
}
