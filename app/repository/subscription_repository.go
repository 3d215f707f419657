package repository

import (
	"time"

	"github.com/supportsoft/subhub/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts a new subscription. The unique index on active_user_key
// rejects a second active subscription for the same user at insert time.
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByID retrieves a subscription by its ID
func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByUUID retrieves a subscription by its public UUID
func (r *subscriptionRepository) GetByUUID(uuid string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("uuid = ?", uuid).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByUserID returns the user's most recent subscription record
func (r *subscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByUserID returns the user's active subscription, if any
func (r *subscriptionRepository) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// HistoryByUserID returns all subscription records for a user, newest first
func (r *subscriptionRepository) HistoryByUserID(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

var subscriptionSortColumns = map[string]string{
	"created_at": "created_at",
	"end_date":   "end_date",
	"status":     "status",
	"plan_name":  "plan_name",
}

// List returns subscriptions matching the admin filter plus the total count
// for pagination.
func (r *subscriptionRepository) List(filter SubscriptionFilter) ([]models.Subscription, int64, error) {
	query := r.db.Model(&models.Subscription{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PlanID != 0 {
		query = query.Where("plan_id = ?", filter.PlanID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}

	var subs []models.Subscription
	err := query.Order(sortClause(filter.SortBy, filter.Order, subscriptionSortColumns)).
		Offset((page - 1) * limit).Limit(limit).Find(&subs).Error
	return subs, total, err
}

// Update saves subscription changes through the model hooks
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// Delete hard deletes a subscription by its ID
func (r *subscriptionRepository) Delete(id uint) error {
	return r.db.Delete(&models.Subscription{}, id).Error
}

// Count returns the total number of subscriptions
func (r *subscriptionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of subscriptions in the given status
func (r *subscriptionRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// ActiveRevenue sums the snapshot price of all active subscriptions
func (r *subscriptionRepository) ActiveRevenue() (float64, error) {
	var total float64
	err := r.db.Model(&models.Subscription{}).
		Where("status = ?", models.SubscriptionStatusActive).
		Select("COALESCE(SUM(plan_price), 0)").Row().Scan(&total)
	return total, err
}

// ActiveCountByPlan groups active subscriptions by their snapshot plan name
func (r *subscriptionRepository) ActiveCountByPlan() ([]PlanCount, error) {
	var rows []PlanCount
	err := r.db.Model(&models.Subscription{}).
		Where("status = ?", models.SubscriptionStatusActive).
		Select("plan_name, COUNT(*) as count").
		Group("plan_name").
		Order("count DESC").
		Find(&rows).Error
	return rows, err
}

// ExpiringSoon selects active subscriptions whose end date falls inside
// [now, now+window] and that have not been reminded yet. Both bounds are
// inclusive.
func (r *subscriptionRepository) ExpiringSoon(now time.Time, window time.Duration) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where(
		"status = ? AND expiry_notification_sent = ? AND end_date >= ? AND end_date <= ?",
		models.SubscriptionStatusActive, false, now, now.Add(window),
	).Find(&subs).Error
	return subs, err
}

// MarkNotificationSent flips the reminder flag with a conditional update
// keyed on the selection filter, so a record that was reactivated or expired
// between selection and write is left alone. Returns whether the write won.
func (r *subscriptionRepository) MarkNotificationSent(id uint, at time.Time) (bool, error) {
	result := r.db.Model(&models.Subscription{}).
		Where("id = ? AND expiry_notification_sent = ? AND status = ?",
			id, false, models.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"expiry_notification_sent": true,
			"notification_sent_at":     at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SweepLapsed bulk-transitions every active subscription whose end date has
// passed. Records flagged cancel_at_period_end terminate as cancelled, the
// rest as expired. Both updates run in one transaction; a failure rolls the
// whole sweep back with no partial state.
func (r *subscriptionRepository) SweepLapsed(now time.Time) (int64, int64, error) {
	var cancelled, expired int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Subscription{}).
			Where("status = ? AND cancel_at_period_end = ? AND end_date < ?",
				models.SubscriptionStatusActive, true, now).
			Updates(map[string]interface{}{
				"status":               models.SubscriptionStatusCancelled,
				"cancel_at_period_end": false,
				"cancelled_at":         now,
				"active_user_key":      nil,
				"updated_at":           now,
			})
		if result.Error != nil {
			return result.Error
		}
		cancelled = result.RowsAffected

		result = tx.Model(&models.Subscription{}).
			Where("status = ? AND end_date < ?", models.SubscriptionStatusActive, now).
			Updates(map[string]interface{}{
				"status":          models.SubscriptionStatusExpired,
				"active_user_key": nil,
				"updated_at":      now,
			})
		if result.Error != nil {
			return result.Error
		}
		expired = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return cancelled, expired, nil
}

// CancelActiveByPlanID cancels every active subscription referencing a plan.
// Used when an administrator deletes the plan.
func (r *subscriptionRepository) CancelActiveByPlanID(planID uint, at time.Time) (int64, error) {
	result := r.db.Model(&models.Subscription{}).
		Where("plan_id = ? AND status = ?", planID, models.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":          models.SubscriptionStatusCancelled,
			"cancelled_at":    at,
			"cancel_reason":   "plan discontinued",
			"active_user_key": nil,
			"updated_at":      at,
		})
	return result.RowsAffected, result.Error
}
