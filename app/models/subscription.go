package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusPastDue   = "past_due"
)

// Subscription binds a user to a plan for a billing period. PlanName,
// PlanPrice and UserEmail are snapshots taken at create/upgrade time, not
// live joins: billing history must reflect the price paid, not the plan's
// current price.
type Subscription struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UUID   string `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
	PlanID uint   `gorm:"not null;index" json:"plan_id"`

	PlanName  string  `gorm:"type:varchar(150);not null" json:"plan_name"`
	PlanPrice float64 `gorm:"type:decimal(10,2);not null" json:"plan_price"`
	UserEmail string  `gorm:"type:varchar(200)" json:"user_email"`

	Status string `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`

	// ActiveUserKey mirrors UserID while the subscription is active and is
	// NULL otherwise. The unique index on it is what actually enforces "at
	// most one active subscription per user" under concurrent creates.
	ActiveUserKey *uint `gorm:"uniqueIndex:ux_subscriptions_active_user" json:"-"`

	StartDate          time.Time  `gorm:"not null" json:"start_date"`
	EndDate            time.Time  `gorm:"not null;index" json:"end_date"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	NextBillingDate    time.Time  `json:"next_billing_date"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CancelledAt        *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CancelReason       string     `gorm:"type:varchar(255);default:null" json:"cancel_reason,omitempty"`

	ExpiryNotificationSent bool       `gorm:"default:false;index" json:"expiry_notification_sent"`
	NotificationSentAt     *time.Time `gorm:"type:timestamp;default:null" json:"notification_sent_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the public UUID.
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	return nil
}

// BeforeSave keeps the single-active mirror column in sync with the status.
func (s *Subscription) BeforeSave(tx *gorm.DB) error {
	if s.Status == SubscriptionStatusActive {
		key := s.UserID
		s.ActiveUserKey = &key
	} else {
		s.ActiveUserKey = nil
	}
	return nil
}

// IsActive reports whether the subscription currently entitles the user.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// PeriodLapsedAt reports whether the current billing period has passed at the
// given instant. The lazy status check and the scheduled expiration sweep
// both classify through this predicate so the two paths never diverge.
func (s *Subscription) PeriodLapsedAt(now time.Time) bool {
	end := s.CurrentPeriodEnd
	if end.IsZero() {
		end = s.EndDate
	}
	return now.After(end)
}
