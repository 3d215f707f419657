package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/notifier"
)

// Engine owns the subscription state machine: creation, plan changes,
// cancellation, reactivation and lazy expiry. All status writes go through
// the transition table; the stores and the notifier are injected so tests
// can run against in-memory fakes.
type Engine struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	users    repository.UserRepository
	notifier notifier.Notifier
	clock    Clock
}

// NewEngine creates a lifecycle engine from injected collaborators.
func NewEngine(repos *repository.Repositories, n notifier.Notifier, clock Clock) *Engine {
	return &Engine{
		subs:     repos.Subscription,
		plans:    repos.Plan,
		users:    repos.User,
		notifier: n,
		clock:    clock,
	}
}

// periodEnd derives the end of a billing cycle from its start. Durations are
// flat multiples of 24h, never calendar months.
func periodEnd(start time.Time, durationInDays int) time.Time {
	return start.Add(time.Duration(durationInDays) * 24 * time.Hour)
}

// Create subscribes a user to a plan. The new record starts its billing
// period at startDate (or now) and activates immediately. At most one active
// subscription may exist per user: an advisory pre-check gives a friendly
// error, and the unique active-user index catches the concurrent-create race
// the pre-check cannot see.
func (e *Engine) Create(userID, planID uint, startDate *time.Time) (*models.Subscription, error) {
	user, err := e.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	plan, err := e.plans.GetByID(planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanInactive
	}

	if _, err := e.subs.GetActiveByUserID(userID); err == nil {
		return nil, ErrDuplicateActiveSubscription
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	status, err := Transition(models.SubscriptionStatusPending, EventActivate)
	if err != nil {
		return nil, err
	}

	start := e.clock.Now()
	if startDate != nil {
		start = *startDate
	}
	end := periodEnd(start, plan.DurationInDays)

	sub := &models.Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		PlanName:           plan.Name,
		PlanPrice:          plan.Price,
		UserEmail:          user.Email,
		Status:             status,
		StartDate:          start,
		EndDate:            end,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		NextBillingDate:    end,
	}

	if err := e.subs.Create(sub); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateActiveSubscription
		}
		return nil, err
	}

	if err := e.users.SetSubscriptionRef(userID, &sub.ID); err != nil {
		return nil, err
	}

	if err := e.notifier.SendSubscriptionConfirmation(user.Email, user.Name, plan.Name, plan.Price, end); err != nil {
		log.Errorf("[Lifecycle] Subscription confirmation to %s failed: %v", user.Email, err)
	}

	return sub, nil
}

// ChangePlan swaps the plan of the user's active subscription in place. Plan
// name and price snapshots are refreshed; billing dates are untouched and no
// proration is applied (PreviewProration exposes the calculation read-only).
func (e *Engine) ChangePlan(userID, newPlanID uint) (*models.Subscription, error) {
	sub, err := e.subs.GetActiveByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	plan, err := e.plans.GetByID(newPlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	// Identity comparison: the same plan id is rejected even if its
	// attributes changed since the subscription was created.
	if sub.PlanID == plan.ID {
		return nil, ErrSamePlan
	}

	status, err := Transition(sub.Status, EventChangePlan)
	if err != nil {
		return nil, err
	}

	sub.Status = status
	sub.PlanID = plan.ID
	sub.PlanName = plan.Name
	sub.PlanPrice = plan.Price

	if err := e.subs.Update(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel terminates a subscription. With immediate=true the record flips to
// cancelled now, the user's back-reference is cleared and a confirmation is
// sent; otherwise only cancel_at_period_end is set and the expiration sweep
// finishes the job when the period lapses. Only the owner (or an admin
// acting on their behalf) may cancel.
func (e *Engine) Cancel(subscriptionID, actorID uint, actorIsAdmin bool, immediate bool, reason string) (*models.Subscription, error) {
	sub, err := e.subs.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if !actorIsAdmin && sub.UserID != actorID {
		return nil, ErrForbidden
	}

	now := e.clock.Now()

	if !immediate {
		if sub.Status != models.SubscriptionStatusActive {
			return nil, fmt.Errorf("%w: schedule cancel on status %q", ErrInvalidTransition, sub.Status)
		}
		sub.CancelAtPeriodEnd = true
		sub.CancelReason = reason
		if err := e.subs.Update(sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	status, err := Transition(sub.Status, EventCancel)
	if err != nil {
		return nil, err
	}
	sub.Status = status
	sub.CancelAtPeriodEnd = false
	sub.CancelledAt = &now
	sub.CancelReason = reason

	if err := e.subs.Update(sub); err != nil {
		return nil, err
	}
	if err := e.users.SetSubscriptionRef(sub.UserID, nil); err != nil {
		return nil, err
	}

	if user, err := e.users.GetByID(sub.UserID); err == nil {
		if err := e.notifier.SendCancellationConfirmation(user.Email, user.Name, sub.PlanName); err != nil {
			log.Errorf("[Lifecycle] Cancellation confirmation to %s failed: %v", user.Email, err)
		}
	}

	return sub, nil
}

// Reactivate restores the user's most recent subscription and starts a fresh
// billing cycle from now. An active subscription without the
// cancel-at-period-end flag has nothing to restore and is rejected.
func (e *Engine) Reactivate(userID uint) (*models.Subscription, error) {
	sub, err := e.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusActive && !sub.CancelAtPeriodEnd {
		return nil, ErrAlreadyActive
	}

	plan, err := e.plans.GetByID(sub.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanMissing
		}
		return nil, err
	}

	status, err := Transition(sub.Status, EventReactivate)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	end := periodEnd(now, plan.DurationInDays)

	sub.Status = status
	sub.CancelAtPeriodEnd = false
	sub.CancelledAt = nil
	sub.CancelReason = ""
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = end
	sub.EndDate = end
	sub.NextBillingDate = end
	// A new billing cycle is the one thing allowed to reset the reminder flag.
	sub.ExpiryNotificationSent = false
	sub.NotificationSentAt = nil

	if err := e.subs.Update(sub); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateActiveSubscription
		}
		return nil, err
	}
	if err := e.users.SetSubscriptionRef(userID, &sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

// CheckStatus returns the user's most recent subscription, lapsing it first
// if its period has passed (lazy expiry). The predicate is the same one the
// scheduled sweep classifies with, so the two paths agree.
func (e *Engine) CheckStatus(userID uint) (*models.Subscription, error) {
	sub, err := e.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	now := e.clock.Now()
	if sub.Status == models.SubscriptionStatusActive && sub.PeriodLapsedAt(now) {
		// Classify exactly like the expiration sweep: a record flagged
		// cancel-at-period-end terminates as cancelled, the rest as expired.
		event := EventExpire
		if sub.CancelAtPeriodEnd {
			event = EventCancel
		}
		status, err := Transition(sub.Status, event)
		if err != nil {
			return nil, err
		}
		sub.Status = status
		if sub.CancelAtPeriodEnd {
			sub.CancelAtPeriodEnd = false
			sub.CancelledAt = &now
		}
		if err := e.subs.Update(sub); err != nil {
			return nil, err
		}
	}

	return sub, nil
}

// PreviewProration computes, without applying, the charge or credit of
// switching the user's active subscription to another plan right now.
func (e *Engine) PreviewProration(userID, newPlanID uint) (*Proration, error) {
	sub, err := e.subs.GetActiveByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	plan, err := e.plans.GetByID(newPlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if sub.PlanID == plan.ID {
		return nil, ErrSamePlan
	}

	return CalculateProration(sub.PlanPrice, plan.Price, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, e.clock.Now())
}
