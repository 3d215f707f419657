package lifecycle

import (
	"fmt"

	"github.com/supportsoft/subhub/app/models"
)

// Event is a lifecycle trigger applied to a subscription status.
type Event string

const (
	// EventActivate turns a freshly inserted record live.
	EventActivate Event = "activate"
	// EventChangePlan swaps the plan on a live subscription.
	EventChangePlan Event = "change_plan"
	// EventCancel terminates a subscription immediately.
	EventCancel Event = "cancel"
	// EventExpire lapses a subscription whose period has passed.
	EventExpire Event = "expire"
	// EventReactivate restores a terminated or flagged subscription and
	// starts a new billing cycle.
	EventReactivate Event = "reactivate"
	// EventMarkPastDue parks a subscription awaiting payment.
	EventMarkPastDue Event = "mark_past_due"
)

// transitions is the single authority on which status changes exist. Every
// status write in the engine goes through Transition; nothing overwrites the
// status field ad hoc.
var transitions = map[string]map[Event]string{
	models.SubscriptionStatusPending: {
		EventActivate: models.SubscriptionStatusActive,
		EventCancel:   models.SubscriptionStatusCancelled,
	},
	models.SubscriptionStatusActive: {
		EventChangePlan:  models.SubscriptionStatusActive,
		EventCancel:      models.SubscriptionStatusCancelled,
		EventExpire:      models.SubscriptionStatusExpired,
		EventMarkPastDue: models.SubscriptionStatusPastDue,
		// Allowed so a cancel-at-period-end subscription can be restored
		// before its period lapses.
		EventReactivate: models.SubscriptionStatusActive,
	},
	models.SubscriptionStatusCancelled: {
		EventReactivate: models.SubscriptionStatusActive,
	},
	models.SubscriptionStatusExpired: {
		EventReactivate: models.SubscriptionStatusActive,
	},
	models.SubscriptionStatusPastDue: {
		EventActivate:   models.SubscriptionStatusActive,
		EventReactivate: models.SubscriptionStatusActive,
		EventCancel:     models.SubscriptionStatusCancelled,
		EventExpire:     models.SubscriptionStatusExpired,
	},
}

// Transition resolves the status reached by applying event to current.
// Disallowed pairs return ErrInvalidTransition.
func Transition(current string, event Event) (string, error) {
	next, ok := transitions[current][event]
	if !ok {
		return "", fmt.Errorf("%w: %s on status %q", ErrInvalidTransition, event, current)
	}
	return next, nil
}

// CanTransition reports whether event is allowed from the current status.
func CanTransition(current string, event Event) bool {
	_, ok := transitions[current][event]
	return ok
}
