package lifecycle

import "errors"

// Domain errors of the subscription core. Handlers translate these to HTTP
// status codes; the core only distinguishes kinds.
var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanInactive         = errors.New("plan is not available for purchase")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUserNotFound         = errors.New("user not found")

	// ErrDuplicateActiveSubscription rejects a second active subscription for
	// the same user. It is raised both by the advisory pre-check and by the
	// unique index when concurrent creates race past the check.
	ErrDuplicateActiveSubscription = errors.New("user already has an active subscription")

	ErrSamePlan      = errors.New("subscription already uses this plan")
	ErrAlreadyActive = errors.New("subscription is already active")

	// ErrPlanMissing marks a subscription whose referenced plan was deleted.
	ErrPlanMissing = errors.New("referenced plan no longer exists")

	ErrForbidden         = errors.New("operation not permitted for this user")
	ErrInvalidPeriod     = errors.New("billing period has no duration")
	ErrInvalidTransition = errors.New("invalid subscription status transition")
)

// IsNotFound reports whether err is an absent-record error (404-equivalent).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPlanMissing)
}

// IsConflict reports whether err is a state-conflict error (409-equivalent).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateActiveSubscription) ||
		errors.Is(err, ErrSamePlan) ||
		errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrPlanInactive) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsInvalidInput reports whether err is an input-validation error
// (400-equivalent).
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidPeriod)
}

// IsForbidden reports whether err is an ownership violation (403-equivalent).
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
