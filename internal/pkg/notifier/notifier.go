package notifier

import "time"

// Notifier is the outbound notification boundary of the subscription core.
// Implementations must be safe for concurrent use; the scheduler and the
// lifecycle engine call into the same instance.
type Notifier interface {
	// SendExpiryReminder tells a subscriber their plan ends in daysLeft days.
	// The caller marks the subscription as reminded only when this returns nil.
	SendExpiryReminder(email, name, planName string, daysLeft int, endDate time.Time) error

	// SendCancellationConfirmation confirms an immediate cancellation.
	SendCancellationConfirmation(email, name, planName string) error

	// SendSubscriptionConfirmation confirms a new subscription.
	SendSubscriptionConfirmation(email, name, planName string, price float64, endDate time.Time) error

	// SendNewPlanAnnouncement announces a new plan to a list of recipients.
	SendNewPlanAnnouncement(emails []string, planName string, price float64) error
}
