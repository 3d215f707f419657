package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportsoft/subhub/app/models"
	"github.com/supportsoft/subhub/app/repository"
)

type recordingNotifier struct {
	mu            sync.Mutex
	confirmations []string
	cancellations []string
	reminders     []string
	announcements []string
}

func (n *recordingNotifier) SendExpiryReminder(email, name, planName string, daysLeft int, endDate time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, email)
	return nil
}

func (n *recordingNotifier) SendCancellationConfirmation(email, name, planName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancellations = append(n.cancellations, email)
	return nil
}

func (n *recordingNotifier) SendSubscriptionConfirmation(email, name, planName string, price float64, endDate time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, email)
	return nil
}

func (n *recordingNotifier) SendNewPlanAnnouncement(emails []string, planName string, price float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announcements = append(n.announcements, emails...)
	return nil
}

type engineFixture struct {
	engine   *Engine
	repos    *repository.Repositories
	notifier *recordingNotifier
	clock    *FixedClock
	user     *models.User
	basic    *models.Plan
	premium  *models.Plan
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	repos := &repository.Repositories{
		User:         repository.NewMemoryUserRepository(),
		Plan:         repository.NewMemoryPlanRepository(),
		Subscription: repository.NewMemorySubscriptionRepository(),
	}

	user := &models.User{
		Name:   "Dana Miller",
		Email:  "dana@example.com",
		Role:   models.ROLE_USER,
		Status: models.STATUS_ACTIVE,
	}
	require.NoError(t, repos.User.Create(user))

	basic := &models.Plan{
		Name:        "Basic",
		Description: "Entry tier",
		Price:       10.00,
		Duration:    models.PlanDuration{Value: 1, Unit: models.DurationUnitMonths},
		Active:      true,
	}
	require.NoError(t, repos.Plan.Create(basic))

	premium := &models.Plan{
		Name:        "Premium",
		Description: "Full tier",
		Price:       25.00,
		Duration:    models.PlanDuration{Value: 1, Unit: models.DurationUnitMonths},
		Active:      true,
	}
	require.NoError(t, repos.Plan.Create(premium))

	n := &recordingNotifier{}
	clock := &FixedClock{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	return &engineFixture{
		engine:   NewEngine(repos, n, clock),
		repos:    repos,
		notifier: n,
		clock:    clock,
		user:     user,
		basic:    basic,
		premium:  premium,
	}
}

func TestCreateActivatesImmediately(t *testing.T) {
	f := newEngineFixture(t)

	sub, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, f.clock.Instant, sub.StartDate)

	wantEnd := f.clock.Instant.Add(30 * 24 * time.Hour)
	assert.Equal(t, wantEnd, sub.EndDate)
	assert.Equal(t, wantEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, wantEnd, sub.NextBillingDate)

	assert.Equal(t, "Basic", sub.PlanName)
	assert.Equal(t, 10.00, sub.PlanPrice)
	assert.Equal(t, f.user.Email, sub.UserEmail)

	user, err := f.repos.User.GetByID(f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.SubscriptionID)
	assert.Equal(t, sub.ID, *user.SubscriptionID)

	assert.Equal(t, []string{f.user.Email}, f.notifier.confirmations)
}

func TestCreateHonorsExplicitStartDate(t *testing.T) {
	f := newEngineFixture(t)

	start := f.clock.Instant.Add(48 * time.Hour)
	sub, err := f.engine.Create(f.user.ID, f.basic.ID, &start)
	require.NoError(t, err)

	assert.Equal(t, start, sub.StartDate)
	assert.Equal(t, start.Add(30*24*time.Hour), sub.EndDate)
}

func TestCreateRejectsSecondActive(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Create(f.user.ID, f.premium.ID, nil)
	assert.ErrorIs(t, err, ErrDuplicateActiveSubscription)
}

func TestCreatePreconditionFailures(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Create(999, f.basic.ID, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.engine.Create(f.user.ID, 999, nil)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	f.basic.Active = false
	require.NoError(t, f.repos.Plan.Update(f.basic))
	_, err = f.engine.Create(f.user.ID, f.basic.ID, nil)
	assert.ErrorIs(t, err, ErrPlanInactive)
}

func TestChangePlanSwapsSnapshotInPlace(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	f.clock.Advance(5 * 24 * time.Hour)
	sub, err := f.engine.ChangePlan(f.user.ID, f.premium.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, sub.ID)
	assert.Equal(t, f.premium.ID, sub.PlanID)
	assert.Equal(t, "Premium", sub.PlanName)
	assert.Equal(t, 25.00, sub.PlanPrice)

	// Dates stay put: a plan change does not restart the billing period.
	assert.Equal(t, created.EndDate, sub.EndDate)
	assert.Equal(t, created.CurrentPeriodEnd, sub.CurrentPeriodEnd)
}

func TestChangePlanRejections(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.ChangePlan(f.user.ID, f.premium.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.ChangePlan(f.user.ID, f.basic.ID)
	assert.ErrorIs(t, err, ErrSamePlan)

	_, err = f.engine.ChangePlan(f.user.ID, 999)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCancelImmediate(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	sub, err := f.engine.Cancel(created.ID, f.user.ID, false, true, "too expensive")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CancelledAt)
	assert.Equal(t, f.clock.Instant, *sub.CancelledAt)
	assert.Equal(t, "too expensive", sub.CancelReason)

	user, err := f.repos.User.GetByID(f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, user.SubscriptionID)

	assert.Equal(t, []string{f.user.Email}, f.notifier.cancellations)
}

func TestCancelAtPeriodEndLeavesStatusActive(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	sub, err := f.engine.Cancel(created.ID, f.user.ID, false, false, "")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Nil(t, sub.CancelledAt)

	// No confirmation until the cancellation actually happens.
	assert.Empty(t, f.notifier.cancellations)

	user, err := f.repos.User.GetByID(f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.SubscriptionID)
}

func TestCancelOwnership(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	other := &models.User{Name: "Sam Ortiz", Email: "sam@example.com", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	require.NoError(t, f.repos.User.Create(other))

	_, err = f.engine.Cancel(created.ID, other.ID, false, true, "")
	assert.ErrorIs(t, err, ErrForbidden)

	// Admins may cancel on behalf of the owner.
	sub, err := f.engine.Cancel(created.ID, other.ID, true, true, "account closed")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func TestCancelTwiceIsRejected(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, true, "")
	require.NoError(t, err)

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, true, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, false, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReactivateStartsNewCycle(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	marked, err := f.repos.Subscription.MarkNotificationSent(created.ID, f.clock.Instant)
	require.NoError(t, err)
	require.True(t, marked)

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, true, "")
	require.NoError(t, err)

	f.clock.Advance(10 * 24 * time.Hour)
	sub, err := f.engine.Reactivate(f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.Nil(t, sub.CancelledAt)

	wantEnd := f.clock.Instant.Add(30 * 24 * time.Hour)
	assert.Equal(t, wantEnd, sub.EndDate)
	assert.Equal(t, wantEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, f.clock.Instant, sub.CurrentPeriodStart)

	// A new billing cycle resets the reminder flag.
	assert.False(t, sub.ExpiryNotificationSent)
	assert.Nil(t, sub.NotificationSentAt)

	user, err := f.repos.User.GetByID(f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.SubscriptionID)
	assert.Equal(t, sub.ID, *user.SubscriptionID)
}

func TestReactivateClearsCancelAtPeriodEndFlag(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, false, "")
	require.NoError(t, err)

	sub, err := f.engine.Reactivate(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
}

func TestReactivateRejections(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Reactivate(f.user.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Reactivate(f.user.ID)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, true, "")
	require.NoError(t, err)

	require.NoError(t, f.repos.Plan.Delete(f.basic.ID))
	_, err = f.engine.Reactivate(f.user.ID)
	assert.ErrorIs(t, err, ErrPlanMissing)
}

func TestCheckStatusLazyExpiry(t *testing.T) {
	f := newEngineFixture(t)

	// Plan at 10.00/month means a 30 day period.
	_, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	sub, err := f.engine.CheckStatus(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	// Day 31: the period has lapsed, the read flips the record.
	f.clock.Advance(31 * 24 * time.Hour)
	sub, err = f.engine.CheckStatus(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusExpired, sub.Status)

	stored, err := f.repos.Subscription.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusExpired, stored.Status)
}

func TestCheckStatusLazyCancelHonorsPeriodEndFlag(t *testing.T) {
	f := newEngineFixture(t)

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)
	_, err = f.engine.Cancel(created.ID, f.user.ID, false, false, "done with it")
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	sub, err := f.engine.CheckStatus(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CancelledAt)
}

func TestSingleActiveAcrossLifecycle(t *testing.T) {
	f := newEngineFixture(t)

	activeCount := func() int {
		history, err := f.repos.Subscription.HistoryByUserID(f.user.ID)
		require.NoError(t, err)
		n := 0
		for _, s := range history {
			if s.Status == models.SubscriptionStatusActive {
				n++
			}
		}
		return n
	}

	created, err := f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, activeCount())

	_, err = f.engine.Cancel(created.ID, f.user.ID, false, true, "")
	require.NoError(t, err)
	assert.Equal(t, 0, activeCount())

	_, err = f.engine.Reactivate(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, activeCount())

	_, err = f.engine.Create(f.user.ID, f.premium.ID, nil)
	assert.ErrorIs(t, err, ErrDuplicateActiveSubscription)
	assert.Equal(t, 1, activeCount())
}

func TestPreviewProration(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.PreviewProration(f.user.ID, f.premium.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = f.engine.Create(f.user.ID, f.basic.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.PreviewProration(f.user.ID, f.basic.ID)
	assert.ErrorIs(t, err, ErrSamePlan)

	f.clock.Advance(15 * 24 * time.Hour)
	got, err := f.engine.PreviewProration(f.user.ID, f.premium.ID)
	require.NoError(t, err)

	assert.Equal(t, 30, got.TotalDays)
	assert.Equal(t, 15, got.DaysRemaining)
	assert.Equal(t, 5.00, got.UnusedAmount)
	assert.Equal(t, 12.50, got.NewPlanAmount)
	assert.Equal(t, 7.50, got.ProratedAmount)
	assert.True(t, got.IsUpgrade)
}
