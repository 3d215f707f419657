package scheduler

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/env"
	"github.com/supportsoft/subhub/internal/pkg/lifecycle"
	"github.com/supportsoft/subhub/internal/pkg/notifier"
)

// ReminderWindow is how far ahead of the end date the expiry reminder fires.
// The selection is inclusive of both bounds: end dates inside
// [now, now+ReminderWindow] match.
const ReminderWindow = 3 * 24 * time.Hour

// Manager runs the two recurring sweeps over subscriptions: expiry reminders
// and expiration. Each rule is also invocable on demand through the same
// code path the ticker uses, so the selection predicates never diverge.
type Manager struct {
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	tokens   repository.RefreshTokenRepository
	notifier notifier.Notifier
	clock    lifecycle.Clock

	reminderTicker   *time.Ticker
	expirationTicker *time.Ticker
	stopCh           chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

// NewManager creates a sweep manager from injected collaborators.
func NewManager(repos *repository.Repositories, n notifier.Notifier, clock lifecycle.Clock) *Manager {
	return &Manager{
		subs:     repos.Subscription,
		users:    repos.User,
		tokens:   repos.RefreshToken,
		notifier: n,
		clock:    clock,
	}
}

// intervalFromEnv reads a sweep interval in minutes, falling back on the
// default when unset or unparsable.
func intervalFromEnv(key string, def time.Duration) time.Duration {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		log.Warnf("[Sweep Manager] Invalid %s=%q, using default %s", key, raw, def)
		return def
	}
	return time.Duration(minutes) * time.Minute
}

// Start launches both sweep workers. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Sweep Manager] Starting subscription sweeps")

	reminderInterval := intervalFromEnv("SWEEP_REMINDER_INTERVAL_MINUTES", 24*time.Hour)
	expirationInterval := intervalFromEnv("SWEEP_EXPIRATION_INTERVAL_MINUTES", 24*time.Hour)

	m.reminderTicker = time.NewTicker(reminderInterval)
	m.wg.Add(1)
	go m.reminderWorker(m.stopCh)

	m.expirationTicker = time.NewTicker(expirationInterval)
	m.wg.Add(1)
	go m.expirationWorker(m.stopCh)

	log.Info("[Sweep Manager] Started successfully")
}

// Stop halts the tickers and waits for in-flight sweeps to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Sweep Manager] Stopping subscription sweeps...")

	if m.reminderTicker != nil {
		m.reminderTicker.Stop()
	}
	if m.expirationTicker != nil {
		m.expirationTicker.Stop()
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	log.Info("[Sweep Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) reminderWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[Sweep Manager] Reminder worker stopping")
			return
		case <-m.reminderTicker.C:
			if _, err := m.RunExpiryNotificationsOnce(); err != nil {
				log.Errorf("[Sweep Manager] Reminder sweep error: %v", err)
			}
		}
	}
}

func (m *Manager) expirationWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[Sweep Manager] Expiration worker stopping")
			return
		case <-m.expirationTicker.C:
			if _, _, err := m.RunExpirationCheckOnce(); err != nil {
				log.Errorf("[Sweep Manager] Expiration sweep error: %v", err)
			}
		}
	}
}

// RunExpiryNotificationsOnce performs one reminder sweep: select active,
// not-yet-reminded subscriptions ending inside the reminder window, send a
// reminder for each, and flip the sent flag only after the notifier reports
// success. A failed recipient is retried on the next run; a failed record
// never aborts the rest of the sweep. Returns how many reminders were
// confirmed sent.
func (m *Manager) RunExpiryNotificationsOnce() (int, error) {
	now := m.clock.Now()
	matches, err := m.subs.ExpiringSoon(now, ReminderWindow)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range matches {
		sub := &matches[i]

		email := sub.UserEmail
		name := ""
		if user, err := m.users.GetByID(sub.UserID); err == nil {
			email = user.Email
			name = user.Name
		}
		if email == "" {
			log.Warnf("[Sweep Manager] Subscription %d has no resolvable email, skipping reminder", sub.ID)
			continue
		}

		daysLeft := int(math.Ceil(sub.EndDate.Sub(now).Hours() / 24))
		if err := m.notifier.SendExpiryReminder(email, name, sub.PlanName, daysLeft, sub.EndDate); err != nil {
			// Flag stays false so the next sweep retries this record.
			log.Errorf("[Sweep Manager] Expiry reminder to %s failed: %v", email, err)
			continue
		}

		won, err := m.subs.MarkNotificationSent(sub.ID, now)
		if err != nil {
			log.Errorf("[Sweep Manager] Marking reminder sent for subscription %d failed: %v", sub.ID, err)
			continue
		}
		if !won {
			// The record changed between selection and write; leave it alone.
			log.Debugf("[Sweep Manager] Subscription %d changed during sweep, reminder flag untouched", sub.ID)
			continue
		}
		sent++
	}

	if sent > 0 || len(matches) > 0 {
		log.Infof("[Sweep Manager] Reminder sweep: %d matched, %d sent", len(matches), sent)
	}
	return sent, nil
}

// RunExpirationCheckOnce performs one expiration sweep: every active
// subscription past its end date lapses, as cancelled when it was flagged
// cancel-at-period-end and as expired otherwise. The underlying bulk update
// is transactional, so a failure leaves no partial state.
func (m *Manager) RunExpirationCheckOnce() (cancelled int64, expired int64, err error) {
	now := m.clock.Now()
	cancelled, expired, err = m.subs.SweepLapsed(now)
	if err != nil {
		return 0, 0, err
	}
	if cancelled > 0 || expired > 0 {
		log.Infof("[Sweep Manager] Expiration sweep: %d cancelled, %d expired", cancelled, expired)
	}

	// Piggyback session maintenance on the daily sweep.
	if pruned, err := m.tokens.DeleteExpired(now); err != nil {
		log.Errorf("[Sweep Manager] Pruning expired refresh tokens failed: %v", err)
	} else if pruned > 0 {
		log.Infof("[Sweep Manager] Pruned %d expired refresh tokens", pruned)
	}

	return cancelled, expired, nil
}
