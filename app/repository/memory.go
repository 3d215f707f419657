package repository

import (
	"sort"
	"strings"
	"sync"
	"time"

	guuid "github.com/google/uuid"

	"github.com/supportsoft/subhub/app/models"
	"gorm.io/gorm"
)

// In-memory repository implementations for tests. They mirror the GORM
// repositories' contracts, including gorm.ErrRecordNotFound for misses and
// gorm.ErrDuplicatedKey for a second active subscription per user.

// MemoryUserRepository is an in-memory UserRepository for tests.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*models.User
}

// NewMemoryUserRepository creates an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{nextID: 1, users: make(map[uint]*models.User)}
}

func (r *MemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = r.nextID
	r.nextID++
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryUserRepository) GetByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepository) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryUserRepository) Update(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryUserRepository) SetSubscriptionRef(userID uint, subscriptionID *uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.SubscriptionID = subscriptionID
	return nil
}

func (r *MemoryUserRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) List(offset, limit int) ([]models.User, error) {
	return r.ListByRole("", offset, limit)
}

func (r *MemoryUserRepository) ListByRole(role string, offset, limit int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryUserRepository) ListEmailsByRole(role string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var emails []string
	for _, u := range r.users {
		if u.Role == role && u.Status == models.STATUS_ACTIVE {
			emails = append(emails, u.Email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (r *MemoryUserRepository) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *MemoryUserRepository) CountByRole(role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// MemoryPlanRepository is an in-memory PlanRepository for tests.
type MemoryPlanRepository struct {
	mu     sync.Mutex
	nextID uint
	plans  map[uint]*models.Plan
}

// NewMemoryPlanRepository creates an empty in-memory plan repository.
func NewMemoryPlanRepository() *MemoryPlanRepository {
	return &MemoryPlanRepository{nextID: 1, plans: make(map[uint]*models.Plan)}
}

func (r *MemoryPlanRepository) Create(plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.Duration.Value <= 0 {
		return models.ErrDurationValueRequired
	}
	for _, p := range r.plans {
		if p.Name == plan.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	plan.ID = r.nextID
	r.nextID++
	plan.DurationInDays = plan.Duration.InDays()
	if plan.UUID == "" {
		plan.UUID = guuid.NewString()
	}
	cp := *plan
	r.plans[plan.ID] = &cp
	return nil
}

func (r *MemoryPlanRepository) GetByID(id uint) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryPlanRepository) GetByUUID(uuid string) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.UUID == uuid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryPlanRepository) GetActive() ([]models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Plan
	for _, p := range r.plans {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (r *MemoryPlanRepository) List(filter PlanFilter) ([]models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Plan
	for _, p := range r.plans {
		if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.MinPrice != nil && p.Price < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && p.Price > *filter.MaxPrice {
			continue
		}
		if filter.Active != nil && p.Active != *filter.Active {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPlanRepository) Update(plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[plan.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if plan.Duration.Value <= 0 {
		return models.ErrDurationValueRequired
	}
	plan.DurationInDays = plan.Duration.InDays()
	cp := *plan
	r.plans[plan.ID] = &cp
	return nil
}

func (r *MemoryPlanRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.plans, id)
	return nil
}

func (r *MemoryPlanRepository) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.plans)), nil
}

// MemorySubscriptionRepository is an in-memory SubscriptionRepository for tests.
type MemorySubscriptionRepository struct {
	mu     sync.Mutex
	nextID uint
	subs   map[uint]*models.Subscription
}

// NewMemorySubscriptionRepository creates an empty in-memory subscription repository.
func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{nextID: 1, subs: make(map[uint]*models.Subscription)}
}

func (r *MemorySubscriptionRepository) Create(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.Status == models.SubscriptionStatusActive {
		for _, s := range r.subs {
			if s.UserID == sub.UserID && s.Status == models.SubscriptionStatusActive {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	sub.ID = r.nextID
	r.nextID++
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	if sub.UUID == "" {
		sub.UUID = guuid.NewString()
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *MemorySubscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySubscriptionRepository) GetByUUID(uuid string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UUID == uuid {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemorySubscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) || (s.CreatedAt.Equal(latest.CreatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemorySubscriptionRepository) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UserID == userID && s.Status == models.SubscriptionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemorySubscriptionRepository) HistoryByUserID(userID uint) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemorySubscriptionRepository) List(filter SubscriptionFilter) ([]models.Subscription, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subs {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.PlanID != 0 && s.PlanID != filter.PlanID {
			continue
		}
		if filter.UserID != 0 && s.UserID != filter.UserID {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *MemorySubscriptionRepository) Update(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if sub.Status == models.SubscriptionStatusActive {
		for _, s := range r.subs {
			if s.ID != sub.ID && s.UserID == sub.UserID && s.Status == models.SubscriptionStatusActive {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *MemorySubscriptionRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.subs, id)
	return nil
}

func (r *MemorySubscriptionRepository) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.subs)), nil
}

func (r *MemorySubscriptionRepository) CountByStatus(status string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subs {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *MemorySubscriptionRepository) ActiveRevenue() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, s := range r.subs {
		if s.Status == models.SubscriptionStatusActive {
			total += s.PlanPrice
		}
	}
	return total, nil
}

func (r *MemorySubscriptionRepository) ActiveCountByPlan() ([]PlanCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, s := range r.subs {
		if s.Status == models.SubscriptionStatusActive {
			counts[s.PlanName]++
		}
	}
	var out []PlanCount
	for name, n := range counts {
		out = append(out, PlanCount{PlanName: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func (r *MemorySubscriptionRepository) ExpiringSoon(now time.Time, window time.Duration) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(window)
	var out []models.Subscription
	for _, s := range r.subs {
		if s.Status != models.SubscriptionStatusActive || s.ExpiryNotificationSent {
			continue
		}
		if s.EndDate.Before(now) || s.EndDate.After(cutoff) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemorySubscriptionRepository) MarkNotificationSent(id uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return false, nil
	}
	if s.ExpiryNotificationSent || s.Status != models.SubscriptionStatusActive {
		return false, nil
	}
	s.ExpiryNotificationSent = true
	sentAt := at
	s.NotificationSentAt = &sentAt
	return true, nil
}

func (r *MemorySubscriptionRepository) SweepLapsed(now time.Time) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cancelled, expired int64
	for _, s := range r.subs {
		if s.Status != models.SubscriptionStatusActive || !s.EndDate.Before(now) {
			continue
		}
		if s.CancelAtPeriodEnd {
			s.Status = models.SubscriptionStatusCancelled
			s.CancelAtPeriodEnd = false
			at := now
			s.CancelledAt = &at
			cancelled++
		} else {
			s.Status = models.SubscriptionStatusExpired
			expired++
		}
		s.ActiveUserKey = nil
		s.UpdatedAt = now
	}
	return cancelled, expired, nil
}

func (r *MemorySubscriptionRepository) CancelActiveByPlanID(planID uint, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subs {
		if s.PlanID == planID && s.Status == models.SubscriptionStatusActive {
			s.Status = models.SubscriptionStatusCancelled
			cancelledAt := at
			s.CancelledAt = &cancelledAt
			s.CancelReason = "plan discontinued"
			s.ActiveUserKey = nil
			s.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// MemoryRefreshTokenRepository is an in-memory RefreshTokenRepository for tests.
type MemoryRefreshTokenRepository struct {
	mu     sync.Mutex
	nextID uint
	tokens map[uint]*models.RefreshToken
}

// NewMemoryRefreshTokenRepository creates an empty in-memory token repository.
func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{nextID: 1, tokens: make(map[uint]*models.RefreshToken)}
}

func (r *MemoryRefreshTokenRepository) Create(token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == token.TokenHash {
			return gorm.ErrDuplicatedKey
		}
	}
	token.ID = r.nextID
	r.nextID++
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *MemoryRefreshTokenRepository) GetByHash(hash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRefreshTokenRepository) DeleteByHash(hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.TokenHash == hash {
			delete(r.tokens, id)
			return nil
		}
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteByUserID(userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}
