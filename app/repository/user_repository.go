package repository

import (
	"github.com/supportsoft/subhub/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// SetSubscriptionRef maintains the denormalized current-subscription shortcut.
// A nil subscriptionID clears the reference.
func (r *userRepository) SetSubscriptionRef(userID uint, subscriptionID *uint) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("subscription_id", subscriptionID).Error
}

// Delete soft deletes a user by their ID
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// ListByRole retrieves a paginated list of users holding the given role. An
// empty role means no role filter.
func (r *userRepository) ListByRole(role string, offset, limit int) ([]models.User, error) {
	var users []models.User
	query := r.db.Order("created_at DESC").Offset(offset).Limit(limit)
	if role != "" {
		query = query.Where("role = ?", role)
	}
	err := query.Find(&users).Error
	return users, err
}

// ListEmailsByRole returns the email addresses of all users with the given role
func (r *userRepository) ListEmailsByRole(role string) ([]string, error) {
	var emails []string
	err := r.db.Model(&models.User{}).
		Where("role = ? AND status = ?", role, models.STATUS_ACTIVE).
		Pluck("email", &emails).Error
	return emails, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// CountByRole returns the number of users holding the given role
func (r *userRepository) CountByRole(role string) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}
