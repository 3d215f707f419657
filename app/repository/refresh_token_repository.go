package repository

import (
	"time"

	"github.com/supportsoft/subhub/app/models"
	"gorm.io/gorm"
)

// refreshTokenRepository implements the RefreshTokenRepository interface
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository creates a new refresh token repository instance
func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create persists a hashed refresh token
func (r *refreshTokenRepository) Create(token *models.RefreshToken) error {
	return r.db.Create(token).Error
}

// GetByHash resolves a stored token by its lookup hash
func (r *refreshTokenRepository) GetByHash(hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.Where("token_hash = ?", hash).First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteByHash removes a single token (logout, rotation)
func (r *refreshTokenRepository) DeleteByHash(hash string) error {
	return r.db.Where("token_hash = ?", hash).Delete(&models.RefreshToken{}).Error
}

// DeleteByUserID removes all tokens of a user (password change)
func (r *refreshTokenRepository) DeleteByUserID(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error
}

// DeleteExpired prunes tokens past their validity window
func (r *refreshTokenRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", now).Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
