package repository

import (
	"strings"

	"github.com/supportsoft/subhub/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// Create creates a new plan in the database
func (r *planRepository) Create(plan *models.Plan) error {
	return r.db.Create(plan).Error
}

// GetByID retrieves a plan by its ID
func (r *planRepository) GetByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.First(&plan, id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByUUID retrieves a plan by its public UUID
func (r *planRepository) GetByUUID(uuid string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("uuid = ?", uuid).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActive returns all purchasable plans ordered by price
func (r *planRepository) GetActive() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Where("active = ?", true).Order("price ASC").Find(&plans).Error
	return plans, err
}

// List returns plans matching the admin filter
func (r *planRepository) List(filter PlanFilter) ([]models.Plan, error) {
	query := r.db.Model(&models.Plan{})

	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+strings.TrimSpace(filter.Name)+"%")
	}
	if filter.MinPrice != nil {
		query = query.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	var plans []models.Plan
	err := query.Order(sortClause(filter.SortBy, filter.Order, planSortColumns)).Find(&plans).Error
	return plans, err
}

// Update saves plan changes; the model hook recomputes duration_in_days
func (r *planRepository) Update(plan *models.Plan) error {
	return r.db.Save(plan).Error
}

// Delete hard deletes a plan by its ID
func (r *planRepository) Delete(id uint) error {
	return r.db.Delete(&models.Plan{}, id).Error
}

// Count returns the total number of plans
func (r *planRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Plan{}).Count(&count).Error
	return count, err
}

var planSortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"created_at": "created_at",
}

// sortClause builds a safe ORDER BY from whitelisted columns. Unknown sort
// keys fall back to created_at DESC.
func sortClause(sortBy, order string, allowed map[string]string) string {
	column, ok := allowed[strings.ToLower(strings.TrimSpace(sortBy))]
	if !ok {
		column = "created_at"
	}
	if strings.EqualFold(order, "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}
