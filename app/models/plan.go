package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DurationUnitDays   = "days"
	DurationUnitMonths = "months"
	DurationUnitYears  = "years"
)

// ErrDurationValueRequired aborts a plan write when no duration value is set.
var ErrDurationValueRequired = errors.New("plan duration value is required")

// PlanDuration is the {value, unit} pair a plan is sold in. DurationInDays on
// the plan is always derived from it before persisting.
type PlanDuration struct {
	Value int    `gorm:"column:duration_value;not null" json:"value" validate:"required,min=1"`
	Unit  string `gorm:"column:duration_unit;type:varchar(16);not null;default:'months'" json:"unit"`
}

// InDays maps the duration to whole days: days x1, months x30, years x365.
// Unknown units fall back to months. No calendar arithmetic is involved.
func (d PlanDuration) InDays() int {
	switch d.Unit {
	case DurationUnitDays:
		return d.Value
	case DurationUnitYears:
		return d.Value * 365
	default:
		return d.Value * 30
	}
}

type Plan struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	UUID        string       `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	Name        string       `gorm:"type:varchar(150);uniqueIndex;not null" json:"name" validate:"required,min=2,max=150"`
	Description string       `gorm:"type:text" json:"description" validate:"required"`
	Price       float64      `gorm:"type:decimal(10,2);not null" json:"price" validate:"min=0"`
	Duration    PlanDuration `gorm:"embedded" json:"duration"`

	// DurationInDays is recomputed from Duration on every save and is never
	// independently settable.
	DurationInDays int `gorm:"not null" json:"duration_in_days"`

	Features []string `gorm:"serializer:json;type:text" json:"features"`
	Active   bool     `gorm:"default:true;index" json:"active"`

	// StripePriceID is an inert placeholder; no gateway integration reads it.
	StripePriceID string `gorm:"type:varchar(191);default:null" json:"stripe_price_id,omitempty"`

	CreatedByID *uint     `gorm:"index" json:"created_by,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// BeforeCreate assigns the public UUID.
func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}

// BeforeSave derives DurationInDays from the duration pair. Missing value
// aborts the write.
func (p *Plan) BeforeSave(tx *gorm.DB) error {
	if p.Duration.Value <= 0 {
		return ErrDurationValueRequired
	}
	p.DurationInDays = p.Duration.InDays()
	return nil
}
