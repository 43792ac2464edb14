package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultBasePortions is the scaling anchor used when a recipe has none
const DefaultBasePortions = 10.0

// Recipe represents a technical card: ordered ingredient lines plus derived cost figures
type Recipe struct {
	ID           string  `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string  `json:"name" gorm:"type:varchar(255);not null" validate:"required"`
	Type         string  `json:"type" gorm:"type:varchar(100)"`
	Category     string  `json:"category" gorm:"type:varchar(100)"`
	Portions     float64 `json:"portions" gorm:"type:decimal(10,2);not null;default:0" validate:"gte=0"`
	BasePortions float64 `json:"base_portions" gorm:"type:decimal(10,2);not null;default:0" validate:"gte=0"`
	YieldWeight  float64 `json:"yield_weight" gorm:"type:decimal(10,4);default:0"`

	TotalCost      float64 `json:"total_cost" gorm:"type:decimal(14,4);not null;default:0"`
	CostPerPortion float64 `json:"cost_per_portion" gorm:"type:decimal(14,4);not null;default:0"`

	IsLocked bool       `json:"is_locked" gorm:"default:false"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy string     `json:"locked_by,omitempty" gorm:"type:varchar(255)"`
	LockNote string     `json:"lock_note,omitempty" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Ingredients []RecipeIngredient `json:"ingredients" gorm:"foreignKey:RecipeID" validate:"dive"`
}

// TableName specifies the table name
func (Recipe) TableName() string {
	return "recipes"
}

// BeforeCreate generates a UUID
func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ScalingAnchor returns BasePortions, falling back to Portions and then to 1
func (r *Recipe) ScalingAnchor() float64 {
	if r.BasePortions > 0 {
		return r.BasePortions
	}
	if r.Portions > 0 {
		return r.Portions
	}
	return 1
}

// RecipeIngredient is one line of a recipe. BaseQuantity is the quantity at BasePortions
// and stays fixed across scaling; Quantity is the current scaled value.
type RecipeIngredient struct {
	ID           string  `json:"id" gorm:"type:uuid;primaryKey"`
	RecipeID     string  `json:"recipe_id" gorm:"type:uuid;not null;index"`
	IngredientID string  `json:"ingredient_id" gorm:"type:uuid;not null;index" validate:"required"`
	Position     int     `json:"position" gorm:"not null;default:0"`
	Quantity     float64 `json:"quantity" gorm:"type:decimal(12,4);not null" validate:"gte=0"`
	BaseQuantity float64 `json:"base_quantity" gorm:"type:decimal(12,4);not null;default:0"`
	Unit         string  `json:"unit" gorm:"type:varchar(20)"`
	LineCost     float64 `json:"line_cost" gorm:"type:decimal(14,4);not null;default:0"`
}

// TableName specifies the table name
func (RecipeIngredient) TableName() string {
	return "recipe_ingredients"
}

// BeforeCreate generates a UUID
func (ri *RecipeIngredient) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == "" {
		ri.ID = uuid.New().String()
	}
	return nil
}
