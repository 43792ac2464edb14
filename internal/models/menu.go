package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Meal types used by menus, plan blocks and requisitions
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealSnack     = "snack"
	MealDinner    = "dinner"
	MealExtra     = "extra"
)

// Menu is the ordered list of recipes served at one base for one meal on one date
type Menu struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255)"`
	Date      string    `json:"date" gorm:"type:varchar(10);not null;index" validate:"required,datetime=2006-01-02"`
	Base      string    `json:"base" gorm:"type:varchar(100);not null;index" validate:"required"`
	MealType  string    `json:"meal_type" gorm:"type:varchar(20);not null;index" validate:"required,oneof=breakfast lunch snack dinner extra"`
	RecipeIDs []string  `json:"recipe_ids" gorm:"type:text;serializer:json"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name
func (Menu) TableName() string {
	return "menus"
}

// BeforeCreate generates a UUID
func (m *Menu) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// MealBlock is one slot of a plan: which menu to cook and for how many people
type MealBlock struct {
	MenuID string  `json:"menu_id" gorm:"type:varchar(36)"`
	Qty    float64 `json:"qty" gorm:"type:decimal(10,2);default:0" validate:"gte=0"`
}

// Plan schedules up to five meal blocks for a base on a date
type Plan struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Date      string    `json:"date" gorm:"type:varchar(10);not null;index" validate:"required,datetime=2006-01-02"`
	Base      string    `json:"base" gorm:"type:varchar(100);not null;index" validate:"required"`
	Breakfast MealBlock `json:"breakfast" gorm:"embedded;embeddedPrefix:breakfast_"`
	Lunch     MealBlock `json:"lunch" gorm:"embedded;embeddedPrefix:lunch_"`
	Snack     MealBlock `json:"snack" gorm:"embedded;embeddedPrefix:snack_"`
	Dinner    MealBlock `json:"dinner" gorm:"embedded;embeddedPrefix:dinner_"`
	Extra     MealBlock `json:"extra" gorm:"embedded;embeddedPrefix:extra_"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name
func (Plan) TableName() string {
	return "plans"
}

// BeforeCreate generates a UUID
func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Blocks returns the plan's meal blocks keyed by meal type, in serving order
func (p *Plan) Blocks() []NamedMealBlock {
	return []NamedMealBlock{
		{MealType: MealBreakfast, MealBlock: p.Breakfast},
		{MealType: MealLunch, MealBlock: p.Lunch},
		{MealType: MealSnack, MealBlock: p.Snack},
		{MealType: MealDinner, MealBlock: p.Dinner},
		{MealType: MealExtra, MealBlock: p.Extra},
	}
}

// NamedMealBlock pairs a block with its slot name
type NamedMealBlock struct {
	MealType string
	MealBlock
}
