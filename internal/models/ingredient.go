package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Purchase pack units accepted for an ingredient
const (
	PurchaseUnitKg    = "kg"
	PurchaseUnitLiter = "lt"
)

// DefaultYieldPercent is used when an ingredient has no yield set
const DefaultYieldPercent = 100.0

// Ingredient represents a purchasable item with pack pricing and a running stock counter
type Ingredient struct {
	ID               string  `json:"id" gorm:"type:uuid;primaryKey"`
	Name             string  `json:"name" gorm:"type:varchar(255);not null;index" validate:"required"`
	Supplier         string  `json:"supplier" gorm:"type:varchar(255);index"`
	Category         string  `json:"category" gorm:"type:varchar(100);default:'Other'"`
	Warehouse        string  `json:"warehouse" gorm:"type:varchar(50);default:'Dry'"`
	PurchaseUnit     string  `json:"purchase_unit" gorm:"type:varchar(10);not null" validate:"omitempty,oneof=kg lt l g lb oz"`
	PurchaseQuantity float64 `json:"purchase_quantity" gorm:"type:decimal(12,4);not null;default:0" validate:"gte=0"`
	OriginalPrice    float64 `json:"original_price" gorm:"type:decimal(12,4);not null;default:0" validate:"gte=0"`
	PricePerKg       float64 `json:"price_per_kg" gorm:"type:decimal(12,4);not null;default:0"`
	OriginalUnit     string  `json:"original_unit" gorm:"type:varchar(20);not null;default:'kg'"`
	// Yield is a percentage in (0,100]; nil means 100
	Yield          *float64 `json:"yield" gorm:"type:decimal(6,2)" validate:"omitempty,gte=0,lte=100"`
	Kcal           float64  `json:"kcal" gorm:"type:decimal(10,2);default:0"`
	StandardWeight float64  `json:"standard_weight" gorm:"type:decimal(10,4);default:0"`
	// Stock is not clamped at zero: outbound movements may overdraw it
	Stock     float64        `json:"stock" gorm:"type:decimal(14,4);not null;default:0"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	PriceHistory []PriceHistoryEntry `json:"price_history,omitempty" gorm:"foreignKey:IngredientID"`
}

// TableName specifies the table name
func (Ingredient) TableName() string {
	return "ingredients"
}

// BeforeCreate generates a UUID
func (i *Ingredient) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// YieldPercent returns the usable share of a purchased quantity, in percent
func (i *Ingredient) YieldPercent() float64 {
	if i.Yield == nil {
		return DefaultYieldPercent
	}
	return *i.Yield
}

// PriceHistoryEntry is an immutable snapshot of the purchase pack taken on every price change
type PriceHistoryEntry struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey"`
	IngredientID     string    `json:"ingredient_id" gorm:"type:uuid;not null;index"`
	PricePerKg       float64   `json:"price_per_kg" gorm:"type:decimal(12,4)"`
	OriginalPrice    float64   `json:"original_price" gorm:"type:decimal(12,4)"`
	PurchaseUnit     string    `json:"purchase_unit" gorm:"type:varchar(10)"`
	PurchaseQuantity float64   `json:"purchase_quantity" gorm:"type:decimal(12,4)"`
	RecordedAt       time.Time `json:"recorded_at" gorm:"not null;index"`
}

// TableName specifies the table name
func (PriceHistoryEntry) TableName() string {
	return "ingredient_price_history"
}

// BeforeCreate generates a UUID
func (p *PriceHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
