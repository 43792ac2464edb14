package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MovementDirection tells how a movement changes stock
type MovementDirection string

const (
	DirectionInbound    MovementDirection = "inbound"
	DirectionOutbound   MovementDirection = "outbound"
	DirectionAdjustment MovementDirection = "adjustment"
)

// MovementSource is the kind of document that caused a movement.
// (SourceType, SourceID) is the idempotency key for automatic posting.
type MovementSource string

const (
	SourceRequisition     MovementSource = "Requisition"
	SourceProductionOrder MovementSource = "ProductionOrder"
	SourceManual          MovementSource = "Manual"
	SourceAdjustment      MovementSource = "Adjustment"
)

// DefaultBase is used for movements that do not name a location
const DefaultBase = "BASE"

// StockMovement is an append-only ledger row. Quantity is expressed in the ingredient's
// base unit; Direction carries the sign, except for adjustments which may be recorded negative.
type StockMovement struct {
	ID             string            `json:"id" gorm:"type:uuid;primaryKey"`
	IngredientID   string            `json:"ingredient_id" gorm:"type:uuid;not null;index"`
	IngredientName string            `json:"ingredient_name" gorm:"type:varchar(255)"`
	Base           string            `json:"base" gorm:"type:varchar(100);index:idx_movement_source,priority:1"`
	Supplier       string            `json:"supplier,omitempty" gorm:"type:varchar(255)"`
	Quantity       float64           `json:"quantity" gorm:"type:decimal(14,4);not null"`
	Unit           string            `json:"unit" gorm:"type:varchar(20);not null"`
	PurchasePrice  float64           `json:"purchase_price" gorm:"type:decimal(14,4);default:0"`
	CostTotal      float64           `json:"cost_total" gorm:"type:decimal(14,4);default:0"`
	Date           string            `json:"date" gorm:"type:varchar(10);not null;index"`
	Notes          string            `json:"notes,omitempty" gorm:"type:text"`
	Direction      MovementDirection `json:"direction" gorm:"type:varchar(20);not null;default:'inbound';index"`
	SourceType     MovementSource    `json:"source_type" gorm:"type:varchar(30);not null;default:'Manual';index:idx_movement_source,priority:2"`
	SourceID       string            `json:"source_id,omitempty" gorm:"type:varchar(64);index:idx_movement_source,priority:3"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name
func (StockMovement) TableName() string {
	return "stock_movements"
}

// BeforeCreate generates a UUID
func (sm *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if sm.ID == "" {
		sm.ID = uuid.New().String()
	}
	return nil
}

// SignedQuantity returns the stock delta of the movement.
// Adjustments add their quantity as given, so a negative adjustment lowers stock.
func (sm *StockMovement) SignedQuantity() float64 {
	if sm.Direction == DirectionOutbound {
		return -sm.Quantity
	}
	return sm.Quantity
}

// Production records a batch cooked from a recipe; its ingredients leave stock as outbound movements
type Production struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Date      string    `json:"date" gorm:"type:varchar(10);not null;index"`
	RecipeID  string    `json:"recipe_id" gorm:"type:uuid;not null;index"`
	Quantity  float64   `json:"quantity" gorm:"type:decimal(10,2);not null"`
	Base      string    `json:"base" gorm:"type:varchar(100);not null;index"`
	Handler   string    `json:"handler" gorm:"type:varchar(255);not null"`
	Cost      float64   `json:"cost" gorm:"type:decimal(14,4);default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name
func (Production) TableName() string {
	return "productions"
}

// BeforeCreate generates a UUID
func (p *Production) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
