package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequisitionStatus is shared by requisition headers and their items
type RequisitionStatus string

const (
	RequisitionStatusPending   RequisitionStatus = "pending"
	RequisitionStatusApproved  RequisitionStatus = "approved"
	RequisitionStatusRejected  RequisitionStatus = "rejected"
	RequisitionStatusCompleted RequisitionStatus = "completed"
)

// RequisitionOrigin tells which flow created a requisition
type RequisitionOrigin string

const (
	RequisitionOriginMenu   RequisitionOrigin = "menu"
	RequisitionOriginPlan   RequisitionOrigin = "plan"
	RequisitionOriginManual RequisitionOrigin = "manual"
)

// DefaultRequestedBy marks requisitions produced by demand generation
const DefaultRequestedBy = "Auto-System"

// Requisition is a purchase request header. Its status must stay consistent with its items.
type Requisition struct {
	ID            string            `json:"id" gorm:"type:uuid;primaryKey"`
	Date          string            `json:"date" gorm:"type:varchar(10);not null;index" validate:"required"`
	Base          string            `json:"base" gorm:"type:varchar(100);index"`
	MealType      string            `json:"meal_type,omitempty" gorm:"type:varchar(20);index"`
	MenuName      string            `json:"menu_name,omitempty" gorm:"type:varchar(255)"`
	Origin        RequisitionOrigin `json:"origin" gorm:"type:varchar(20);not null;default:'manual';index"`
	PlanID        *string           `json:"plan_id,omitempty" gorm:"type:uuid;index"`
	PeopleCount   float64           `json:"people_count" gorm:"type:decimal(10,2);default:0"`
	PortionFactor float64           `json:"portion_factor" gorm:"type:decimal(10,4);default:0"`
	Status        RequisitionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	RequestedBy   string            `json:"requested_by" gorm:"type:varchar(255)"`
	LinkedMenuIDs []string          `json:"linked_menu_ids" gorm:"type:text;serializer:json"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CompletedBy   string            `json:"completed_by,omitempty" gorm:"type:varchar(255)"`
	Notes         string            `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt     time.Time         `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"autoUpdateTime"`

	Items []RequisitionItem `json:"items" gorm:"foreignKey:RequisitionID;constraint:OnDelete:CASCADE" validate:"dive"`
}

// TableName specifies the table name
func (Requisition) TableName() string {
	return "requisitions"
}

// BeforeCreate generates a UUID and fills defaults
func (r *Requisition) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = RequisitionStatusPending
	}
	return nil
}

// AllItemsCompleted reports whether every item is completed. An empty requisition is never done.
func (r *Requisition) AllItemsCompleted() bool {
	if len(r.Items) == 0 {
		return false
	}
	for _, item := range r.Items {
		if item.Status != RequisitionStatusCompleted {
			return false
		}
	}
	return true
}

// RequisitionItem is the canonical requisition line
type RequisitionItem struct {
	ID             string            `json:"id" gorm:"type:uuid;primaryKey"`
	RequisitionID  string            `json:"requisition_id" gorm:"type:uuid;not null;index"`
	Position       int               `json:"position" gorm:"not null;default:0"`
	IngredientID   *string           `json:"ingredient_id,omitempty" gorm:"type:uuid;index"`
	Item           string            `json:"item" gorm:"type:varchar(255)"`
	Unit           string            `json:"unit" gorm:"type:varchar(20)"`
	Quantity       float64           `json:"quantity" gorm:"type:decimal(14,4);not null;default:0" validate:"gte=0"`
	ActualQuantity *float64          `json:"actual_quantity,omitempty" gorm:"type:decimal(14,4)"`
	UnitPrice      float64           `json:"unit_price" gorm:"type:decimal(14,4);default:0"`
	LineTotal      float64           `json:"line_total" gorm:"type:decimal(14,4);default:0"`
	Supplier       string            `json:"supplier" gorm:"type:varchar(255);index"`
	Status         RequisitionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
}

// TableName specifies the table name
func (RequisitionItem) TableName() string {
	return "requisition_items"
}

// BeforeCreate generates a UUID and fills defaults
func (ri *RequisitionItem) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == "" {
		ri.ID = uuid.New().String()
	}
	if ri.Status == "" {
		ri.Status = RequisitionStatusPending
	}
	return nil
}
