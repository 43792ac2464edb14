package models

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table used by the kitchen core
func AutoMigrate(db *gorm.DB, logger *logrus.Logger) error {
	if err := db.AutoMigrate(
		&Ingredient{},
		&PriceHistoryEntry{},
		&Recipe{},
		&RecipeIngredient{},
		&Menu{},
		&Plan{},
		&Requisition{},
		&RequisitionItem{},
		&StockMovement{},
		&Production{},
	); err != nil {
		logger.WithError(err).Error("❌ AutoMigrate failed")
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Menu-driven generation upserts one header per (date, base, meal type)
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_requisitions_menu_key
		ON requisitions (date, base, meal_type) WHERE origin = 'menu'`).Error; err != nil {
		logger.WithError(err).Warn("⚠️ could not create idx_requisitions_menu_key")
		return fmt.Errorf("create requisition key index: %w", err)
	}

	logger.Info("✅ database schema migrated")
	return nil
}
