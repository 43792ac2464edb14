package repository

import (
	"context"
	"errors"
	"fmt"

	"kitchenops/server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on PostgreSQL through gorm
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an open connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Transaction runs fn in a database transaction; a nested call becomes a savepoint
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// ---------- ingredients ----------

func (s *GormStore) GetIngredient(ctx context.Context, id string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := s.conn(ctx).First(&ingredient, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "ingredient "+id)
	}
	return &ingredient, nil
}

func (s *GormStore) FindIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	if len(ids) == 0 {
		return ingredients, nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("find ingredients: %w", err)
	}
	return ingredients, nil
}

func (s *GormStore) FindIngredientByNameAndSupplier(ctx context.Context, name, supplier string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	err := s.conn(ctx).Where("name = ? AND supplier = ?", name, supplier).Order("created_at").First(&ingredient).Error
	if err != nil {
		return nil, notFound(err, "ingredient "+name)
	}
	return &ingredient, nil
}

func (s *GormStore) FindIngredientByName(ctx context.Context, name string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := s.conn(ctx).Where("name = ?", name).Order("created_at").First(&ingredient).Error; err != nil {
		return nil, notFound(err, "ingredient "+name)
	}
	return &ingredient, nil
}

func (s *GormStore) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	if err := s.conn(ctx).Order("name").Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	return ingredients, nil
}

func (s *GormStore) CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(ingredient).Error; err != nil {
		return fmt.Errorf("create ingredient: %w", err)
	}
	return nil
}

func (s *GormStore) SaveIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if ingredient.ID == "" {
		return s.CreateIngredient(ctx, ingredient)
	}
	if err := s.conn(ctx).Omit(clause.Associations).Save(ingredient).Error; err != nil {
		return fmt.Errorf("save ingredient: %w", err)
	}
	return nil
}

func (s *GormStore) IncrementIngredientStock(ctx context.Context, id string, delta float64) error {
	result := s.conn(ctx).Model(&models.Ingredient{}).Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("update stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("ingredient %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) AppendPriceHistory(ctx context.Context, entry *models.PriceHistoryEntry) error {
	if err := s.conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

func (s *GormStore) ListPriceHistory(ctx context.Context, ingredientID string) ([]models.PriceHistoryEntry, error) {
	var entries []models.PriceHistoryEntry
	if err := s.conn(ctx).Where("ingredient_id = ?", ingredientID).Order("recorded_at, id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	return entries, nil
}

// ---------- recipes ----------

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (s *GormStore) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	var recipe models.Recipe
	if err := s.conn(ctx).Preload("Ingredients", orderedLines).First(&recipe, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "recipe "+id)
	}
	return &recipe, nil
}

func (s *GormStore) FindRecipesByIDs(ctx context.Context, ids []string) ([]models.Recipe, error) {
	var recipes []models.Recipe
	if len(ids) == 0 {
		return recipes, nil
	}
	if err := s.conn(ctx).Preload("Ingredients", orderedLines).Where("id IN ?", ids).Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("find recipes: %w", err)
	}
	return recipes, nil
}

func (s *GormStore) FindRecipeIDsByIngredient(ctx context.Context, ingredientID, afterID string, limit int) ([]string, error) {
	var ids []string
	query := s.conn(ctx).Model(&models.RecipeIngredient{}).
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id AND recipes.deleted_at IS NULL").
		Where("recipe_ingredients.ingredient_id = ?", ingredientID).
		Distinct("recipe_ingredients.recipe_id").
		Order("recipe_ingredients.recipe_id").
		Limit(limit)
	if afterID != "" {
		query = query.Where("recipe_ingredients.recipe_id > ?", afterID)
	}
	if err := query.Pluck("recipe_ingredients.recipe_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find recipes by ingredient: %w", err)
	}
	return ids, nil
}

// SaveRecipe writes the header and replaces its lines, keeping their order
func (s *GormStore) SaveRecipe(ctx context.Context, recipe *models.Recipe) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if recipe.ID == "" {
			err = tx.Omit(clause.Associations).Create(recipe).Error
		} else {
			err = tx.Omit(clause.Associations).Save(recipe).Error
		}
		if err != nil {
			return fmt.Errorf("save recipe: %w", err)
		}
		if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&models.RecipeIngredient{}).Error; err != nil {
			return fmt.Errorf("clear recipe lines: %w", err)
		}
		for i := range recipe.Ingredients {
			line := &recipe.Ingredients[i]
			line.RecipeID = recipe.ID
			line.Position = i
			line.ID = ""
		}
		if len(recipe.Ingredients) > 0 {
			if err := tx.Create(&recipe.Ingredients).Error; err != nil {
				return fmt.Errorf("save recipe lines: %w", err)
			}
		}
		return nil
	})
}

// ---------- menus and plans ----------

func (s *GormStore) GetMenu(ctx context.Context, id string) (*models.Menu, error) {
	var menu models.Menu
	if err := s.conn(ctx).First(&menu, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "menu "+id)
	}
	return &menu, nil
}

func (s *GormStore) FindMenus(ctx context.Context, filter MenuFilter) ([]models.Menu, error) {
	query := s.conn(ctx).Model(&models.Menu{})
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Date != "" {
		query = query.Where("date = ?", filter.Date)
	}
	if filter.Base != "" {
		query = query.Where("base = ?", filter.Base)
	}
	if filter.MealType != "" {
		query = query.Where("meal_type = ?", filter.MealType)
	}
	var menus []models.Menu
	if err := query.Order("date, base, meal_type, created_at").Find(&menus).Error; err != nil {
		return nil, fmt.Errorf("find menus: %w", err)
	}
	return menus, nil
}

func (s *GormStore) SaveMenu(ctx context.Context, menu *models.Menu) error {
	var err error
	if menu.ID == "" {
		err = s.conn(ctx).Create(menu).Error
	} else {
		err = s.conn(ctx).Save(menu).Error
	}
	if err != nil {
		return fmt.Errorf("save menu: %w", err)
	}
	return nil
}

func (s *GormStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.conn(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "plan "+id)
	}
	return &plan, nil
}

func (s *GormStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	var err error
	if plan.ID == "" {
		err = s.conn(ctx).Create(plan).Error
	} else {
		err = s.conn(ctx).Save(plan).Error
	}
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (s *GormStore) DeletePlan(ctx context.Context, id string) error {
	result := s.conn(ctx).Delete(&models.Plan{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---------- requisitions ----------

func (s *GormStore) loadRequisition(db *gorm.DB, id string) (*models.Requisition, error) {
	var req models.Requisition
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "requisition "+id)
	}
	if err := db.Session(&gorm.Session{NewDB: true}).
		Where("requisition_id = ?", id).Order("position").Find(&req.Items).Error; err != nil {
		return nil, fmt.Errorf("load requisition items: %w", err)
	}
	return &req, nil
}

func (s *GormStore) GetRequisition(ctx context.Context, id string) (*models.Requisition, error) {
	return s.loadRequisition(s.conn(ctx), id)
}

func (s *GormStore) LockRequisition(ctx context.Context, id string) (*models.Requisition, error) {
	var req models.Requisition
	err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "requisition "+id)
	}
	if err := s.conn(ctx).Where("requisition_id = ?", id).Order("position").Find(&req.Items).Error; err != nil {
		return nil, fmt.Errorf("load requisition items: %w", err)
	}
	return &req, nil
}

func (s *GormStore) applyRequisitionFilter(query *gorm.DB, filter RequisitionFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("requisitions.status = ?", filter.Status)
	}
	if filter.PlanID != "" {
		query = query.Where("requisitions.plan_id = ?", filter.PlanID)
	}
	if filter.Base != "" {
		query = query.Where("requisitions.base = ?", filter.Base)
	}
	if filter.MealType != "" {
		query = query.Where("requisitions.meal_type = ?", filter.MealType)
	}
	if filter.Date != "" {
		query = query.Where("requisitions.date = ?", filter.Date)
	} else {
		if filter.FromDate != "" {
			query = query.Where("requisitions.date >= ?", filter.FromDate)
		}
		if filter.ToDate != "" {
			query = query.Where("requisitions.date <= ?", filter.ToDate)
		}
	}
	if filter.Supplier != "" {
		sub := s.db.Session(&gorm.Session{NewDB: true}).Model(&models.RequisitionItem{}).
			Select("requisition_id").Where("supplier = ?", filter.Supplier)
		query = query.Where("requisitions.id IN (?)", sub)
	}
	return query
}

func (s *GormStore) ListRequisitions(ctx context.Context, filter RequisitionFilter, offset, limit int) ([]models.Requisition, int64, error) {
	filtered := func() *gorm.DB {
		return s.applyRequisitionFilter(s.conn(ctx).Model(&models.Requisition{}), filter)
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count requisitions: %w", err)
	}

	var reqs []models.Requisition
	err := filtered().Preload("Items", orderedLines).
		Order("requisitions.date DESC, requisitions.created_at DESC").
		Offset(offset).Limit(limit).Find(&reqs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list requisitions: %w", err)
	}
	return reqs, total, nil
}

func (s *GormStore) FindMenuRequisition(ctx context.Context, date, base, mealType string) (*models.Requisition, error) {
	var req models.Requisition
	err := s.conn(ctx).Where("origin = ? AND date = ? AND base = ? AND meal_type = ?",
		models.RequisitionOriginMenu, date, base, mealType).First(&req).Error
	if err != nil {
		return nil, notFound(err, "requisition "+date+"/"+base+"/"+mealType)
	}
	return s.loadRequisition(s.conn(ctx), req.ID)
}

func (s *GormStore) CreateRequisition(ctx context.Context, req *models.Requisition) error {
	for i := range req.Items {
		req.Items[i].Position = i
	}
	if err := s.conn(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("create requisition: %w", err)
	}
	return nil
}

func (s *GormStore) SaveRequisition(ctx context.Context, req *models.Requisition) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(req).Error; err != nil {
			return fmt.Errorf("save requisition: %w", err)
		}
		for i := range req.Items {
			item := &req.Items[i]
			item.RequisitionID = req.ID
			var err error
			if item.ID == "" {
				err = tx.Create(item).Error
			} else {
				err = tx.Save(item).Error
			}
			if err != nil {
				return fmt.Errorf("save requisition item: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) ReplaceRequisition(ctx context.Context, req *models.Requisition) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(req).Error; err != nil {
			return fmt.Errorf("save requisition: %w", err)
		}
		if err := tx.Where("requisition_id = ?", req.ID).Delete(&models.RequisitionItem{}).Error; err != nil {
			return fmt.Errorf("clear requisition items: %w", err)
		}
		for i := range req.Items {
			req.Items[i].ID = ""
			req.Items[i].RequisitionID = req.ID
			req.Items[i].Position = i
		}
		if len(req.Items) > 0 {
			if err := tx.Create(&req.Items).Error; err != nil {
				return fmt.Errorf("create requisition items: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteRequisition(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("requisition_id = ?", id).Delete(&models.RequisitionItem{}).Error; err != nil {
			return fmt.Errorf("delete requisition items: %w", err)
		}
		result := tx.Delete(&models.Requisition{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("delete requisition: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("requisition %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *GormStore) DeleteRequisitionsByPlan(ctx context.Context, planID string) (int64, error) {
	var deleted int64
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&models.Requisition{}).Select("id").Where("plan_id = ?", planID)
		if err := tx.Where("requisition_id IN (?)", ids).Delete(&models.RequisitionItem{}).Error; err != nil {
			return fmt.Errorf("delete plan requisition items: %w", err)
		}
		result := tx.Where("plan_id = ?", planID).Delete(&models.Requisition{})
		if result.Error != nil {
			return fmt.Errorf("delete plan requisitions: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func (s *GormStore) ApproveRequisitions(ctx context.Context, filter RequisitionFilter) (int64, int64, error) {
	var headers, items int64
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		// FOR UPDATE waits for an in-flight completion and rechecks the status after it commits
		var ids []string
		query := s.applyRequisitionFilter(tx.Model(&models.Requisition{}), filter).
			Where("requisitions.status <> ?", models.RequisitionStatusCompleted).
			Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "requisitions"}})
		if err := query.Pluck("requisitions.id", &ids).Error; err != nil {
			return fmt.Errorf("select requisitions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		result := tx.Model(&models.Requisition{}).
			Where("id IN ? AND status <> ?", ids, models.RequisitionStatusCompleted).
			Update("status", models.RequisitionStatusApproved)
		if result.Error != nil {
			return fmt.Errorf("approve requisitions: %w", result.Error)
		}
		headers = result.RowsAffected
		result = tx.Model(&models.RequisitionItem{}).Where("requisition_id IN ?", ids).
			Update("status", models.RequisitionStatusApproved)
		if result.Error != nil {
			return fmt.Errorf("approve requisition items: %w", result.Error)
		}
		items = result.RowsAffected
		return nil
	})
	return headers, items, err
}

func (s *GormStore) CountRequisitionsByStatus(ctx context.Context) (map[models.RequisitionStatus]int64, error) {
	var rows []struct {
		Status models.RequisitionStatus
		Count  int64
	}
	err := s.conn(ctx).Model(&models.Requisition{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count requisitions: %w", err)
	}
	counts := make(map[models.RequisitionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *GormStore) ListRequisitionSuppliers(ctx context.Context) ([]string, error) {
	var suppliers []string
	err := s.conn(ctx).Model(&models.RequisitionItem{}).Where("supplier <> ''").
		Distinct("supplier").Order("supplier").Pluck("supplier", &suppliers).Error
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return suppliers, nil
}

// ---------- ledger ----------

func (s *GormStore) CountMovementsBySource(ctx context.Context, sourceType models.MovementSource, sourceID string) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.StockMovement{}).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count movements: %w", err)
	}
	return count, nil
}

func (s *GormStore) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	if err := s.conn(ctx).Create(movement).Error; err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	return nil
}

func (s *GormStore) ListMovements(ctx context.Context, filter MovementFilter) ([]models.StockMovement, error) {
	query := s.conn(ctx).Model(&models.StockMovement{})
	if filter.IngredientID != "" {
		query = query.Where("ingredient_id = ?", filter.IngredientID)
	}
	if filter.Base != "" {
		query = query.Where("base = ?", filter.Base)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.SourceType != "" {
		query = query.Where("source_type = ?", filter.SourceType)
	}
	if filter.SourceID != "" {
		query = query.Where("source_id = ?", filter.SourceID)
	}
	if filter.FromDate != "" {
		query = query.Where("date >= ?", filter.FromDate)
	}
	if filter.ToDate != "" {
		query = query.Where("date <= ?", filter.ToDate)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var movements []models.StockMovement
	if err := query.Order("created_at DESC, id").Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

func (s *GormStore) CreateProduction(ctx context.Context, production *models.Production) error {
	if err := s.conn(ctx).Create(production).Error; err != nil {
		return fmt.Errorf("create production: %w", err)
	}
	return nil
}

func (s *GormStore) ListProductions(ctx context.Context, filter ProductionFilter) ([]models.Production, error) {
	query := s.conn(ctx).Model(&models.Production{})
	if filter.RecipeID != "" {
		query = query.Where("recipe_id = ?", filter.RecipeID)
	}
	if filter.Base != "" {
		query = query.Where("base = ?", filter.Base)
	}
	if filter.Date != "" {
		query = query.Where("date = ?", filter.Date)
	}
	var productions []models.Production
	if err := query.Order("created_at DESC").Find(&productions).Error; err != nil {
		return nil, fmt.Errorf("list productions: %w", err)
	}
	return productions, nil
}
