package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kitchenops/server/internal/models"

	"github.com/google/uuid"
)

// MemoryStore implements Store in process memory. Transactions are serialized and work on a
// snapshot that replaces the live state only when the callback succeeds.
type MemoryStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, state: newMemState()}
}

type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[string]T)}
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *table[T]) each(fn func(T)) {
	for _, id := range t.order {
		fn(t.rows[id])
	}
}

func (t table[T]) clone(copyRow func(T) T) table[T] {
	out := table[T]{rows: make(map[string]T, len(t.rows)), order: append([]string(nil), t.order...)}
	for id, v := range t.rows {
		out.rows[id] = copyRow(v)
	}
	return out
}

type memState struct {
	ingredients  table[models.Ingredient]
	history      []models.PriceHistoryEntry
	recipes      table[models.Recipe]
	menus        table[models.Menu]
	plans        table[models.Plan]
	requisitions table[models.Requisition]
	movements    []models.StockMovement
	productions  []models.Production
}

func newMemState() *memState {
	return &memState{
		ingredients:  newTable[models.Ingredient](),
		recipes:      newTable[models.Recipe](),
		menus:        newTable[models.Menu](),
		plans:        newTable[models.Plan](),
		requisitions: newTable[models.Requisition](),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		ingredients:  s.ingredients.clone(cloneIngredient),
		history:      append([]models.PriceHistoryEntry(nil), s.history...),
		recipes:      s.recipes.clone(cloneRecipe),
		menus:        s.menus.clone(cloneMenu),
		plans:        s.plans.clone(func(p models.Plan) models.Plan { return p }),
		requisitions: s.requisitions.clone(cloneRequisition),
		movements:    append([]models.StockMovement(nil), s.movements...),
		productions:  append([]models.Production(nil), s.productions...),
	}
}

func cloneIngredient(i models.Ingredient) models.Ingredient {
	if i.Yield != nil {
		y := *i.Yield
		i.Yield = &y
	}
	i.PriceHistory = nil
	return i
}

func cloneRecipe(r models.Recipe) models.Recipe {
	r.Ingredients = append([]models.RecipeIngredient(nil), r.Ingredients...)
	if r.LockedAt != nil {
		t := *r.LockedAt
		r.LockedAt = &t
	}
	return r
}

func cloneMenu(m models.Menu) models.Menu {
	m.RecipeIDs = append([]string(nil), m.RecipeIDs...)
	return m
}

func cloneRequisition(r models.Requisition) models.Requisition {
	if r.PlanID != nil {
		p := *r.PlanID
		r.PlanID = &p
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	r.LinkedMenuIDs = append([]string(nil), r.LinkedMenuIDs...)
	items := make([]models.RequisitionItem, len(r.Items))
	for i, item := range r.Items {
		if item.IngredientID != nil {
			id := *item.IngredientID
			item.IngredientID = &id
		}
		if item.ActualQuantity != nil {
			q := *item.ActualQuantity
			item.ActualQuantity = &q
		}
		items[i] = item
	}
	r.Items = items
	return r
}

func (m *MemoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func newID() string {
	return uuid.New().String()
}

func missing(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// Transaction runs fn against a snapshot; nested calls join the outer transaction
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &MemoryStore{mu: m.mu, state: m.state.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	*m.state = *tx.state
	return nil
}

// ---------- ingredients ----------

func (m *MemoryStore) GetIngredient(ctx context.Context, id string) (*models.Ingredient, error) {
	defer m.lock()()
	ingredient, ok := m.state.ingredients.rows[id]
	if !ok {
		return nil, missing("ingredient", id)
	}
	out := cloneIngredient(ingredient)
	return &out, nil
}

func (m *MemoryStore) FindIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	defer m.lock()()
	out := make([]models.Ingredient, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if ingredient, ok := m.state.ingredients.rows[id]; ok {
			out = append(out, cloneIngredient(ingredient))
		}
	}
	return out, nil
}

func (m *MemoryStore) findIngredient(match func(models.Ingredient) bool) *models.Ingredient {
	for _, id := range m.state.ingredients.order {
		if ingredient := m.state.ingredients.rows[id]; match(ingredient) {
			out := cloneIngredient(ingredient)
			return &out
		}
	}
	return nil
}

func (m *MemoryStore) FindIngredientByNameAndSupplier(ctx context.Context, name, supplier string) (*models.Ingredient, error) {
	defer m.lock()()
	if found := m.findIngredient(func(i models.Ingredient) bool { return i.Name == name && i.Supplier == supplier }); found != nil {
		return found, nil
	}
	return nil, missing("ingredient", name)
}

func (m *MemoryStore) FindIngredientByName(ctx context.Context, name string) (*models.Ingredient, error) {
	defer m.lock()()
	if found := m.findIngredient(func(i models.Ingredient) bool { return i.Name == name }); found != nil {
		return found, nil
	}
	return nil, missing("ingredient", name)
}

func (m *MemoryStore) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	defer m.lock()()
	out := make([]models.Ingredient, 0, len(m.state.ingredients.rows))
	m.state.ingredients.each(func(i models.Ingredient) { out = append(out, cloneIngredient(i)) })
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (m *MemoryStore) CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	defer m.lock()()
	if ingredient.ID == "" {
		ingredient.ID = newID()
	}
	if _, exists := m.state.ingredients.rows[ingredient.ID]; exists {
		return fmt.Errorf("create ingredient: duplicate id %s", ingredient.ID)
	}
	now := time.Now().UTC()
	ingredient.CreatedAt, ingredient.UpdatedAt = now, now
	m.state.ingredients.put(ingredient.ID, cloneIngredient(*ingredient))
	return nil
}

func (m *MemoryStore) SaveIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if ingredient.ID == "" {
		return m.CreateIngredient(ctx, ingredient)
	}
	defer m.lock()()
	ingredient.UpdatedAt = time.Now().UTC()
	if ingredient.CreatedAt.IsZero() {
		ingredient.CreatedAt = ingredient.UpdatedAt
	}
	m.state.ingredients.put(ingredient.ID, cloneIngredient(*ingredient))
	return nil
}

func (m *MemoryStore) IncrementIngredientStock(ctx context.Context, id string, delta float64) error {
	defer m.lock()()
	ingredient, ok := m.state.ingredients.rows[id]
	if !ok {
		return missing("ingredient", id)
	}
	ingredient.Stock += delta
	m.state.ingredients.rows[id] = ingredient
	return nil
}

func (m *MemoryStore) AppendPriceHistory(ctx context.Context, entry *models.PriceHistoryEntry) error {
	defer m.lock()()
	if entry.ID == "" {
		entry.ID = newID()
	}
	m.state.history = append(m.state.history, *entry)
	return nil
}

func (m *MemoryStore) ListPriceHistory(ctx context.Context, ingredientID string) ([]models.PriceHistoryEntry, error) {
	defer m.lock()()
	var out []models.PriceHistoryEntry
	for _, entry := range m.state.history {
		if entry.IngredientID == ingredientID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// ---------- recipes ----------

func (m *MemoryStore) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	defer m.lock()()
	recipe, ok := m.state.recipes.rows[id]
	if !ok {
		return nil, missing("recipe", id)
	}
	out := cloneRecipe(recipe)
	return &out, nil
}

func (m *MemoryStore) FindRecipesByIDs(ctx context.Context, ids []string) ([]models.Recipe, error) {
	defer m.lock()()
	out := make([]models.Recipe, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if recipe, ok := m.state.recipes.rows[id]; ok {
			out = append(out, cloneRecipe(recipe))
		}
	}
	return out, nil
}

func (m *MemoryStore) FindRecipeIDsByIngredient(ctx context.Context, ingredientID, afterID string, limit int) ([]string, error) {
	defer m.lock()()
	var ids []string
	for id, recipe := range m.state.recipes.rows {
		if id <= afterID {
			continue
		}
		for _, line := range recipe.Ingredients {
			if line.IngredientID == ingredientID {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) SaveRecipe(ctx context.Context, recipe *models.Recipe) error {
	defer m.lock()()
	now := time.Now().UTC()
	if recipe.ID == "" {
		recipe.ID = newID()
		recipe.CreatedAt = now
	}
	recipe.UpdatedAt = now
	for i := range recipe.Ingredients {
		line := &recipe.Ingredients[i]
		line.ID = newID()
		line.RecipeID = recipe.ID
		line.Position = i
	}
	m.state.recipes.put(recipe.ID, cloneRecipe(*recipe))
	return nil
}

// ---------- menus and plans ----------

func (m *MemoryStore) GetMenu(ctx context.Context, id string) (*models.Menu, error) {
	defer m.lock()()
	menu, ok := m.state.menus.rows[id]
	if !ok {
		return nil, missing("menu", id)
	}
	out := cloneMenu(menu)
	return &out, nil
}

func (m *MemoryStore) FindMenus(ctx context.Context, filter MenuFilter) ([]models.Menu, error) {
	defer m.lock()()
	wanted := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		wanted[id] = true
	}
	var out []models.Menu
	m.state.menus.each(func(menu models.Menu) {
		if len(wanted) > 0 && !wanted[menu.ID] {
			return
		}
		if (filter.Date != "" && menu.Date != filter.Date) ||
			(filter.Base != "" && menu.Base != filter.Base) ||
			(filter.MealType != "" && menu.MealType != filter.MealType) {
			return
		}
		out = append(out, cloneMenu(menu))
	})
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Date != out[b].Date {
			return out[a].Date < out[b].Date
		}
		if out[a].Base != out[b].Base {
			return out[a].Base < out[b].Base
		}
		return out[a].MealType < out[b].MealType
	})
	return out, nil
}

func (m *MemoryStore) SaveMenu(ctx context.Context, menu *models.Menu) error {
	defer m.lock()()
	if menu.ID == "" {
		menu.ID = newID()
		menu.CreatedAt = time.Now().UTC()
	}
	menu.UpdatedAt = time.Now().UTC()
	m.state.menus.put(menu.ID, cloneMenu(*menu))
	return nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	defer m.lock()()
	plan, ok := m.state.plans.rows[id]
	if !ok {
		return nil, missing("plan", id)
	}
	return &plan, nil
}

func (m *MemoryStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	defer m.lock()()
	if plan.ID == "" {
		plan.ID = newID()
		plan.CreatedAt = time.Now().UTC()
	}
	plan.UpdatedAt = time.Now().UTC()
	m.state.plans.put(plan.ID, *plan)
	return nil
}

func (m *MemoryStore) DeletePlan(ctx context.Context, id string) error {
	defer m.lock()()
	if !m.state.plans.remove(id) {
		return missing("plan", id)
	}
	return nil
}

// ---------- requisitions ----------

func (m *MemoryStore) GetRequisition(ctx context.Context, id string) (*models.Requisition, error) {
	defer m.lock()()
	req, ok := m.state.requisitions.rows[id]
	if !ok {
		return nil, missing("requisition", id)
	}
	out := cloneRequisition(req)
	return &out, nil
}

// LockRequisition is GetRequisition: transactions already run one at a time
func (m *MemoryStore) LockRequisition(ctx context.Context, id string) (*models.Requisition, error) {
	return m.GetRequisition(ctx, id)
}

func matchesRequisition(req models.Requisition, filter RequisitionFilter) bool {
	if filter.Status != "" && req.Status != filter.Status {
		return false
	}
	if filter.PlanID != "" && (req.PlanID == nil || *req.PlanID != filter.PlanID) {
		return false
	}
	if filter.Base != "" && req.Base != filter.Base {
		return false
	}
	if filter.MealType != "" && req.MealType != filter.MealType {
		return false
	}
	if filter.Date != "" {
		if req.Date != filter.Date {
			return false
		}
	} else {
		if filter.FromDate != "" && req.Date < filter.FromDate {
			return false
		}
		if filter.ToDate != "" && req.Date > filter.ToDate {
			return false
		}
	}
	if filter.Supplier != "" {
		for _, item := range req.Items {
			if item.Supplier == filter.Supplier {
				return true
			}
		}
		return false
	}
	return true
}

func (m *MemoryStore) ListRequisitions(ctx context.Context, filter RequisitionFilter, offset, limit int) ([]models.Requisition, int64, error) {
	defer m.lock()()
	var matched []models.Requisition
	m.state.requisitions.each(func(req models.Requisition) {
		if matchesRequisition(req, filter) {
			matched = append(matched, req)
		}
	})
	// newest first within a date, like created_at DESC
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(a, b int) bool { return matched[a].Date > matched[b].Date })

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]models.Requisition, 0, end-offset)
	for _, req := range matched[offset:end] {
		out = append(out, cloneRequisition(req))
	}
	return out, total, nil
}

func (m *MemoryStore) FindMenuRequisition(ctx context.Context, date, base, mealType string) (*models.Requisition, error) {
	defer m.lock()()
	for _, id := range m.state.requisitions.order {
		req := m.state.requisitions.rows[id]
		if req.Origin == models.RequisitionOriginMenu && req.Date == date && req.Base == base && req.MealType == mealType {
			out := cloneRequisition(req)
			return &out, nil
		}
	}
	return nil, missing("requisition", date+"/"+base+"/"+mealType)
}

func (m *MemoryStore) assignItemIDs(req *models.Requisition, fresh bool) {
	for i := range req.Items {
		item := &req.Items[i]
		if fresh || item.ID == "" {
			item.ID = newID()
		}
		item.RequisitionID = req.ID
		if item.Status == "" {
			item.Status = models.RequisitionStatusPending
		}
	}
}

func (m *MemoryStore) CreateRequisition(ctx context.Context, req *models.Requisition) error {
	defer m.lock()()
	if req.ID == "" {
		req.ID = newID()
	}
	if req.Origin == models.RequisitionOriginMenu {
		for _, existing := range m.state.requisitions.rows {
			if existing.Origin == models.RequisitionOriginMenu && existing.Date == req.Date &&
				existing.Base == req.Base && existing.MealType == req.MealType {
				return fmt.Errorf("create requisition: duplicate key (%s, %s, %s)", req.Date, req.Base, req.MealType)
			}
		}
	}
	if req.Status == "" {
		req.Status = models.RequisitionStatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now
	for i := range req.Items {
		req.Items[i].Position = i
	}
	m.assignItemIDs(req, false)
	m.state.requisitions.put(req.ID, cloneRequisition(*req))
	return nil
}

func (m *MemoryStore) SaveRequisition(ctx context.Context, req *models.Requisition) error {
	defer m.lock()()
	if _, ok := m.state.requisitions.rows[req.ID]; !ok {
		return missing("requisition", req.ID)
	}
	req.UpdatedAt = time.Now().UTC()
	m.assignItemIDs(req, false)
	m.state.requisitions.put(req.ID, cloneRequisition(*req))
	return nil
}

func (m *MemoryStore) ReplaceRequisition(ctx context.Context, req *models.Requisition) error {
	defer m.lock()()
	if _, ok := m.state.requisitions.rows[req.ID]; !ok {
		return missing("requisition", req.ID)
	}
	req.UpdatedAt = time.Now().UTC()
	for i := range req.Items {
		req.Items[i].Position = i
	}
	m.assignItemIDs(req, true)
	m.state.requisitions.put(req.ID, cloneRequisition(*req))
	return nil
}

func (m *MemoryStore) DeleteRequisition(ctx context.Context, id string) error {
	defer m.lock()()
	if !m.state.requisitions.remove(id) {
		return missing("requisition", id)
	}
	return nil
}

func (m *MemoryStore) DeleteRequisitionsByPlan(ctx context.Context, planID string) (int64, error) {
	defer m.lock()()
	var ids []string
	m.state.requisitions.each(func(req models.Requisition) {
		if req.PlanID != nil && *req.PlanID == planID {
			ids = append(ids, req.ID)
		}
	})
	for _, id := range ids {
		m.state.requisitions.remove(id)
	}
	return int64(len(ids)), nil
}

func (m *MemoryStore) ApproveRequisitions(ctx context.Context, filter RequisitionFilter) (int64, int64, error) {
	defer m.lock()()
	var headers, items int64
	for _, id := range m.state.requisitions.order {
		req := m.state.requisitions.rows[id]
		if req.Status == models.RequisitionStatusCompleted || !matchesRequisition(req, filter) {
			continue
		}
		req = cloneRequisition(req)
		req.Status = models.RequisitionStatusApproved
		for i := range req.Items {
			req.Items[i].Status = models.RequisitionStatusApproved
		}
		req.UpdatedAt = time.Now().UTC()
		m.state.requisitions.rows[id] = req
		headers++
		items += int64(len(req.Items))
	}
	return headers, items, nil
}

func (m *MemoryStore) CountRequisitionsByStatus(ctx context.Context) (map[models.RequisitionStatus]int64, error) {
	defer m.lock()()
	counts := make(map[models.RequisitionStatus]int64)
	m.state.requisitions.each(func(req models.Requisition) { counts[req.Status]++ })
	return counts, nil
}

func (m *MemoryStore) ListRequisitionSuppliers(ctx context.Context) ([]string, error) {
	defer m.lock()()
	seen := make(map[string]bool)
	var suppliers []string
	m.state.requisitions.each(func(req models.Requisition) {
		for _, item := range req.Items {
			if item.Supplier != "" && !seen[item.Supplier] {
				seen[item.Supplier] = true
				suppliers = append(suppliers, item.Supplier)
			}
		}
	})
	sort.Strings(suppliers)
	return suppliers, nil
}

// ---------- ledger ----------

func (m *MemoryStore) CountMovementsBySource(ctx context.Context, sourceType models.MovementSource, sourceID string) (int64, error) {
	defer m.lock()()
	var count int64
	for _, movement := range m.state.movements {
		if movement.SourceType == sourceType && movement.SourceID == sourceID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	defer m.lock()()
	if movement.ID == "" {
		movement.ID = newID()
	}
	movement.CreatedAt = time.Now().UTC()
	m.state.movements = append(m.state.movements, *movement)
	return nil
}

func (m *MemoryStore) ListMovements(ctx context.Context, filter MovementFilter) ([]models.StockMovement, error) {
	defer m.lock()()
	var out []models.StockMovement
	for i := len(m.state.movements) - 1; i >= 0; i-- {
		mv := m.state.movements[i]
		if (filter.IngredientID != "" && mv.IngredientID != filter.IngredientID) ||
			(filter.Base != "" && mv.Base != filter.Base) ||
			(filter.Direction != "" && mv.Direction != filter.Direction) ||
			(filter.SourceType != "" && mv.SourceType != filter.SourceType) ||
			(filter.SourceID != "" && mv.SourceID != filter.SourceID) ||
			(filter.FromDate != "" && mv.Date < filter.FromDate) ||
			(filter.ToDate != "" && mv.Date > filter.ToDate) {
			continue
		}
		out = append(out, mv)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateProduction(ctx context.Context, production *models.Production) error {
	defer m.lock()()
	if production.ID == "" {
		production.ID = newID()
	}
	production.CreatedAt = time.Now().UTC()
	m.state.productions = append(m.state.productions, *production)
	return nil
}

func (m *MemoryStore) ListProductions(ctx context.Context, filter ProductionFilter) ([]models.Production, error) {
	defer m.lock()()
	var out []models.Production
	for i := len(m.state.productions) - 1; i >= 0; i-- {
		p := m.state.productions[i]
		if (filter.RecipeID != "" && p.RecipeID != filter.RecipeID) ||
			(filter.Base != "" && p.Base != filter.Base) ||
			(filter.Date != "" && p.Date != filter.Date) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GormStore)(nil)
)
