package events

// IngredientPriceChangedPayload is published after an ingredient's pack price is saved
type IngredientPriceChangedPayload struct {
	IngredientID  string  `json:"ingredient_id"`
	Name          string  `json:"name"`
	OldPricePerKg float64 `json:"old_price_per_kg"`
	NewPricePerKg float64 `json:"new_price_per_kg"`
}

// RecipeCostUpdatedPayload is published when the price cascade finishes for an ingredient
type RecipeCostUpdatedPayload struct {
	IngredientID string   `json:"ingredient_id"`
	RecipeIDs    []string `json:"recipe_ids"`
	Failed       int      `json:"failed"`
}

// RequisitionPayload describes a requisition state change
type RequisitionPayload struct {
	RequisitionID string `json:"requisition_id"`
	Status        string `json:"status"`
	Date          string `json:"date"`
	Base          string `json:"base"`
	Actor         string `json:"actor,omitempty"`
}

// RequisitionsGeneratedPayload summarizes a demand generation run
type RequisitionsGeneratedPayload struct {
	RequisitionIDs []string `json:"requisition_ids"`
	PlanID         string   `json:"plan_id,omitempty"`
}

// BulkApprovedPayload summarizes a bulk approval
type BulkApprovedPayload struct {
	Headers int64 `json:"headers"`
	Items   int64 `json:"items"`
}

// LedgerPostedPayload describes one posted movement batch
type LedgerPostedPayload struct {
	SourceType    string   `json:"source_type"`
	SourceID      string   `json:"source_id"`
	Movements     int      `json:"movements"`
	IngredientIDs []string `json:"ingredient_ids"`
}

// ProductionRecordedPayload describes a production batch
type ProductionRecordedPayload struct {
	ProductionID string  `json:"production_id"`
	RecipeID     string  `json:"recipe_id"`
	Quantity     float64 `json:"quantity"`
	Cost         float64 `json:"cost"`
}
