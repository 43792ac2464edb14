package services

import (
	"context"
	"fmt"

	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/sirupsen/logrus"
)

// PlanService manages menus and daily plans. Saving a plan regenerates its requisitions
// in the same transaction.
type PlanService struct {
	store  repository.Store
	demand *DemandService
	log    *logrus.Logger
}

// NewPlanService creates a new PlanService
func NewPlanService(store repository.Store, demand *DemandService, log *logrus.Logger) *PlanService {
	return &PlanService{store: store, demand: demand, log: log}
}

// PlanResult is a saved plan with the requisitions generated for it
type PlanResult struct {
	Plan         *models.Plan         `json:"plan"`
	Requisitions []models.Requisition `json:"requisitions"`
}

// SaveMenu creates or updates a menu
func (s *PlanService) SaveMenu(ctx context.Context, menu *models.Menu) (*models.Menu, error) {
	if err := validateStruct(menu); err != nil {
		return nil, err
	}
	if menu.ID != "" {
		existing, err := s.store.GetMenu(ctx, menu.ID)
		if err != nil {
			return nil, err
		}
		menu.CreatedAt = existing.CreatedAt
	}
	if err := s.store.SaveMenu(ctx, menu); err != nil {
		return nil, fmt.Errorf("save menu: %w", err)
	}
	return menu, nil
}

// ListMenus returns menus matching the filter
func (s *PlanService) ListMenus(ctx context.Context, filter repository.MenuFilter) ([]models.Menu, error) {
	return s.store.FindMenus(ctx, filter)
}

// GetPlan returns a plan by id
func (s *PlanService) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return s.store.GetPlan(ctx, id)
}

// SavePlan creates or updates a plan and replaces its generated requisitions
func (s *PlanService) SavePlan(ctx context.Context, plan *models.Plan) (*PlanResult, error) {
	if err := validateStruct(plan); err != nil {
		return nil, err
	}

	result := &PlanResult{}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if plan.ID != "" {
			existing, err := tx.GetPlan(ctx, plan.ID)
			if err != nil {
				return err
			}
			plan.CreatedAt = existing.CreatedAt
		}
		if err := tx.SavePlan(ctx, plan); err != nil {
			return err
		}
		reqs, err := s.demand.regeneratePlan(ctx, tx, plan)
		if err != nil {
			return err
		}
		result.Requisitions = reqs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	result.Plan = plan

	s.demand.published(ctx, result.Requisitions, plan.ID)
	return result, nil
}

// DeletePlan removes a plan together with the requisitions generated for it
func (s *PlanService) DeletePlan(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if removed, err = tx.DeleteRequisitionsByPlan(ctx, id); err != nil {
			return err
		}
		return tx.DeletePlan(ctx, id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete plan: %w", err)
	}
	s.log.WithFields(logrus.Fields{"plan_id": id, "requisitions": removed}).Info("🗑️ plan deleted")
	return removed, nil
}
