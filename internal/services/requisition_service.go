package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"kitchenops/server/internal/config"
	"kitchenops/server/internal/events"
	"kitchenops/server/internal/metrics"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// CompletionOutcome is the result variant of a Complete call
type CompletionOutcome string

const (
	CompletionPartial       CompletionOutcome = "partial"
	CompletionCompleted     CompletionOutcome = "completed"
	CompletionAlreadyPosted CompletionOutcome = "already_posted"
)

// CompleteRequest carries received quantities keyed by requisition item id.
// UnitPrices and LineTotals are optional per item.
type CompleteRequest struct {
	ActualQuantities map[string]float64 `json:"actual_quantities"`
	UnitPrices       map[string]float64 `json:"unit_prices"`
	LineTotals       map[string]float64 `json:"line_totals"`
	CompletedBy      string             `json:"completed_by"`
	Notes            string             `json:"notes"`
}

// CompletionResult is returned by Complete
type CompletionResult struct {
	Requisition *models.Requisition `json:"requisition"`
	Outcome     CompletionOutcome   `json:"outcome"`
	Posting     *PostingResult      `json:"posting,omitempty"`
}

// RequisitionPage is one page of requisition headers
type RequisitionPage struct {
	Data  []models.Requisition `json:"data"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Pages int                  `json:"pages"`
}

// RequisitionStats summarizes requisitions by status
type RequisitionStats struct {
	Pending   int64    `json:"pending"`
	Approved  int64    `json:"approved"`
	Rejected  int64    `json:"rejected"`
	Completed int64    `json:"completed"`
	Total     int64    `json:"total"`
	Suppliers []string `json:"suppliers"`
}

// BulkApproveResult reports what a bulk approval touched
type BulkApproveResult struct {
	Headers int64 `json:"headers"`
	Items   int64 `json:"items"`
}

// RequisitionService owns requisition state transitions
type RequisitionService struct {
	store   repository.Store
	poster  *LedgerPoster
	bus     events.Bus
	log     *logrus.Logger
	locker  *redislock.Client
	lockTTL time.Duration
	now     func() time.Time
}

// NewRequisitionService creates a new RequisitionService
func NewRequisitionService(store repository.Store, poster *LedgerPoster, bus events.Bus, log *logrus.Logger) *RequisitionService {
	return &RequisitionService{
		store:   store,
		poster:  poster,
		bus:     bus,
		log:     log,
		lockTTL: 30 * time.Second,
		now:     time.Now,
	}
}

// SetLocker sets the distributed lock used around Complete
func (s *RequisitionService) SetLocker(locker *redislock.Client, ttl time.Duration) {
	s.locker = locker
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// GetRequisition returns a requisition with its items
func (s *RequisitionService) GetRequisition(ctx context.Context, id string) (*models.Requisition, error) {
	return s.store.GetRequisition(ctx, id)
}

// ListRequisitions returns one page of headers matching filter, newest first
func (s *RequisitionService) ListRequisitions(ctx context.Context, filter repository.RequisitionFilter, page, limit int) (*RequisitionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	list, total, err := s.store.ListRequisitions(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list requisitions: %w", err)
	}
	if list == nil {
		list = []models.Requisition{}
	}
	return &RequisitionPage{
		Data:  list,
		Total: total,
		Page:  page,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// Stats counts requisitions by status and lists the suppliers seen on their items
func (s *RequisitionService) Stats(ctx context.Context) (*RequisitionStats, error) {
	counts, err := s.store.CountRequisitionsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	suppliers, err := s.store.ListRequisitionSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	stats := &RequisitionStats{
		Pending:   counts[models.RequisitionStatusPending],
		Approved:  counts[models.RequisitionStatusApproved],
		Rejected:  counts[models.RequisitionStatusRejected],
		Completed: counts[models.RequisitionStatusCompleted],
		Suppliers: suppliers,
	}
	stats.Total = stats.Pending + stats.Approved + stats.Rejected + stats.Completed
	if stats.Suppliers == nil {
		stats.Suppliers = []string{}
	}
	return stats, nil
}

// CreateRequisition stores a manually entered requisition. Lines must be canonical.
func (s *RequisitionService) CreateRequisition(ctx context.Context, input *models.Requisition) (*models.Requisition, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, invalid("requisition needs at least one item")
	}
	req := &models.Requisition{
		Date:        input.Date,
		Base:        input.Base,
		MealType:    input.MealType,
		MenuName:    input.MenuName,
		Origin:      models.RequisitionOriginManual,
		Status:      models.RequisitionStatusPending,
		RequestedBy: orDefault(input.RequestedBy, "Manual"),
		Notes:       input.Notes,
	}
	for i, line := range input.Items {
		if strings.TrimSpace(line.Item) == "" && (line.IngredientID == nil || *line.IngredientID == "") {
			return nil, invalid("item %d needs a name or an ingredient id", i)
		}
		req.Items = append(req.Items, models.RequisitionItem{
			Position:     i,
			IngredientID: line.IngredientID,
			Item:         strings.TrimSpace(line.Item),
			Unit:         orDefault(line.Unit, DefaultRequisitionUnit),
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineTotal:    line.LineTotal,
			Supplier:     orDefault(line.Supplier, DefaultSupplier),
			Status:       models.RequisitionStatusPending,
		})
	}
	if err := s.store.CreateRequisition(ctx, req); err != nil {
		return nil, fmt.Errorf("create requisition: %w", err)
	}
	s.log.WithFields(logrus.Fields{"requisition_id": req.ID, "items": len(req.Items)}).Info("✅ manual requisition created")
	s.notify(ctx, events.RequisitionsGenerated, req, req.RequestedBy)
	return req, nil
}

// DeleteRequisition removes a requisition and its items
func (s *RequisitionService) DeleteRequisition(ctx context.Context, id string) error {
	if err := s.store.DeleteRequisition(ctx, id); err != nil {
		return err
	}
	s.log.WithField("requisition_id", id).Info("🗑️ requisition deleted")
	return nil
}

// Approve sets the header and every item to approved. Completed requisitions cannot be approved.
func (s *RequisitionService) Approve(ctx context.Context, id string, actor string) (*models.Requisition, error) {
	req, err := s.setStatus(ctx, id, models.RequisitionStatusApproved, "")
	if err != nil {
		return nil, err
	}
	metrics.RequisitionTransitions.WithLabelValues("approve").Inc()
	s.log.WithFields(logrus.Fields{"requisition_id": id, "actor": actor}).Info("✅ requisition approved")
	s.notify(ctx, events.RequisitionApproved, req, actor)
	return req, nil
}

// Reject moves a pending or approved requisition to rejected and records the reason
func (s *RequisitionService) Reject(ctx context.Context, id, reason, actor string) (*models.Requisition, error) {
	req, err := s.setStatus(ctx, id, models.RequisitionStatusRejected, reason)
	if err != nil {
		return nil, err
	}
	metrics.RequisitionTransitions.WithLabelValues("reject").Inc()
	s.log.WithFields(logrus.Fields{"requisition_id": id, "actor": actor, "reason": reason}).Info("⛔ requisition rejected")
	s.notify(ctx, events.RequisitionRejected, req, actor)
	return req, nil
}

func (s *RequisitionService) setStatus(ctx context.Context, id string, status models.RequisitionStatus, note string) (*models.Requisition, error) {
	var req *models.Requisition
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		req, err = tx.LockRequisition(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == models.RequisitionStatusCompleted {
			return fmt.Errorf("%w: requisition %s is completed", ErrInvalidTransition, id)
		}
		if status == models.RequisitionStatusRejected && req.Status == models.RequisitionStatusRejected {
			return fmt.Errorf("%w: requisition %s is already rejected", ErrInvalidTransition, id)
		}
		req.Status = status
		for i := range req.Items {
			req.Items[i].Status = status
		}
		if note != "" {
			req.Notes = note
		}
		return tx.SaveRequisition(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// BulkApprove approves every non-completed requisition matching filter and reports the counts touched
func (s *RequisitionService) BulkApprove(ctx context.Context, filter repository.RequisitionFilter) (*BulkApproveResult, error) {
	var result BulkApproveResult
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		result.Headers, result.Items, err = tx.ApproveRequisitions(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bulk approve: %w", err)
	}
	metrics.RequisitionTransitions.WithLabelValues("bulk_approve").Add(float64(result.Headers))
	s.log.WithFields(logrus.Fields{"headers": result.Headers, "items": result.Items}).Info("✅ requisitions bulk approved")
	if err := s.bus.Publish(ctx, events.New(events.RequisitionApproved, events.BulkApprovedPayload{
		Headers: result.Headers,
		Items:   result.Items,
	})); err != nil {
		s.log.WithError(err).Warn("⚠️ bulk approval subscribers reported errors")
	}
	return &result, nil
}

// Complete records received quantities. When every item is completed afterwards the header is
// completed and its stock movements are posted in the same transaction; otherwise the header
// stays approved. Completing an already completed requisition posts nothing and reports
// CompletionAlreadyPosted.
func (s *RequisitionService) Complete(ctx context.Context, id string, input CompleteRequest) (*CompletionResult, error) {
	if len(input.ActualQuantities) == 0 {
		return nil, invalid("actual quantities are required")
	}

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "lock:requisition:"+id, s.lockTTL, nil)
		switch {
		case errors.Is(err, redislock.ErrNotObtained):
			s.log.WithField("requisition_id", id).Warn("⚠️ completion lock busy, relying on row lock")
		case err != nil:
			s.log.WithError(err).Warn("⚠️ completion lock unavailable, relying on row lock")
		default:
			defer func() {
				if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
					s.log.WithError(err).Warn("⚠️ failed to release completion lock")
				}
			}()
		}
	}

	result := &CompletionResult{}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		req, err := tx.LockRequisition(ctx, id)
		if err != nil {
			return err
		}
		result.Requisition = req

		switch req.Status {
		case models.RequisitionStatusCompleted:
			result.Outcome = CompletionAlreadyPosted
			return nil
		case models.RequisitionStatusRejected:
			return fmt.Errorf("%w: requisition %s is rejected", ErrInvalidTransition, id)
		}

		known := make(map[string]bool, len(req.Items))
		for _, item := range req.Items {
			known[item.ID] = true
		}
		for key := range input.ActualQuantities {
			if !known[key] {
				return invalid("item %s does not belong to requisition %s", key, id)
			}
		}

		for i := range req.Items {
			item := &req.Items[i]
			actual, ok := input.ActualQuantities[item.ID]
			if !ok {
				continue
			}
			value := actual
			item.ActualQuantity = &value
			if price, ok := input.UnitPrices[item.ID]; ok {
				item.UnitPrice = price
			}
			if total, ok := input.LineTotals[item.ID]; ok {
				item.LineTotal = total
			}
			item.Status = models.RequisitionStatusCompleted
		}

		if !req.AllItemsCompleted() {
			req.Status = models.RequisitionStatusApproved
			result.Outcome = CompletionPartial
			return tx.SaveRequisition(ctx, req)
		}

		now := s.now()
		req.Status = models.RequisitionStatusCompleted
		req.CompletedAt = &now
		req.CompletedBy = input.CompletedBy
		if input.Notes != "" {
			req.Notes = input.Notes
		}

		posting, err := s.poster.Post(ctx, tx, req)
		if err != nil {
			return err
		}
		result.Posting = posting
		result.Outcome = CompletionCompleted
		if posting.Outcome == OutcomeAlreadyPosted {
			result.Outcome = CompletionAlreadyPosted
		}
		return tx.SaveRequisition(ctx, req)
	})
	if err != nil {
		metrics.LedgerPostings.WithLabelValues("failed").Inc()
		config.LogError(s.log, "requisitions", "Complete", "completion rolled back", map[string]interface{}{"requisition_id": id}, err)
		return nil, err
	}

	s.completed(ctx, result, input.CompletedBy)
	return result, nil
}

func (s *RequisitionService) completed(ctx context.Context, result *CompletionResult, actor string) {
	req := result.Requisition
	fields := logrus.Fields{"requisition_id": req.ID, "outcome": result.Outcome}

	switch result.Outcome {
	case CompletionAlreadyPosted:
		metrics.LedgerPostings.WithLabelValues(string(OutcomeAlreadyPosted)).Inc()
		s.log.WithFields(fields).Info("ℹ️ requisition already posted, nothing changed")
		return
	case CompletionPartial:
		metrics.RequisitionTransitions.WithLabelValues("complete_partial").Inc()
		s.log.WithFields(fields).Info("📦 requisition partially received")
		s.notify(ctx, events.RequisitionApproved, req, actor)
		return
	}

	metrics.RequisitionTransitions.WithLabelValues("complete").Inc()
	metrics.LedgerPostings.WithLabelValues(string(OutcomePosted)).Inc()
	metrics.MovementsCreated.WithLabelValues(string(models.DirectionInbound)).Add(float64(len(result.Posting.Movements)))
	metrics.IngredientsMaterialized.Add(float64(len(result.Posting.Materialized)))
	fields["movements"] = len(result.Posting.Movements)
	s.log.WithFields(fields).Info("✅ requisition completed and posted")

	s.notify(ctx, events.RequisitionCompleted, req, actor)

	ingredientIDs := make([]string, 0, len(result.Posting.Movements))
	for _, movement := range result.Posting.Movements {
		ingredientIDs = append(ingredientIDs, movement.IngredientID)
	}
	if err := s.bus.Publish(ctx, events.New(events.LedgerPosted, events.LedgerPostedPayload{
		SourceType:    string(models.SourceRequisition),
		SourceID:      req.ID,
		Movements:     len(result.Posting.Movements),
		IngredientIDs: ingredientIDs,
	})); err != nil {
		s.log.WithError(err).Warn("⚠️ ledger subscribers reported errors")
	}
}

func (s *RequisitionService) notify(ctx context.Context, eventType events.Type, req *models.Requisition, actor string) {
	if err := s.bus.Publish(ctx, events.New(eventType, events.RequisitionPayload{
		RequisitionID: req.ID,
		Status:        string(req.Status),
		Date:          req.Date,
		Base:          req.Base,
		Actor:         actor,
	})); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("⚠️ requisition subscribers reported errors")
	}
}
