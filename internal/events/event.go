package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kitchenops/server/internal/metrics"
)

// SchemaVersion is stamped on every published event
const SchemaVersion = "1.0"

// Type names an event
type Type string

const (
	IngredientPriceChanged Type = "ingredient.price_changed"
	RecipeCostUpdated      Type = "recipe.cost_updated"
	RequisitionsGenerated  Type = "requisition.generated"
	RequisitionApproved    Type = "requisition.approved"
	RequisitionRejected    Type = "requisition.rejected"
	RequisitionCompleted   Type = "requisition.completed"
	LedgerPosted           Type = "ledger.posted"
	ProductionRecorded     Type = "production.recorded"
)

// Event is the envelope carried by the bus
type Event struct {
	Version    string    `json:"version"`
	Type       Type      `json:"type"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New builds an event with the current schema version and timestamp
func New(eventType Type, payload any) Event {
	return Event{Version: SchemaVersion, Type: eventType, Payload: payload, OccurredAt: time.Now().UTC()}
}

// Handler reacts to one event
type Handler func(ctx context.Context, event Event) error

// Bus publishes events to subscribers
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType Type, handler Handler)
}

// MemoryBus delivers events synchronously to in-process subscribers
type MemoryBus struct {
	handlers map[Type][]Handler
	mu       sync.RWMutex
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[Type][]Handler)}
}

// Publish runs every handler for the event type. All handlers run even if some fail;
// the failures are returned together.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			metrics.EventHandlerErrors.WithLabelValues(string(event.Type)).Inc()
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d handler(s) failed for %s: %v", len(errs), event.Type, errs)
	}
	return nil
}

// Subscribe registers a handler for an event type
func (b *MemoryBus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// AllTypes lists every event type the kitchen core emits
func AllTypes() []Type {
	return []Type{
		IngredientPriceChanged, RecipeCostUpdated, RequisitionsGenerated, RequisitionApproved,
		RequisitionRejected, RequisitionCompleted, LedgerPosted, ProductionRecorded,
	}
}
