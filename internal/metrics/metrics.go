package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names
const (
	LabelMethod  = "method"
	LabelPath    = "path"
	LabelStatus  = "status"
	LabelType    = "type"
	LabelOutcome = "outcome"
	LabelAction  = "action"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{LabelMethod, LabelPath},
	)
)

// Event metrics
var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published",
		},
		[]string{LabelType},
	)

	EventHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_errors_total",
			Help: "Total number of event handler errors",
		},
		[]string{LabelType},
	)
)

// Kitchen core metrics
var (
	RequisitionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requisition_transitions_total",
			Help: "Requisition state transitions by action",
		},
		[]string{LabelAction},
	)

	LedgerPostings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Ledger posting attempts by outcome (posted, already_posted, failed)",
		},
		[]string{LabelOutcome},
	)

	MovementsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_movements_created_total",
			Help: "Stock movement rows written, by direction",
		},
		[]string{LabelType},
	)

	IngredientsMaterialized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingredients_materialized_total",
			Help: "Ingredients created on the fly while posting requisitions",
		},
	)

	RecipeRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_cost_recomputes_total",
			Help: "Recipe cost recomputations by outcome",
		},
		[]string{LabelOutcome},
	)
)
