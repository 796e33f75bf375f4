// Booking HTTP handlers.
//
// This file declares the service contracts the handlers depend on, the
// Handlers type that groups every endpoint, and the helpers they share.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/gateway"
	"github.com/tbourn/go-booking-backend/internal/http/middleware"
	"github.com/tbourn/go-booking-backend/internal/services"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
	"github.com/tbourn/go-booking-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// LifecycleService turns extraction records into outcomes.
type LifecycleService interface {
	// HandleTurn merges one cleaned record into the customer's draft and
	// advances it as far as it can go.
	HandleTurn(ctx context.Context, customerID string, rec extract.Record) (services.Outcome, error)
	// Review reports where the draft stands without changing it.
	Review(ctx context.Context, customerID string) (services.Outcome, error)
}

// DraftService exposes the customer's draft.
type DraftService interface {
	Get(ctx context.Context, customerID string) (*domain.Draft, error)
	Delete(ctx context.Context, customerID string) (bool, error)
}

// StaleService collects abandoned drafts.
type StaleService interface {
	CleanupIfStale(ctx context.Context, customerID string) (bool, error)
}

// AvailabilityService answers slot queries.
type AvailabilityService interface {
	Check(ctx context.Context, start time.Time, serviceName string) (services.Availability, error)
	Lookahead(ctx context.Context, from time.Time, serviceName string) ([]services.DaySlots, error)
}

// PaymentService reconciles deposits.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PaymentService interface {
	InitiateForDraft(ctx context.Context, d *domain.Draft, phoneRaw string) (*services.InitiateResult, error)
	Resend(ctx context.Context, customerID, newPhone string) (*services.InitiateResult, error)
	VerifyByReceipt(ctx context.Context, customerID, text string) (services.Outcome, error)
	Callback(ctx context.Context, cb gateway.Callback) (services.Outcome, error)
	Status(ctx context.Context, customerID string) (*domain.Payment, error)
}

// IntentService classifies and runs free-text payment requests.
type IntentService interface {
	Handle(ctx context.Context, customerID, text string) (services.Intent, services.Outcome, error)
}

// BookingService manages bookings.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type BookingService interface {
	CreateProvisional(ctx context.Context, customerID string, in services.BookingInput) (*domain.Booking, error)
	Confirm(ctx context.Context, customerID, id string) (*domain.Booking, error)
	Cancel(ctx context.Context, customerID, id string) (*domain.Booking, error)
	Reschedule(ctx context.Context, customerID, id string, start time.Time) (*domain.Booking, error)
	ListPage(ctx context.Context, customerID string, page, pageSize int) ([]domain.Booking, int64, error)
}

//
// Handler wiring
//

// Deps lists what the handlers need. DB is optional and only backs ETags and
// idempotent replays.
type Deps struct {
	Lifecycle    LifecycleService
	Drafts       DraftService
	Stale        StaleService
	Availability AvailabilityService
	Payments     PaymentService
	Intents      IntentService
	Bookings     BookingService

	Validator      *extract.Validator
	Normalizer     *timeparse.Normalizer
	Clock          clock.Clock
	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// Handlers groups HTTP endpoints for turns, drafts, availability, payments
// and bookings. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	Deps
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	if d.Validator == nil {
		d.Validator = extract.NewValidator()
	}
	if d.Normalizer == nil {
		d.Normalizer = timeparse.New(time.UTC)
	}
	d.Clock = clock.OrReal(d.Clock)
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{Deps: d}
}

// userID is the customer the request acts for.
func userID(c *gin.Context) string { return middleware.CustomerID(c) }

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
