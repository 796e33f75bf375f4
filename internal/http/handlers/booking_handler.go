// Booking HTTP handlers.
//
// This file exposes REST endpoints for bookings:
//   - POST  /bookings              (create provisional, idempotent)
//   - GET   /bookings              (list, paginated, ETag support)
//   - POST  /bookings/{id}/confirm (provisional → confirmed)
//   - POST  /bookings/{id}/cancel  (→ cancelled, subject to the change cutoff)
//   - PATCH /bookings/{id}         (reschedule, subject to the change cutoff)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create exists for (customer, scope, key), the handler returns that booking
// and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/http/middleware"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/services"
)

//
// DTOs
//

// CreateBookingRequest is the JSON payload for creating a provisional booking.
type CreateBookingRequest struct {
	Service        string    `json:"service"         binding:"required,max=120" example:"Gold"`
	StartsAt       time.Time `json:"starts_at"       example:"2025-12-10T11:00:00Z"`
	RecipientName  string    `json:"recipient_name"  binding:"max=120" example:"Amina"`
	RecipientPhone string    `json:"recipient_phone" binding:"max=32" example:"0712345678"`
}

// RescheduleRequest moves a booking to a new start.
type RescheduleRequest struct {
	StartsAt time.Time `json:"starts_at" example:"2025-12-11T07:30:00Z"`
}

// ListBookingsResponse wraps a page of bookings and pagination information.
type ListBookingsResponse struct {
	Bookings   []domain.Booking `json:"bookings"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// CreateBooking godoc
// @ID          createBooking
// @Summary     Create a provisional booking
// @Description Records a provisional booking. It does not hold the slot until confirmed.
// @Description Supports idempotency via the Idempotency-Key header (same key → same booking).
// @Tags        Bookings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string                         true   "Customer ID"  example(254712345678)
// @Param       Idempotency-Key  header  string                         false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateBookingRequest  true   "Booking"
//
// @Success     201  {object}  domain.Booking
// @Success     200  {object}  domain.Booking          "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /bookings [post]
func (h *Handlers) CreateBooking(c *gin.Context) {
	ctx := c.Request.Context()
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "service and starts_at required")
		return
	}
	uid := userID(c)
	scope := middleware.IdempotencyScope(c)

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.DB, uid, scope, idemKey, h.Clock.Now()); err == nil && rec != nil {
			if prev, err2 := repo.GetBookingForCustomer(ctx, h.DB, rec.ResourceID, uid); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, prev)
				return
			}
		}
	}

	b, err := h.Bookings.CreateProvisional(ctx, uid, services.BookingInput{
		Service:        strings.TrimSpace(req.Service),
		Start:          req.StartsAt.UTC(),
		RecipientName:  strings.TrimSpace(req.RecipientName),
		RecipientPhone: strings.TrimSpace(req.RecipientPhone),
	})
	if err != nil {
		failErr(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.DB != nil {
		if _, err := repo.CreateIdempotency(ctx, h.DB, uid, scope, idemKey, b.ID, http.StatusCreated, h.IdempotencyTTL, h.Clock.Now()); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, b)
}

// ListBookings godoc
// @ID          listBookings
// @Summary     List bookings (paginated)
// @Description Returns a page of the customer's bookings, soonest first. Supports weak ETag via
// @Description If-None-Match and may return 304.
// @Tags        Bookings
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "Customer ID"                 example(254712345678)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false  "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListBookingsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /bookings [get]
func (h *Handlers) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.DB != nil {
		count, maxTS, err := repo.BookingsStats(ctx, h.DB, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"bookings:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
			if notModified(c, etag) {
				return
			}
		}
	}

	items, total, err := h.Bookings.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListBookingsResponse{
		Bookings:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ConfirmBooking godoc
// @ID          confirmBooking
// @Summary     Confirm a booking
// @Description Promotes a provisional booking. Fails with 409 and alternatives when the slot was taken.
// @Tags        Bookings
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer ID"     example(254712345678)
// @Param       id         path    string  true  "Booking ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Booking
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     409  {object} handlers.ErrorResponse "Slot taken or transition not allowed"
// @Router      /bookings/{id}/confirm [post]
func (h *Handlers) ConfirmBooking(c *gin.Context) {
	id, okID := bookingID(c)
	if !okID {
		return
	}
	b, err := h.Bookings.Confirm(c.Request.Context(), userID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// CancelBooking godoc
// @ID          cancelBooking
// @Summary     Cancel a booking
// @Description Cancels a booking. Confirmed bookings can only be cancelled before the change cutoff.
// @Tags        Bookings
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer ID"        example(254712345678)
// @Param       id         path    string  true  "Booking ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Booking
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     409  {object} handlers.ErrorResponse "Too late to change"
// @Router      /bookings/{id}/cancel [post]
func (h *Handlers) CancelBooking(c *gin.Context) {
	id, okID := bookingID(c)
	if !okID {
		return
	}
	b, err := h.Bookings.Cancel(c.Request.Context(), userID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// RescheduleBooking godoc
// @ID          rescheduleBooking
// @Summary     Reschedule a booking
// @Description Moves a booking to a new start. Confirmed bookings must be free at the new time.
// @Tags        Bookings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                      true  "Customer ID"        example(254712345678)
// @Param       id         path    string                      true  "Booking ID (UUID)"  format(uuid)
// @Param       body       body    handlers.RescheduleRequest  true  "New start"
//
// @Success     200  {object} domain.Booking
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     409  {object} handlers.ErrorResponse "Slot taken or too late to change"
// @Router      /bookings/{id} [patch]
func (h *Handlers) RescheduleBooking(c *gin.Context) {
	id, okID := bookingID(c)
	if !okID {
		return
	}
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StartsAt.IsZero() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "starts_at required (RFC 3339)")
		return
	}
	b, err := h.Bookings.Reschedule(c.Request.Context(), userID(c), id, req.StartsAt.UTC())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// bookingID validates the :id path parameter, writing a 400 when it is not a UUID.
func bookingID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id must be a UUID")
		return "", false
	}
	return id, true
}
