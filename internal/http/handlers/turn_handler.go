// Turn and draft HTTP handlers.
//
// This file exposes the conversational side of the API:
//   - POST   /turns              (apply one extraction record)
//   - GET    /drafts/me          (review the current draft)
//   - DELETE /drafts/me          (cancel the booking in progress)
//   - POST   /drafts/me/cleanup  (delete the draft if it is stale)
//   - GET    /availability       (check a slot)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/services"
)

//
// DTOs
//

// TurnResponse is the outcome of a turn plus any extraction fields that were
// dropped as invalid.
type TurnResponse struct {
	services.Outcome
	Rejected []extract.Rejection `json:"rejected,omitempty"`
}

// CleanupResponse reports whether a stale draft was deleted.
type CleanupResponse struct {
	Deleted bool `json:"deleted"`
}

// AvailabilityResponse answers a slot query. Lookahead is only filled when
// the requested day has no free slot at all.
type AvailabilityResponse struct {
	services.Availability
	Lookahead []services.DaySlots `json:"lookahead,omitempty"`
}

//
// Handlers
//

// PostTurn godoc
// @ID          postTurn
// @Summary     Apply one conversation turn
// @Description Merges the fields extracted from one customer message into the draft and
// @Description returns the next outcome: incomplete, unavailable, deposit_initiated, paid,
// @Description failed or cancelled. Invalid fields are dropped and listed under "rejected".
// @Tags        Turns
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string          true  "Customer ID (channel identity)"  example(254712345678)
// @Param       body       body    extract.Record  true  "Extraction record"
//
// @Success     200  {object}  handlers.TurnResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed record"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment gateway failure"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /turns [post]
func (h *Handlers) PostTurn(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	rec, err := extract.Decode(raw)
	if err != nil {
		failErr(c, err)
		return
	}
	rec, rejected := h.Validator.Clean(rec)

	out, err := h.Lifecycle.HandleTurn(c.Request.Context(), userID(c), rec)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TurnResponse{Outcome: out, Rejected: rejected})
}

// GetDraft godoc
// @ID          getDraft
// @Summary     Review the current draft
// @Description Returns the customer's draft with the fields still missing, without changing it.
// @Tags        Drafts
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer ID"  example(254712345678)
//
// @Success     200  {object}  services.Outcome
// @Failure     404  {object}  handlers.ErrorResponse  "No booking in progress"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /drafts/me [get]
func (h *Handlers) GetDraft(c *gin.Context) {
	out, err := h.Lifecycle.Review(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// DeleteDraft godoc
// @ID          deleteDraft
// @Summary     Cancel the booking in progress
// @Description Abandons any pending deposit request and deletes the draft.
// @Tags        Drafts
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer ID"  example(254712345678)
//
// @Success     200  {object}  services.Outcome
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /drafts/me [delete]
func (h *Handlers) DeleteDraft(c *gin.Context) {
	out, err := h.Lifecycle.HandleTurn(c.Request.Context(), userID(c), extract.Record{SubIntent: extract.IntentCancel})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CleanupDraft godoc
// @ID          cleanupDraft
// @Summary     Delete the draft if it is stale
// @Description Deletes the customer's draft only when it has been abandoned: all payments failed,
// @Description no payment for a long time, or the draft is past its hard age limit.
// @Tags        Drafts
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer ID"  example(254712345678)
//
// @Success     200  {object}  handlers.CleanupResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /drafts/me/cleanup [post]
func (h *Handlers) CleanupDraft(c *gin.Context) {
	deleted, err := h.Stale.CleanupIfStale(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CleanupResponse{Deleted: deleted})
}

// GetAvailability godoc
// @ID          getAvailability
// @Summary     Check a slot
// @Description Reports whether a service can start at the given time. Pass either an RFC 3339
// @Description start, or a date and time as a customer would write them. Unavailable slots come
// @Description with the closest free alternatives on the same day, or later days when it is full.
// @Tags        Availability
// @Produce     json
//
// @Param       service  query  string  true   "Service name"            example(Gold)
// @Param       start    query  string  false  "Start (RFC 3339)"        example(2025-12-10T11:00:00Z)
// @Param       date     query  string  false  "Date text"               example(next friday)
// @Param       time     query  string  false  "Time text"               example(2pm)
//
// @Success     200  {object}  handlers.AvailabilityResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /availability [get]
func (h *Handlers) GetAvailability(c *gin.Context) {
	ctx := c.Request.Context()
	service := strings.TrimSpace(c.Query("service"))
	if service == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "service is required")
		return
	}
	start, okStart := h.parseStart(c)
	if !okStart {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "give start as RFC 3339, or a date and a time")
		return
	}

	av, err := h.Availability.Check(ctx, start, service)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := AvailabilityResponse{Availability: av}
	if av.DayFullyBooked {
		if resp.Lookahead, err = h.Availability.Lookahead(ctx, start, service); err != nil {
			failErr(c, err)
			return
		}
	}
	ok(c, http.StatusOK, resp)
}

// parseStart reads the start instant from query parameters.
func (h *Handlers) parseStart(c *gin.Context) (time.Time, bool) {
	if s := strings.TrimSpace(c.Query("start")); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		return t.UTC(), err == nil
	}
	in, err := h.Normalizer.Normalize(c.Query("date"), c.Query("time"), h.Clock.Now())
	if err != nil {
		return time.Time{}, false
	}
	return in.UTC, true
}
