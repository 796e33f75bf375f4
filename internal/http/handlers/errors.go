// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package), and failErr, which maps the service
// error classes onto a status and one of these codes.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., missing_fields, gateway_failed) are reserved for
//     business logic errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "slot was just taken",
//	  "details": {"suggestions": [...]}
//	}
package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeValidation       = "validation_failed"
	ErrCodeMissingFields    = "missing_fields"
	ErrCodePolicy           = "policy_violation"
	ErrCodeGateway          = "gateway_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// failErr writes the error envelope for a service error, keyed on its class.
func failErr(c *gin.Context, err error) {
	var (
		rl *services.RateLimitError
		ce *services.ConflictError
		mf *services.MissingFieldsError
		ve *services.ValidationError
	)
	switch {
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, rl.Error())
	case errors.As(err, &ce):
		failWith(c, http.StatusConflict, ErrCodeConflict, ce.Error(), gin.H{"suggestions": ce.Suggestions})
	case errors.As(err, &mf):
		failWith(c, http.StatusUnprocessableEntity, ErrCodeMissingFields, mf.Error(), gin.H{"missing": mf.Fields})
	case errors.As(err, &ve):
		failWith(c, http.StatusBadRequest, ErrCodeValidation, ve.Msg, gin.H{"field": ve.Field})
	case errors.Is(err, services.ErrValidation), errors.Is(err, extract.ErrMalformed):
		fail(c, http.StatusBadRequest, ErrCodeValidation, errors.UnwrapAll(err).Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, errors.UnwrapAll(err).Error())
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, errors.UnwrapAll(err).Error())
	case errors.Is(err, services.ErrPolicy):
		fail(c, http.StatusConflict, ErrCodePolicy, errors.UnwrapAll(err).Error())
	case errors.Is(err, services.ErrExternalService):
		fail(c, http.StatusBadGateway, ErrCodeGateway, "the payment service is not responding, please try again shortly")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
