// Package services implements the booking lifecycle: draft accumulation,
// availability, deposit reconciliation, booking transitions and stale-draft
// collection.
//
// This file centralizes the error taxonomy. Every error a service returns
// carries one class mark (ErrValidation, ErrConflict, ErrExternalService,
// ErrNotFound, ErrRateLimited or ErrPolicy), so callers branch with
// errors.Is(err, services.ErrConflict) and the HTTP layer maps classes to
// status codes without knowing individual failures.
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Error classes.
var (
	// ErrValidation marks missing or malformed input the user can correct.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a slot race lost at confirmation time.
	ErrConflict = errors.New("slot conflict")

	// ErrExternalService marks gateway failures.
	ErrExternalService = errors.New("external service failure")

	// ErrNotFound marks a missing draft, payment or booking.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited marks excess verification attempts.
	ErrRateLimited = errors.New("rate limited")

	// ErrPolicy marks domain rule violations such as late changes.
	ErrPolicy = errors.New("policy violation")
)

// Specific failures. Each belongs to one class and stays distinct from the
// other failures of that class.
var (
	ErrAlreadyPaid       = classified(ErrPolicy, "deposit already paid")
	ErrChangeTooLate     = classified(ErrPolicy, "booking starts too soon to change")
	ErrInvalidTransition = classified(ErrPolicy, "booking status transition not allowed")

	ErrReceiptFormat   = classified(ErrValidation, "receipt code is malformed")
	ErrReceiptReplayed = classified(ErrValidation, "receipt already used for another booking")
	ErrReceiptMismatch = classified(ErrValidation, "receipt does not match the pending payment")
	ErrPaymentExpired  = classified(ErrValidation, "pending payment is too old to verify")

	ErrDraftNotFound   = classified(ErrNotFound, "no booking in progress")
	ErrPaymentNotFound = classified(ErrNotFound, "no payment to act on")
	ErrBookingNotFound = classified(ErrNotFound, "booking not found")

	ErrGateway = classified(ErrExternalService, "payment gateway failure")
)

type classError struct {
	msg   string
	class error
}

func classified(class error, msg string) error { return &classError{msg: msg, class: class} }

func (e *classError) Error() string { return e.msg }

// Is reports class membership.
func (e *classError) Is(target error) bool { return target == e.class }

// gatewayFailure wraps a provider error as ErrGateway. errors.Mark records
// only the reference's own identity, so the class is marked as well.
func gatewayFailure(err error, msg string) error {
	return errors.Mark(errors.Mark(errors.Wrap(err, msg), ErrGateway), ErrExternalService)
}

// ValidationError names the field to correct.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// Is reports class membership.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// MissingFieldsError lists the fields still required before an action.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing fields: " + strings.Join(e.Fields, ", ")
}

// Is reports class membership.
func (e *MissingFieldsError) Is(target error) bool { return target == ErrValidation }

// RateLimitError carries the cool-down before the next attempt. The limit
// itself is not exposed.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, try again in %s", roundUp(e.RetryAfter))
}

// Is reports class membership.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ConflictError is returned when a confirmation loses a slot race. It
// carries fresh alternatives for the same day.
type ConflictError struct {
	Suggestions []Slot
}

func (e *ConflictError) Error() string { return "slot was just taken" }

// Is reports class membership.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func roundUp(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if d < time.Minute {
		return d.Round(time.Second) + time.Second
	}
	return d.Truncate(time.Minute) + time.Minute
}
