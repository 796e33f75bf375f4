package services

import (
	"time"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// Tag is the closed set of results the channel layer renders.
type Tag string

// Outcome tags.
const (
	TagReady            Tag = "ready"
	TagIncomplete       Tag = "incomplete"
	TagUnavailable      Tag = "unavailable"
	TagConflict         Tag = "conflict"
	TagDepositInitiated Tag = "deposit_initiated"
	TagPaid             Tag = "paid"
	TagFailed           Tag = "failed"
	TagCancelled        Tag = "cancelled"
)

// Outcome is the result of one lifecycle step. Only the fields relevant to
// Tag are set.
type Outcome struct {
	Tag            Tag             `json:"outcome"`
	Message        string          `json:"message,omitempty"`
	Missing        []string        `json:"missing,omitempty"`
	Suggestions    []Slot          `json:"suggestions,omitempty"`
	DayFullyBooked bool            `json:"day_fully_booked,omitempty"`
	Lookahead      []DaySlots      `json:"lookahead,omitempty"`
	Error          string          `json:"error,omitempty"`
	RetryAfter     time.Duration   `json:"-"`
	Draft          *domain.Draft   `json:"draft,omitempty"`
	Payment        *domain.Payment `json:"payment,omitempty"`
	Booking        *domain.Booking `json:"booking,omitempty"`
}

// Slot is a bookable start time.
type Slot struct {
	Start time.Time `json:"start"`
	Date  string    `json:"date"`
	Time  string    `json:"time"`
}

// DaySlots groups free slots of one later day.
type DaySlots struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}
