// Package events carries booking-domain notifications out of the engine:
// confirmations, failed payments, due reminders. Channel adapters consume
// them and turn them into customer messages.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Event types.
const (
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingConflict  = "booking.conflict"
	PaymentInitiated = "payment.initiated"
	PaymentFailed    = "payment.failed"
	PaymentDuplicate = "payment.duplicate"
	ReminderDue      = "reminder.due"
	DraftCollected   = "draft.collected"
)

// Event is one notification. Message is customer-facing text the channel
// adapter may send verbatim.
type Event struct {
	Type       string            `json:"type"`
	CustomerID string            `json:"customer_id"`
	BookingID  string            `json:"booking_id,omitempty"`
	PaymentID  string            `json:"payment_id,omitempty"`
	Message    string            `json:"message,omitempty"`
	At         time.Time         `json:"at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Notifier delivers events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the structured log. It is the fallback when
// no broker is configured.
type LogNotifier struct{}

// Notify logs ev at info level.
func (LogNotifier) Notify(_ context.Context, ev Event) error {
	log.Info().
		Str("event", ev.Type).
		Str("customer_id", ev.CustomerID).
		Str("booking_id", ev.BookingID).
		Str("payment_id", ev.PaymentID).
		Str("message", ev.Message).
		Msg("domain event")
	return nil
}

// Multi fans an event out to every notifier and returns the first error.
type Multi []Notifier

// Notify delivers ev to each notifier in order.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
