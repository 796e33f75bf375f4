// Package reminders schedules the appointment reminders sent ahead of a
// confirmed booking. Fire times already in the past are skipped, and
// scheduling the same reminder twice is a no-op.
package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-booking-backend/internal/events"
)

// TypeSend is the task type for a due reminder.
const TypeSend = "reminder:send"

// DefaultOffsets are how long before the start each reminder fires.
var DefaultOffsets = []time.Duration{48 * time.Hour, 24 * time.Hour}

// Payload is the serialized reminder.
type Payload struct {
	BookingID      string    `json:"booking_id"`
	CustomerID     string    `json:"customer_id"`
	Service        string    `json:"service"`
	RecipientName  string    `json:"recipient_name"`
	RecipientPhone string    `json:"recipient_phone"`
	StartsAt       time.Time `json:"starts_at"`
	Lead           string    `json:"lead"`
}

// Reminder is one scheduled delivery. Key identifies it across retries and
// restarts.
type Reminder struct {
	Key     string
	FireAt  time.Time
	Payload Payload
}

// Scheduler defers reminders until their fire time.
type Scheduler interface {
	Schedule(ctx context.Context, r Reminder) error
	Cancel(ctx context.Context, keys ...string) error
}

// Plan computes the reminders for a booking starting at startsAt, dropping
// any whose fire time is not after now.
func Plan(p Payload, now time.Time, offsets []time.Duration) []Reminder {
	if offsets == nil {
		offsets = DefaultOffsets
	}
	var out []Reminder
	for _, off := range offsets {
		fireAt := p.StartsAt.Add(-off)
		if !fireAt.After(now) {
			continue
		}
		rp := p
		rp.Lead = off.String()
		out = append(out, Reminder{Key: Key(p.BookingID, p.StartsAt, off), FireAt: fireAt, Payload: rp})
	}
	return out
}

// Keys returns every reminder key a booking at startsAt may have.
func Keys(bookingID string, startsAt time.Time, offsets []time.Duration) []string {
	if offsets == nil {
		offsets = DefaultOffsets
	}
	keys := make([]string, 0, len(offsets))
	for _, off := range offsets {
		keys = append(keys, Key(bookingID, startsAt, off))
	}
	return keys
}

// Key names the reminder for a booking, start instant and lead time. A
// rescheduled booking gets fresh keys.
func Key(bookingID string, startsAt time.Time, lead time.Duration) string {
	return fmt.Sprintf("reminder:%s:%d:%d", bookingID, startsAt.Unix(), int64(lead/time.Minute))
}

// Deliver turns a due reminder into a notification.
func Deliver(ctx context.Context, n events.Notifier, p Payload) error {
	who := p.RecipientName
	if who == "" {
		who = "there"
	}
	return n.Notify(ctx, events.Event{
		Type:       events.ReminderDue,
		CustomerID: p.CustomerID,
		BookingID:  p.BookingID,
		Message: fmt.Sprintf("Hi %s, a reminder that your %s appointment is on %s UTC.",
			who, p.Service, p.StartsAt.UTC().Format("Mon 2 Jan 15:04")),
		At: time.Now().UTC(),
		Data: map[string]string{
			"lead":            p.Lead,
			"recipient_phone": p.RecipientPhone,
		},
	})
}

// NewServeMux routes reminder tasks to n.
func NewServeMux(n events.Notifier) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSend, Handler(n))
	return mux
}

// Handler decodes a reminder task and delivers it.
func Handler(n events.Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Error().Err(err).Msg("reminder: invalid payload")
			// Malformed payloads never succeed on retry.
			return fmt.Errorf("decode reminder: %v: %w", err, asynq.SkipRetry)
		}
		if err := Deliver(ctx, n, p); err != nil {
			log.Warn().Err(err).Str("booking_id", p.BookingID).Msg("reminder: delivery failed")
			return err
		}
		return nil
	}
}
