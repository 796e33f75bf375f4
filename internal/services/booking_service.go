// Package services – BookingService
//
// BookingService owns booking rows and their status machine:
//
//	provisional -> confirmed
//	provisional -> cancelled
//	confirmed   -> cancelled
//
// Every write that makes a booking confirmed, or moves a confirmed booking,
// runs the overlap re-check and the write in one transaction behind the
// lock of every local day the interval touches, so two racing
// confirmations for overlapping slots cannot both succeed, even across
// midnight. Changes to a confirmed booking starting within ChangeCutoff
// are refused with ErrChangeTooLate.
package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/events"
	"github.com/tbourn/go-booking-backend/internal/reminders"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
	"github.com/tbourn/go-booking-backend/internal/utils"
)

var transitions = map[string][]string{
	domain.BookingProvisional: {domain.BookingConfirmed, domain.BookingCancelled},
	domain.BookingConfirmed:   {domain.BookingCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// BookingInput describes a booking created outside the draft flow.
type BookingInput struct {
	Service        string
	Start          time.Time
	RecipientName  string
	RecipientPhone string
}

// BookingService manages bookings.
type BookingService struct {
	DB           *gorm.DB
	Catalog      *Catalog
	Availability *AvailabilityService
	Clock        clock.Clock
	Loc          *time.Location
	ChangeCutoff time.Duration

	Reminders reminders.Scheduler
	Notifier  events.Notifier
}

// CreateProvisional records a provisional booking. Provisional bookings do
// not occupy time until confirmed.
func (s *BookingService) CreateProvisional(ctx context.Context, customerID string, in BookingInput) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "CreateProvisional", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	svc, err := s.Catalog.Lookup(in.Service)
	if err != nil {
		return nil, err
	}
	if in.Start.IsZero() {
		return nil, invalid(domain.FieldDate, "start time is required")
	}
	if in.Start.Before(s.Clock.Now()) {
		return nil, invalid(domain.FieldDate, "start time is in the past")
	}
	dur := s.Catalog.Duration(svc.Name)
	now := s.Clock.Now()
	b := &domain.Booking{
		CustomerID:     customerID,
		Service:        svc.Name,
		StartsAt:       in.Start.UTC(),
		EndsAt:         in.Start.UTC().Add(dur),
		DurationMin:    int(dur / time.Minute),
		RecipientName:  in.RecipientName,
		RecipientPhone: in.RecipientPhone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.CreateProvisional(ctx, s.DB, b); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))
	return b, nil
}

// Confirm promotes a provisional booking. Losing the slot race returns a
// *ConflictError with fresh suggestions; confirming an already confirmed
// booking returns it unchanged.
func (s *BookingService) Confirm(ctx context.Context, customerID, id string) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(attribute.String("customer.id", customerID), attribute.String("booking.id", id)),
	)
	defer span.End()

	b, err := s.get(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingConfirmed {
		return b, nil
	}
	if !CanTransition(b.Status, domain.BookingConfirmed) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", b.Status, domain.BookingConfirmed)
	}

	now := s.Clock.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockDays(tx, s.days(b.StartsAt, b.EndsAt), now); err != nil {
			return err
		}
		return repo.PromoteConfirmed(tx, b, now)
	})
	switch {
	case errors.Is(err, repo.ErrOverlap):
		return nil, s.conflict(ctx, b.StartsAt, b.Service)
	case errors.Is(err, repo.ErrStaleVersion):
		cur, gerr := s.get(ctx, customerID, id)
		if gerr == nil && cur.Status == domain.BookingConfirmed {
			return cur, nil
		}
		return nil, errors.Wrap(ErrInvalidTransition, "booking changed concurrently")
	case err != nil:
		return nil, err
	}

	bookingsConfirmed.Inc()
	s.afterConfirm(ctx, b)
	return b, nil
}

// Cancel cancels a provisional or confirmed booking. Cancelling an already
// cancelled booking returns it unchanged.
func (s *BookingService) Cancel(ctx context.Context, customerID, id string) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("customer.id", customerID), attribute.String("booking.id", id)),
	)
	defer span.End()

	b, err := s.get(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingCancelled {
		return b, nil
	}
	if err := s.checkCutoff(b); err != nil {
		return nil, err
	}
	from := b.Status
	ok, err := repo.TransitionBooking(ctx, s.DB, b.ID, from, domain.BookingCancelled, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(ErrInvalidTransition, "booking changed concurrently")
	}
	b.Status = domain.BookingCancelled

	if from == domain.BookingConfirmed {
		s.cancelReminders(ctx, b)
		s.notify(ctx, events.Event{
			Type:       events.BookingCancelled,
			CustomerID: b.CustomerID,
			BookingID:  b.ID,
			Message:    "Your " + b.Service + " appointment has been cancelled.",
		})
	}
	return b, nil
}

// Reschedule moves a booking to start. A confirmed booking is moved under
// the same lock and overlap check as a confirmation.
func (s *BookingService) Reschedule(ctx context.Context, customerID, id string, start time.Time) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Reschedule",
		trace.WithAttributes(attribute.String("customer.id", customerID), attribute.String("booking.id", id)),
	)
	defer span.End()

	b, err := s.get(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingCancelled {
		return nil, errors.Wrap(ErrInvalidTransition, "cancelled bookings cannot be moved")
	}
	if err := s.checkCutoff(b); err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	if start.Before(now) {
		return nil, invalid(domain.FieldDate, "new start time is in the past")
	}
	start = start.UTC()
	end := start.Add(time.Duration(b.DurationMin) * time.Minute)
	if b.Status == domain.BookingConfirmed && start.Sub(now) < s.ChangeCutoff {
		return nil, errors.Wrap(ErrChangeTooLate, "new start time is inside the change window")
	}

	oldStart := b.StartsAt
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockDays(tx, s.days(start, end), now); err != nil {
			return err
		}
		return repo.MoveConfirmed(tx, b, start, end, now)
	})
	switch {
	case errors.Is(err, repo.ErrOverlap):
		return nil, s.conflict(ctx, start, b.Service)
	case errors.Is(err, repo.ErrStaleVersion):
		return nil, errors.Wrap(ErrInvalidTransition, "booking changed concurrently")
	case err != nil:
		return nil, err
	}

	if b.Status == domain.BookingConfirmed {
		s.cancelReminders(ctx, &domain.Booking{ID: b.ID, StartsAt: oldStart})
		s.scheduleReminders(ctx, b)
	}
	return b, nil
}

// ListDay returns confirmed bookings on day's local calendar date.
func (s *BookingService) ListDay(ctx context.Context, day time.Time) ([]domain.Booking, error) {
	local := day.In(s.Loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Loc)
	return repo.ConfirmedInWindow(ctx, s.DB, from.UTC(), from.AddDate(0, 0, 1).UTC())
}

// ListPage returns a page of the customer's bookings and the total count.
func (s *BookingService) ListPage(ctx context.Context, customerID string, page, pageSize int) ([]domain.Booking, int64, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("customer.id", customerID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.ClampPage(page, pageSize)
	total, err := repo.CountBookings(ctx, s.DB, customerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Booking{}, 0, nil
	}
	items, err := repo.ListBookingsPage(ctx, s.DB, customerID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// confirmPaidTx creates the confirmed booking for a paid draft and deletes
// the draft. It runs inside the caller's transaction. When the payment
// already has a booking, that booking is returned with created false.
// repo.ErrOverlap means the slot was taken after it was offered.
func (s *BookingService) confirmPaidTx(ctx context.Context, tx *gorm.DB, p *domain.Payment, snap domain.DraftSnapshot, now time.Time) (b *domain.Booking, created bool, err error) {
	if snap.StartsAt == nil {
		return nil, false, errors.Wrap(repo.ErrOverlap, "paid draft has no start time")
	}
	start := snap.StartsAt.UTC()
	name := snap.Service
	if svc, err := s.Catalog.Lookup(snap.Service); err == nil {
		name = svc.Name
	}
	dur := s.Catalog.Duration(name)
	if err := repo.LockDays(tx, s.days(start, start.Add(dur)), now); err != nil {
		return nil, false, err
	}
	b, err = repo.GetBookingByPayment(ctx, tx, p.ID)
	switch {
	case err == nil:
		if _, err := repo.DeleteDraftByID(ctx, tx, p.DraftID); err != nil {
			return nil, false, err
		}
		return b, false, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, false, err
	}

	recipient := snap.RecipientName
	if recipient == "" {
		recipient = snap.CustomerName
	}
	pid := p.ID
	b = &domain.Booking{
		CustomerID:     p.CustomerID,
		Service:        name,
		StartsAt:       start,
		EndsAt:         start.Add(dur),
		DurationMin:    int(dur / time.Minute),
		RecipientName:  recipient,
		RecipientPhone: snap.RecipientPhone,
		PaymentID:      &pid,
		DraftID:        p.DraftID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.InsertConfirmed(tx, b); err != nil {
		return nil, false, err
	}
	if _, err := repo.DeleteDraftByID(ctx, tx, p.DraftID); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *BookingService) afterConfirm(ctx context.Context, b *domain.Booking) {
	s.scheduleReminders(ctx, b)
	local := b.StartsAt.In(s.Loc)
	s.notify(ctx, events.Event{
		Type:       events.BookingConfirmed,
		CustomerID: b.CustomerID,
		BookingID:  b.ID,
		Message: "Your " + b.Service + " appointment is confirmed for " +
			local.Format("Mon 2 Jan 2006 at 15:04") + ".",
	})
}

func (s *BookingService) scheduleReminders(ctx context.Context, b *domain.Booking) {
	if s.Reminders == nil {
		return
	}
	plan := reminders.Plan(reminders.Payload{
		BookingID:      b.ID,
		CustomerID:     b.CustomerID,
		Service:        b.Service,
		RecipientName:  b.RecipientName,
		RecipientPhone: b.RecipientPhone,
		StartsAt:       b.StartsAt,
	}, s.Clock.Now(), nil)
	for _, r := range plan {
		if err := s.Reminders.Schedule(ctx, r); err != nil {
			log.Warn().Err(err).Str("booking_id", b.ID).Str("key", r.Key).Msg("reminder not scheduled")
		}
	}
}

func (s *BookingService) cancelReminders(ctx context.Context, b *domain.Booking) {
	if s.Reminders == nil {
		return
	}
	if err := s.Reminders.Cancel(ctx, reminders.Keys(b.ID, b.StartsAt, nil)...); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Msg("reminders not cancelled")
	}
}

func (s *BookingService) notify(ctx context.Context, e events.Event) {
	publish(ctx, s.Notifier, s.Clock, e)
}

// publish delivers e and logs delivery failures. Notifications never fail
// the operation that produced them.
func publish(ctx context.Context, n events.Notifier, clk clock.Clock, e events.Event) {
	if n == nil {
		return
	}
	if e.At.IsZero() {
		e.At = clock.OrReal(clk).Now()
	}
	if err := n.Notify(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Str("type", e.Type).Msg("notification failed")
	}
}

// conflict builds the ConflictError for a lost race at start.
func (s *BookingService) conflict(ctx context.Context, start time.Time, service string) error {
	bookingConflicts.Inc()
	ce := &ConflictError{Suggestions: []Slot{}}
	if s.Availability != nil {
		if av, err := s.Availability.Check(ctx, start, service); err == nil {
			ce.Suggestions = av.Suggestions
		}
	}
	return ce
}

func (s *BookingService) checkCutoff(b *domain.Booking) error {
	if b.Status != domain.BookingConfirmed {
		return nil
	}
	if b.StartsAt.Sub(s.Clock.Now()) < s.ChangeCutoff {
		return errors.Wrapf(ErrChangeTooLate, "starts %s", b.StartsAt.Format(time.RFC3339))
	}
	return nil
}

func (s *BookingService) get(ctx context.Context, customerID, id string) (*domain.Booking, error) {
	b, err := repo.GetBookingForCustomer(ctx, s.DB, id, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// days names every local calendar day that [start, end) touches. They are
// the lock keys for confirming the interval.
func (s *BookingService) days(start, end time.Time) []string {
	first := start.In(s.Loc)
	last := first
	if end.After(start) {
		last = end.Add(-time.Nanosecond).In(s.Loc)
	}
	var out []string
	for d := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, s.Loc); !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(timeparse.DateLayout))
	}
	return out
}
