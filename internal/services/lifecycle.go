// Package services – Lifecycle
//
// Lifecycle turns one customer turn into one outcome. The steps are fixed:
//
//  1. a cancel sub-intent deletes the draft
//  2. the turn's fields are merged into the draft
//  3. missing fields, an unknown service or an unreadable date end the turn
//     as incomplete
//  4. an unavailable slot ends it as unavailable, with suggestions
//  5. a draft whose deposit already settled is booked directly
//  6. otherwise the deposit is initiated
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
)

// Lifecycle orchestrates drafts, availability and deposits.
type Lifecycle struct {
	Drafts       *DraftService
	Catalog      *Catalog
	Availability *AvailabilityService
	Payments     *PaymentService
}

var fieldPrompts = map[string]string{
	domain.FieldService:        "which service you'd like",
	domain.FieldDate:           "the date",
	domain.FieldTime:           "the time",
	domain.FieldName:           "your name",
	domain.FieldRecipientName:  "the name of the person the booking is for",
	domain.FieldRecipientPhone: "their phone number",
}

// HandleTurn applies one cleaned extraction record for customerID.
func (l *Lifecycle) HandleTurn(ctx context.Context, customerID string, rec extract.Record) (Outcome, error) {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "HandleTurn",
		trace.WithAttributes(attribute.String("customer.id", customerID), attribute.String("sub_intent", string(rec.SubIntent))),
	)
	defer span.End()

	if rec.SubIntent == extract.IntentCancel {
		if _, err := l.Payments.AbandonPending(ctx, customerID); err != nil {
			return Outcome{}, err
		}
		deleted, err := l.Drafts.Delete(ctx, customerID)
		if err != nil {
			return Outcome{}, err
		}
		msg := "Okay, I've cancelled your booking request."
		if !deleted {
			msg = "There was no booking in progress to cancel."
		}
		return Outcome{Tag: TagCancelled, Message: msg}, nil
	}

	d, _, err := l.Drafts.Merge(ctx, customerID, rec)
	if err != nil {
		return Outcome{}, err
	}
	out, ok, err := l.review(ctx, d)
	if err != nil || !ok {
		span.SetAttributes(attribute.String("outcome", string(out.Tag)))
		return out, err
	}

	svc, _ := l.Catalog.Lookup(d.Service)
	av, err := l.Availability.Check(ctx, *d.StartsAt, svc.Name)
	if err != nil {
		return Outcome{}, err
	}
	if !av.Available {
		out := l.unavailable(ctx, d, av)
		span.SetAttributes(attribute.String("outcome", string(out.Tag)))
		return out, nil
	}

	if paid, err := l.alreadyPaid(ctx, d); err != nil {
		return Outcome{}, err
	} else if paid {
		return l.Payments.FinalizePaid(ctx, d)
	}

	res, err := l.Payments.InitiateForDraft(ctx, d, "")
	switch {
	case errors.Is(err, ErrExternalService):
		return Outcome{Tag: TagFailed, Message: "We couldn't send the payment request right now. Reply RESEND to try again.", Error: err.Error(), Draft: d}, nil
	case errors.Is(err, ErrValidation):
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Field == "phone" {
			return Outcome{Tag: TagIncomplete, Missing: []string{"phone"}, Message: "Which M-Pesa number should we send the deposit request to?", Draft: d}, nil
		}
		return Outcome{}, err
	case err != nil:
		return Outcome{}, err
	}
	out = initiatedOutcome(res)
	out.Draft = d
	span.SetAttributes(attribute.String("outcome", string(out.Tag)))
	return out, nil
}

// Review reports where the customer's draft stands without changing it:
// incomplete, or ready for a deposit.
func (l *Lifecycle) Review(ctx context.Context, customerID string) (Outcome, error) {
	d, err := l.Drafts.Get(ctx, customerID)
	if err != nil {
		return Outcome{}, err
	}
	out, ok, err := l.review(ctx, d)
	if err != nil || !ok {
		return out, err
	}
	return Outcome{Tag: TagReady, Message: l.summary(d), Draft: d}, nil
}

// review checks d for missing or unusable fields. ok is true when d can go
// on to the availability check.
func (l *Lifecycle) review(ctx context.Context, d *domain.Draft) (Outcome, bool, error) {
	if d.Service != "" {
		if _, err := l.Catalog.Lookup(d.Service); err != nil {
			missing := append([]string{domain.FieldService}, without(MissingFields(d), domain.FieldService)...)
			return Outcome{Tag: TagIncomplete, Missing: missing, Message: err.Error(), Draft: d}, false, nil
		}
	}
	if err := l.Drafts.ApplyRecipientDefault(ctx, d); err != nil {
		return Outcome{}, false, err
	}
	if m := MissingFields(d); len(m) > 0 {
		return Outcome{Tag: TagIncomplete, Missing: m, Message: prompt(m, l.Catalog.Names()), Draft: d}, false, nil
	}
	if d.StartsAt == nil {
		return Outcome{
			Tag:     TagIncomplete,
			Missing: []string{domain.FieldDate, domain.FieldTime},
			Message: fmt.Sprintf("I couldn't work out when %q at %q is. Please send a date like 2025-12-10 or 'next Friday' and a time like 2pm.", d.Date, d.Time),
			Draft:   d,
		}, false, nil
	}
	return Outcome{}, true, nil
}

func (l *Lifecycle) unavailable(ctx context.Context, d *domain.Draft, av Availability) Outcome {
	out := Outcome{Tag: TagUnavailable, Suggestions: av.Suggestions, DayFullyBooked: av.DayFullyBooked, Draft: d}
	if !av.DayFullyBooked {
		times := make([]string, 0, len(av.Suggestions))
		for _, s := range av.Suggestions {
			times = append(times, s.Time)
		}
		out.Message = "That time isn't available. The closest free times that day are " + strings.Join(times, ", ") + "."
		return out
	}
	days, err := l.Availability.Lookahead(ctx, *d.StartsAt, av.Service)
	if err != nil {
		log.Warn().Err(err).Str("draft_id", d.ID).Msg("lookahead failed")
	}
	out.Lookahead = days
	if len(days) == 0 {
		out.Message = "That day is fully booked and we have no free slots in the coming days."
		return out
	}
	parts := make([]string, 0, len(days))
	for _, day := range days {
		times := make([]string, 0, len(day.Slots))
		for _, s := range day.Slots {
			times = append(times, s.Time)
		}
		parts = append(parts, day.Date+" ("+strings.Join(times, ", ")+")")
	}
	out.Message = "That day is fully booked. Free times on the next days: " + strings.Join(parts, "; ") + "."
	return out
}

func (l *Lifecycle) alreadyPaid(ctx context.Context, d *domain.Draft) (bool, error) {
	p, err := repo.LatestPaymentForDraft(ctx, l.Drafts.DB, d.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Status == domain.PaymentSuccess, nil
}

func prompt(missing, services []string) string {
	asks := make([]string, 0, len(missing))
	for _, f := range missing {
		asks = append(asks, fieldPrompts[f])
	}
	msg := "Please tell me " + joinAnd(asks) + "."
	if missing[0] == domain.FieldService && len(services) > 0 {
		msg += " We offer: " + strings.Join(services, ", ") + "."
	}
	return msg
}

func (l *Lifecycle) summary(d *domain.Draft) string {
	when := d.Date + " " + d.Time
	if d.StartsAt != nil {
		when = d.StartsAt.In(l.Availability.Loc).Format(timeparse.DateLayout + " at " + timeparse.TimeLayout)
	}
	return fmt.Sprintf("%s for %s on %s.", d.Service, d.RecipientName, when)
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func without(list []string, drop string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
