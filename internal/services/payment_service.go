// Package services – PaymentService
//
// PaymentService reconciles deposits. A deposit is initiated against the
// customer's draft, pushed to the customer's handset through the gateway and
// settled by whichever signal arrives first: the gateway callback, a status
// poll, or the customer typing the receipt code. Every transition is a
// conditional update, so the late signals find nothing to do.
//
// Settling a payment and creating its booking happen in one transaction
// behind the day lock. If the slot was taken in the meantime the payment
// still settles, the draft is kept, and the customer is offered other times
// without being charged again.
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
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/events"
	"github.com/tbourn/go-booking-backend/internal/gateway"
	"github.com/tbourn/go-booking-backend/internal/phone"
	"github.com/tbourn/go-booking-backend/internal/ratelimit"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// InitiateResult describes what an initiation did. Pushed is false when an
// existing push was reused or another push is still being sent.
type InitiateResult struct {
	Payment       *domain.Payment `json:"payment"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Pushed        bool            `json:"pushed"`
	InProgress    bool            `json:"in_progress"`
	Message       string          `json:"message"`
}

// PaymentService manages deposit payments.
type PaymentService struct {
	DB           *gorm.DB
	Gateway      gateway.Gateway
	Clock        clock.Clock
	Catalog      *Catalog
	Bookings     *BookingService
	Availability *AvailabilityService
	Limiter      ratelimit.Limiter
	Poller       *Poller
	Notifier     events.Notifier

	// Region is the default region for numbers typed without a country code.
	Region string
	Cfg    config.PaymentConfig
}

// Initiate starts a deposit of amount for draftID, paid from phoneRaw.
func (s *PaymentService) Initiate(ctx context.Context, draftID, phoneRaw string, amount int64) (*InitiateResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Initiate", trace.WithAttributes(attribute.String("draft.id", draftID)))
	defer span.End()

	d, err := repo.GetDraft(ctx, s.DB, draftID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	if m := MissingFields(d); len(m) > 0 {
		return nil, &MissingFieldsError{Fields: m}
	}
	return s.initiate(ctx, d.ID, d.CustomerID, d.Snapshot(), s.payerPhone(d, phoneRaw), amount, false)
}

// InitiateForDraft starts the catalog deposit for a complete draft. An empty
// phoneRaw falls back to the payer, recipient and customer numbers in turn.
func (s *PaymentService) InitiateForDraft(ctx context.Context, d *domain.Draft, phoneRaw string) (*InitiateResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "InitiateForDraft", trace.WithAttributes(attribute.String("draft.id", d.ID)))
	defer span.End()

	if m := MissingFields(d); len(m) > 0 {
		return nil, &MissingFieldsError{Fields: m}
	}
	svc, err := s.Catalog.Lookup(d.Service)
	if err != nil {
		return nil, err
	}
	return s.initiate(ctx, d.ID, d.CustomerID, d.Snapshot(), s.payerPhone(d, phoneRaw), svc.Deposit, false)
}

const (
	msgInProgress = "A payment request is already on its way to your phone. Please check your phone and enter your M-Pesa PIN."
	msgReused     = "A payment request was already sent to your phone. Enter your M-Pesa PIN to complete it, or reply RESEND for a new one."
	msgRefreshed  = "Your booking details are updated. The payment request already on your phone now covers them: enter your M-Pesa PIN to complete it."
	msgStaleAmt   = "The payment request already on your phone is for KES %d, which no longer matches your booking. Reply RESEND for a new request of KES %d."
)

// initiate finds or creates the draft's pending row and pushes it. With
// fresh, a failed row whose push reached the gateway is left as history and
// a new row is created, so the old correlation id stays matchable.
func (s *PaymentService) initiate(ctx context.Context, draftID, customerID string, snap domain.DraftSnapshot, phoneRaw string, amount int64, fresh bool) (*InitiateResult, error) {
	msisdn, err := phone.Normalize(phoneRaw, s.Region)
	if err != nil {
		return nil, invalid("phone", "enter a valid M-Pesa number, for example 0712 345 678")
	}
	if amount <= 0 {
		return nil, invalid("amount", "deposit amount must be positive")
	}

	var p *domain.Payment
	for attempt := 0; attempt < 3 && p == nil; attempt++ {
		now := s.Clock.Now()
		latest, err := repo.LatestPaymentForDraft(ctx, s.DB, draftID)
		notFound := errors.Is(err, repo.ErrNotFound)
		switch {
		case err != nil && !notFound:
			return nil, err

		case !notFound && latest.Status == domain.PaymentSuccess:
			return nil, ErrAlreadyPaid

		case notFound || (fresh && latest.Status == domain.PaymentFailed && latest.CorrelationID != nil):
			created, err := repo.CreatePendingPayment(ctx, s.DB, draftID, customerID, msisdn, amount, snap, now)
			if errors.Is(err, repo.ErrDuplicate) {
				fresh = false
				continue
			}
			if err != nil {
				return nil, err
			}
			p = created

		case latest.Status == domain.PaymentPending && latest.CorrelationID != nil:
			return s.reuse(ctx, latest, snap, amount)

		default:
			ok, err := repo.ResetPaymentToPending(ctx, s.DB, latest, msisdn, amount, snap, now, now.Add(-s.Cfg.PushInflightTTL))
			if errors.Is(err, repo.ErrDuplicate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !ok {
				if latest.Status == domain.PaymentPending {
					return &InitiateResult{Payment: latest, InProgress: true, Message: msgInProgress}, nil
				}
				continue
			}
			p = latest
		}
	}
	if p == nil {
		return nil, errors.Newf("initiate deposit for draft %s: payment kept changing", draftID)
	}

	now := s.Clock.Now()
	claimed, err := repo.ClaimPush(ctx, s.DB, p.ID, now, now.Add(-s.Cfg.PushInflightTTL))
	if err != nil {
		return nil, err
	}
	if !claimed {
		if cur, err := repo.GetPayment(ctx, s.DB, p.ID); err == nil && cur.Status == domain.PaymentPending && cur.CorrelationID != nil {
			return &InitiateResult{Payment: cur, CorrelationID: *cur.CorrelationID, Message: msgReused}, nil
		}
		return &InitiateResult{Payment: p, InProgress: true, Message: msgInProgress}, nil
	}

	res, err := s.Gateway.Push(ctx, gateway.PushRequest{
		Phone:       msisdn,
		Amount:      amount,
		Reference:   reference(draftID),
		Description: "Booking deposit",
	})
	bg := context.WithoutCancel(ctx)
	if err != nil {
		reason := "push failed: " + err.Error()
		if won, ferr := repo.MarkPaymentFailed(bg, s.DB, p.ID, reason, s.Clock.Now()); ferr != nil {
			log.Error().Err(ferr).Str("payment_id", p.ID).Msg("could not record failed push")
		} else if won {
			paymentTransitions.WithLabelValues(domain.PaymentFailed).Inc()
		}
		log.Warn().Err(err).Str("payment_id", p.ID).Str("phone", phone.Mask(msisdn)).Msg("deposit push failed")
		s.notify(ctx, events.Event{
			Type:       events.PaymentFailed,
			CustomerID: customerID,
			PaymentID:  p.ID,
			Message:    "We couldn't send the payment request to your phone. Reply RESEND to try again.",
		})
		return nil, gatewayFailure(err, "send deposit request")
	}

	if err := repo.SetCorrelation(bg, s.DB, p.ID, res.CorrelationID, s.Clock.Now()); err != nil {
		// The row was replaced while the push was in flight; its callback will be unknown.
		log.Warn().Err(err).Str("payment_id", p.ID).Str("correlation_id", res.CorrelationID).Msg("correlation id not stored")
		return &InitiateResult{Payment: p, InProgress: true, Message: msgInProgress}, nil
	}
	corr := res.CorrelationID
	p.CorrelationID = &corr
	p.PushStartedAt = &now
	paymentTransitions.WithLabelValues(domain.PaymentPending).Inc()
	s.Poller.Watch(p.ID, corr)

	msg := fmt.Sprintf("We've sent a KES %d deposit request to %s. Enter your M-Pesa PIN to confirm your booking.", amount, phone.Mask(msisdn))
	s.notify(ctx, events.Event{Type: events.PaymentInitiated, CustomerID: customerID, PaymentID: p.ID, Message: msg})
	log.Info().Str("payment_id", p.ID).Str("draft_id", draftID).Int64("amount", amount).Msg("deposit push sent")
	return &InitiateResult{Payment: p, CorrelationID: corr, Pushed: true, Message: msg}, nil
}

// reuse reports the push already on the handset. When the draft changed
// since the push, the pending row takes the new details so settling books
// what the customer asked for last. A changed deposit amount cannot be
// carried over; the customer is asked to resend instead.
func (s *PaymentService) reuse(ctx context.Context, p *domain.Payment, snap domain.DraftSnapshot, amount int64) (*InitiateResult, error) {
	res := &InitiateResult{Payment: p, CorrelationID: *p.CorrelationID, Message: msgReused}
	if p.Snapshot.Equal(snap) {
		return res, nil
	}
	if p.Amount != amount {
		res.Message = fmt.Sprintf(msgStaleAmt, p.Amount, amount)
		return res, nil
	}
	ok, err := repo.RefreshPendingSnapshot(ctx, s.DB, p.ID, snap, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Settled or failed since it was read.
		cur, err := repo.GetPayment(ctx, s.DB, p.ID)
		if err != nil {
			return nil, err
		}
		res.Payment = cur
		return res, nil
	}
	p.Snapshot = snap
	res.Message = msgRefreshed
	log.Info().Str("payment_id", p.ID).Str("draft_id", p.DraftID).Msg("pending deposit took updated booking details")
	return res, nil
}

// Callback applies a gateway result. Redelivered and late results are no-ops
// that report the payment's current state. An unknown correlation id returns
// an error marked ErrNotFound.
func (s *PaymentService) Callback(ctx context.Context, cb gateway.Callback) (Outcome, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Callback",
		trace.WithAttributes(attribute.String("correlation.id", cb.CorrelationID), attribute.Int("result.code", cb.ResultCode)),
	)
	defer span.End()

	p, err := repo.GetPaymentByCorrelation(ctx, s.DB, cb.CorrelationID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn().Str("correlation_id", cb.CorrelationID).Int("result_code", cb.ResultCode).Msg("callback for unknown payment ignored")
		return Outcome{}, errors.Wrapf(ErrPaymentNotFound, "correlation %s", cb.CorrelationID)
	}
	if err != nil {
		return Outcome{}, err
	}
	if cb.Success() {
		out, err := s.settle(ctx, p, gateway.NormalizeReceipt(cb.Receipt))
		if errors.Is(err, ErrReceiptReplayed) {
			log.Error().Str("payment_id", p.ID).Str("receipt", cb.Receipt).Msg("gateway reported a receipt already held by another booking")
		}
		return out, err
	}
	return s.fail(ctx, p, gateway.Describe(cb.ResultCode, cb.ResultDesc))
}

// Status returns the customer's most recent payment.
func (s *PaymentService) Status(ctx context.Context, customerID string) (*domain.Payment, error) {
	p, err := repo.LatestPaymentForCustomer(ctx, s.DB, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// Resend replaces the customer's pending deposit with a fresh push, to
// newPhone when given. It works after the draft row was collected: the
// draft is rebuilt from the latest payment's snapshot.
func (s *PaymentService) Resend(ctx context.Context, customerID, newPhone string) (*InitiateResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Resend", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	now := s.Clock.Now()
	latest, lerr := repo.LatestPaymentForCustomer(ctx, s.DB, customerID)
	if lerr != nil && !errors.Is(lerr, repo.ErrNotFound) {
		return nil, lerr
	}
	d, err := repo.GetDraftByCustomer(ctx, s.DB, customerID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		if lerr != nil {
			return nil, ErrDraftNotFound
		}
		if latest.Status == domain.PaymentSuccess {
			return nil, ErrAlreadyPaid
		}
		d = draftFromSnapshot(latest.DraftID, customerID, latest.Snapshot)
		d.PayerPhone = latest.Phone
		if d, err = repo.RestoreDraft(ctx, s.DB, d, now); err != nil {
			return nil, err
		}
		log.Info().Str("customer_id", customerID).Str("draft_id", d.ID).Msg("draft restored from payment snapshot")
	case err != nil:
		return nil, err
	case lerr == nil && latest.DraftID == d.ID:
		if fillFromSnapshot(d, latest.Snapshot) {
			if err := repo.UpdateDraftCAS(ctx, s.DB, d, now); err != nil {
				return nil, err
			}
		}
	}

	if m := MissingFields(d); len(m) > 0 {
		return nil, &MissingFieldsError{Fields: m}
	}
	if d.StartsAt == nil {
		return nil, invalid(domain.FieldTime, "we couldn't read %q %q as a date and time", d.Date, d.Time)
	}
	svc, err := s.Catalog.Lookup(d.Service)
	if err != nil {
		return nil, err
	}
	if lp, err := repo.LatestPaymentForDraft(ctx, s.DB, d.ID); err == nil && lp.Status == domain.PaymentSuccess {
		return nil, ErrAlreadyPaid
	}

	if strings.TrimSpace(newPhone) != "" {
		msisdn, err := phone.Normalize(newPhone, s.Region)
		if err != nil {
			return nil, invalid("phone", "enter a valid M-Pesa number, for example 0712 345 678")
		}
		if d.PayerPhone != msisdn {
			d.PayerPhone = msisdn
			if err := repo.UpdateDraftCAS(ctx, s.DB, d, now); err != nil {
				return nil, err
			}
		}
	}

	if err := s.supersede(ctx, d.ID); err != nil {
		return nil, err
	}
	n, err := repo.DeletePendingForDraft(ctx, s.DB, d.ID, "")
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("replaced", n))
	return s.initiate(ctx, d.ID, customerID, d.Snapshot(), s.payerPhone(d, newPhone), svc.Deposit, true)
}

// supersede fails the draft's pending row when its push already reached the
// gateway. The row keeps its correlation id, so a late success for the old
// push is recognised as a closed payment and flagged for refund.
func (s *PaymentService) supersede(ctx context.Context, draftID string) error {
	p, err := repo.LatestPaymentForDraft(ctx, s.DB, draftID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status != domain.PaymentPending || p.CorrelationID == nil {
		return nil
	}
	won, err := repo.MarkPaymentFailed(ctx, s.DB, p.ID, "superseded by resend", s.Clock.Now())
	if err != nil {
		return err
	}
	if won {
		paymentTransitions.WithLabelValues(domain.PaymentFailed).Inc()
	}
	s.Poller.Cancel(p.ID)
	return nil
}

// AbandonPending fails the pending deposit of the customer's draft, if any,
// so a late result cannot book a cancelled request. It reports whether a
// payment was closed.
func (s *PaymentService) AbandonPending(ctx context.Context, customerID string) (bool, error) {
	d, err := repo.GetDraftByCustomer(ctx, s.DB, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p, err := repo.LatestPaymentForDraft(ctx, s.DB, d.ID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && p.Status != domain.PaymentPending) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	won, err := repo.MarkPaymentFailed(ctx, s.DB, p.ID, "cancelled by customer", s.Clock.Now())
	if err != nil || !won {
		return false, err
	}
	paymentTransitions.WithLabelValues(domain.PaymentFailed).Inc()
	s.Poller.Cancel(p.ID)
	return true, nil
}

// FinalizePaid books a draft whose deposit already settled, as happens when
// the slot was lost at settlement and the customer picked a new time. The
// customer is not charged again.
func (s *PaymentService) FinalizePaid(ctx context.Context, d *domain.Draft) (Outcome, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "FinalizePaid", trace.WithAttributes(attribute.String("draft.id", d.ID)))
	defer span.End()

	p, err := repo.LatestPaymentForDraft(ctx, s.DB, d.ID)
	if err != nil || p.Status != domain.PaymentSuccess {
		return Outcome{}, errors.Wrap(ErrPaymentNotFound, "draft has no settled deposit")
	}
	var (
		b       *domain.Booking
		created bool
	)
	now := s.Clock.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, created, err = s.Bookings.confirmPaidTx(ctx, tx, p, d.Snapshot(), now)
		return err
	})
	if errors.Is(err, repo.ErrOverlap) {
		return s.lostSlot(ctx, p, d.Snapshot()), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if created {
		bookingsConfirmed.Inc()
		s.Bookings.afterConfirm(ctx, b)
	}
	return Outcome{Tag: TagPaid, Message: "Your deposit was already received, so your booking is now confirmed.", Payment: p, Booking: b}, nil
}

// settle moves p to success with receipt and books its snapshot, all in one
// transaction. Losing the success transition is a no-op.
func (s *PaymentService) settle(ctx context.Context, p *domain.Payment, receipt string) (Outcome, error) {
	var (
		won, lost, created bool
		b                  *domain.Booking
	)
	now := s.Clock.Now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.MarkPaymentSuccess(ctx, tx, p, receipt, now)
		if err != nil || !ok {
			return err
		}
		won = true
		// The snapshot may have been refreshed after p was read.
		cur, err := repo.GetPayment(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		p.Snapshot = cur.Snapshot
		b, created, err = s.Bookings.confirmPaidTx(ctx, tx, p, p.Snapshot, now)
		if errors.Is(err, repo.ErrOverlap) {
			lost = true
			return nil
		}
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return s.duplicate(ctx, p, receipt)
	}
	if err != nil {
		return Outcome{}, err
	}

	if !won {
		cur, err := repo.GetPayment(ctx, s.DB, p.ID)
		if err != nil {
			return Outcome{}, err
		}
		if cur.Status == domain.PaymentFailed {
			log.Error().Str("payment_id", cur.ID).Str("receipt", receipt).Str("failure_reason", cur.FailureReason).
				Msg("deposit received for a closed payment; refund due")
			s.notify(ctx, events.Event{
				Type:       events.PaymentDuplicate,
				CustomerID: cur.CustomerID,
				PaymentID:  cur.ID,
				Message:    "We received a deposit for a request that was already closed. It will be refunded.",
				Data:       map[string]string{"receipt": receipt, "amount": fmt.Sprint(cur.Amount), "draft_id": cur.DraftID},
			})
		}
		if cur.Status == domain.PaymentSuccess && cur.ReceiptCode == nil && receipt != "" {
			if _, err := repo.AttachReceipt(ctx, s.DB, cur.ID, receipt, now); err != nil {
				log.Warn().Err(err).Str("payment_id", cur.ID).Msg("late receipt not attached")
			} else {
				cur.ReceiptCode = &receipt
			}
		}
		return s.current(ctx, cur), nil
	}

	paymentTransitions.WithLabelValues(domain.PaymentSuccess).Inc()
	s.Poller.Cancel(p.ID)
	log.Info().Str("payment_id", p.ID).Str("draft_id", p.DraftID).Bool("slot_lost", lost).Msg("deposit settled")
	if lost {
		return s.lostSlot(ctx, p, p.Snapshot), nil
	}
	if created {
		bookingsConfirmed.Inc()
		s.Bookings.afterConfirm(ctx, b)
	}
	return Outcome{Tag: TagPaid, Message: "Deposit received. Your booking is confirmed.", Payment: p, Booking: b}, nil
}

// duplicate handles a success that the store refused. A receipt held by
// another draft is a replay. Otherwise the draft already has a successful
// payment and this one is a second charge to refund.
func (s *PaymentService) duplicate(ctx context.Context, p *domain.Payment, receipt string) (Outcome, error) {
	now := s.Clock.Now()
	if receipt != "" {
		if held, err := repo.FindPaymentByReceipt(ctx, s.DB, receipt); err == nil && held.ID != p.ID {
			if held.DraftID != p.DraftID {
				duplicatePayments.Inc()
				return Outcome{}, errors.Wrapf(ErrReceiptReplayed, "receipt %s", receipt)
			}
			if _, err := repo.MarkPaymentFailed(ctx, s.DB, p.ID, "receipt already recorded on this booking", now); err != nil {
				return Outcome{}, err
			}
			return s.current(ctx, held), nil
		}
	}

	won, err := repo.MarkPaymentFailed(ctx, s.DB, p.ID, "duplicate deposit; refund due", now)
	if err != nil {
		return Outcome{}, err
	}
	if won {
		duplicatePayments.Inc()
		paymentTransitions.WithLabelValues(domain.PaymentFailed).Inc()
		s.Poller.Cancel(p.ID)
		log.Error().Str("payment_id", p.ID).Str("draft_id", p.DraftID).Int64("amount", p.Amount).Str("receipt", receipt).
			Msg("second deposit received for an already paid booking; refund due")
		s.notify(ctx, events.Event{
			Type:       events.PaymentDuplicate,
			CustomerID: p.CustomerID,
			PaymentID:  p.ID,
			Message:    "We received an extra deposit for a booking that was already paid. It will be refunded.",
			Data:       map[string]string{"receipt": receipt, "amount": fmt.Sprint(p.Amount), "draft_id": p.DraftID},
		})
	}
	paid, err := repo.LatestPaymentForDraft(ctx, s.DB, p.DraftID)
	if err != nil {
		return Outcome{}, err
	}
	return s.current(ctx, paid), nil
}

// fail moves p to failed. Losing the transition reports the current state.
func (s *PaymentService) fail(ctx context.Context, p *domain.Payment, reason string) (Outcome, error) {
	won, err := repo.MarkPaymentFailed(ctx, s.DB, p.ID, reason, s.Clock.Now())
	if err != nil {
		return Outcome{}, err
	}
	if !won {
		cur, err := repo.GetPayment(ctx, s.DB, p.ID)
		if err != nil {
			return Outcome{}, err
		}
		return s.current(ctx, cur), nil
	}
	p.Status = domain.PaymentFailed
	p.PendingKey = nil
	p.FailureReason = reason
	paymentTransitions.WithLabelValues(domain.PaymentFailed).Inc()
	s.Poller.Cancel(p.ID)

	msg := "Your deposit was not completed: " + reason + ". Reply RESEND to get a new payment request."
	s.notify(ctx, events.Event{Type: events.PaymentFailed, CustomerID: p.CustomerID, PaymentID: p.ID, Message: msg})
	return Outcome{Tag: TagFailed, Message: msg, Error: reason, Payment: p}, nil
}

// lostSlot builds the outcome for a settled deposit whose slot was taken.
func (s *PaymentService) lostSlot(ctx context.Context, p *domain.Payment, snap domain.DraftSnapshot) Outcome {
	bookingConflicts.Inc()
	out := Outcome{
		Tag:         TagConflict,
		Message:     "Your deposit was received, but that time was just taken. Pick another time and we'll book it without charging you again.",
		Suggestions: []Slot{},
		Payment:     p,
	}
	if snap.StartsAt != nil && s.Availability != nil {
		av, err := s.Availability.Check(ctx, *snap.StartsAt, snap.Service)
		if err == nil {
			out.Suggestions = av.Suggestions
			out.DayFullyBooked = av.DayFullyBooked
		}
		if av.DayFullyBooked {
			out.Lookahead, _ = s.Availability.Lookahead(ctx, *snap.StartsAt, snap.Service)
		}
	}
	s.notify(ctx, events.Event{Type: events.BookingConflict, CustomerID: p.CustomerID, PaymentID: p.ID, Message: out.Message})
	return out
}

// current reports the state of an already settled or failed payment.
func (s *PaymentService) current(ctx context.Context, p *domain.Payment) Outcome {
	switch p.Status {
	case domain.PaymentSuccess:
		out := Outcome{Tag: TagPaid, Message: "Deposit received.", Payment: p}
		if b, err := repo.GetBookingByPayment(ctx, s.DB, p.ID); err == nil {
			out.Booking = b
			out.Message = "Deposit received. Your booking is confirmed."
		}
		return out
	case domain.PaymentFailed:
		return Outcome{Tag: TagFailed, Message: "Your deposit was not completed. Reply RESEND to try again.", Error: p.FailureReason, Payment: p}
	default:
		return Outcome{Tag: TagDepositInitiated, Message: "Waiting for you to confirm the payment on your phone.", Payment: p}
	}
}

// payerPhone picks the number to charge: explicit, then the stored payer,
// then the recipient when booking for oneself, then the customer id.
func (s *PaymentService) payerPhone(d *domain.Draft, explicit string) string {
	for _, c := range []string{explicit, d.PayerPhone} {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	if !d.ForSomeoneElse && d.RecipientPhone != "" {
		return d.RecipientPhone
	}
	return d.CustomerID
}

func (s *PaymentService) notify(ctx context.Context, e events.Event) {
	publish(ctx, s.Notifier, s.Clock, e)
}

// reference is the account reference shown on the customer's handset.
func reference(draftID string) string {
	ref := "BK" + strings.ToUpper(strings.ReplaceAll(draftID, "-", ""))
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}

func draftFromSnapshot(id, customerID string, snap domain.DraftSnapshot) *domain.Draft {
	d := &domain.Draft{ID: id, CustomerID: customerID}
	fillFromSnapshot(d, snap)
	d.Step = Step(d)
	return d
}

// fillFromSnapshot copies snapshot fields into the empty fields of d and
// reports whether anything changed.
func fillFromSnapshot(d *domain.Draft, snap domain.DraftSnapshot) bool {
	changed := false
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&d.Service, snap.Service)
	fill(&d.Date, snap.Date)
	fill(&d.Time, snap.Time)
	fill(&d.CustomerName, snap.CustomerName)
	fill(&d.RecipientName, snap.RecipientName)
	fill(&d.RecipientPhone, snap.RecipientPhone)
	if d.StartsAt == nil && snap.StartsAt != nil && d.Date == snap.Date && d.Time == snap.Time {
		at := *snap.StartsAt
		d.StartsAt = &at
		changed = true
	}
	if !d.ForSomeoneElse && snap.ForSomeoneElse && changed {
		d.ForSomeoneElse = true
	}
	if changed {
		d.Step = Step(d)
	}
	return changed
}
