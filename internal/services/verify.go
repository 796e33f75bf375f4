package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/gateway"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// VerifyByReceipt settles the customer's pending deposit from a receipt code
// they typed. Checks run cheapest first: rate limit, receipt shape, a pending
// payment to verify, replay of a receipt already used elsewhere, age of the
// request, and finally the gateway. A gateway outage leaves the payment
// pending so the customer can retry.
func (s *PaymentService) VerifyByReceipt(ctx context.Context, customerID, text string) (Outcome, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "VerifyByReceipt", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	if s.Limiter != nil {
		ok, wait, err := s.Limiter.Allow(ctx, customerID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("customer_id", customerID).Msg("verification limiter unavailable; allowing attempt")
		case !ok:
			verifyRejections.WithLabelValues("rate_limited").Inc()
			return Outcome{}, &RateLimitError{RetryAfter: wait}
		}
	}

	receipt := gateway.NormalizeReceipt(text)
	if !gateway.ValidReceipt(receipt) {
		verifyRejections.WithLabelValues("format").Inc()
		return Outcome{}, ErrReceiptFormat
	}

	p, err := repo.PendingPaymentForCustomer(ctx, s.DB, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		if held, herr := repo.FindPaymentByReceipt(ctx, s.DB, receipt); herr == nil &&
			held.CustomerID == customerID && held.Status == domain.PaymentSuccess {
			return s.current(ctx, held), nil
		}
		verifyRejections.WithLabelValues("no_pending").Inc()
		return Outcome{}, ErrPaymentNotFound
	}
	if err != nil {
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("payment.id", p.ID))

	if held, herr := repo.FindPaymentByReceipt(ctx, s.DB, receipt); herr == nil &&
		held.Status == domain.PaymentSuccess && held.DraftID != p.DraftID {
		verifyRejections.WithLabelValues("replay").Inc()
		log.Warn().Str("customer_id", customerID).Str("payment_id", p.ID).Str("held_by", held.ID).Msg("receipt replay rejected")
		return Outcome{}, ErrReceiptReplayed
	}

	sent := p.CreatedAt
	if p.PushStartedAt != nil {
		sent = *p.PushStartedAt
	}
	if s.Clock.Now().Sub(sent) > s.Cfg.MaxPendingAge {
		verifyRejections.WithLabelValues("expired").Inc()
		return Outcome{}, ErrPaymentExpired
	}
	if p.CorrelationID == nil {
		verifyRejections.WithLabelValues("not_sent").Inc()
		return Outcome{}, errors.Wrap(ErrPaymentNotFound, "the payment request was never delivered")
	}

	ok, err := s.Gateway.Verify(ctx, *p.CorrelationID, receipt)
	if err != nil {
		verifyRejections.WithLabelValues("gateway").Inc()
		return Outcome{}, gatewayFailure(err, "verify receipt")
	}
	if !ok {
		verifyRejections.WithLabelValues("mismatch").Inc()
		return Outcome{}, ErrReceiptMismatch
	}
	return s.settle(ctx, p, receipt)
}
