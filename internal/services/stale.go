// Package services – StaleCollector
//
// A draft is stale when:
//
//	every payment it has failed and it was last touched over FailedGrace ago
//	it has no payment and was last touched over NoPaymentAge ago
//	it was created over HardCeiling ago, whatever its payments
//
// A draft with a pending payment is never stale. Deleting a stale draft keeps
// its payment history.
package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// Staleness rules, used as metric labels.
const (
	RuleNone        = ""
	RuleFailedOnly  = "failed_only"
	RuleNoPayment   = "no_payment"
	RuleHardCeiling = "hard_ceiling"
)

const sweepBatchSize = 200

// StaleCollector finds and deletes abandoned drafts.
type StaleCollector struct {
	DB    *gorm.DB
	Clock clock.Clock
	Cfg   config.StaleConfig

	batch int // page size for Sweep; 0 is sweepBatchSize
}

// IsStale reports whether d may be deleted, and under which rule.
func (s *StaleCollector) IsStale(ctx context.Context, d *domain.Draft) (bool, string, error) {
	sum, err := repo.SummarizePayments(ctx, s.DB, d.ID)
	if err != nil {
		return false, RuleNone, err
	}
	rule := s.ruleName(d, sum)
	return rule != RuleNone, rule, nil
}

func (s *StaleCollector) ruleName(d *domain.Draft, sum repo.PaymentSummary) string {
	if sum.Pending > 0 {
		return RuleNone
	}
	now := s.Clock.Now()
	switch {
	case now.Sub(d.CreatedAt) > s.Cfg.HardCeiling:
		return RuleHardCeiling
	case sum.Total > 0 && sum.Failed == sum.Total && now.Sub(d.UpdatedAt) > s.Cfg.FailedGrace:
		return RuleFailedOnly
	case sum.Total == 0 && now.Sub(d.UpdatedAt) > s.Cfg.NoPaymentAge:
		return RuleNoPayment
	}
	return RuleNone
}

// CleanupIfStale deletes the customer's draft when it is stale. It reports
// whether a draft was deleted. A draft that changed or gained a pending
// payment since it was read is left alone.
func (s *StaleCollector) CleanupIfStale(ctx context.Context, customerID string) (bool, error) {
	tr := otel.Tracer("services/StaleCollector")
	ctx, span := tr.Start(ctx, "CleanupIfStale", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	d, err := repo.GetDraftByCustomer(ctx, s.DB, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.collect(ctx, d)
}

func (s *StaleCollector) collect(ctx context.Context, d *domain.Draft) (bool, error) {
	stale, rule, err := s.IsStale(ctx, d)
	if err != nil || !stale {
		return false, err
	}
	deleted, err := repo.DeleteDraftIfIdle(ctx, s.DB, d.ID, d.Version)
	if err != nil {
		return false, err
	}
	if deleted {
		draftsSwept.WithLabelValues(rule).Inc()
		log.Info().Str("draft_id", d.ID).Str("customer_id", d.CustomerID).Str("rule", rule).Msg("stale draft deleted")
	}
	return deleted, nil
}

// Sweep deletes every stale draft and returns how many were removed.
// Candidates are paged by id, so drafts kept by a successful payment never
// hide later ones.
func (s *StaleCollector) Sweep(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/StaleCollector")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	now := s.Clock.Now()
	idle := s.Cfg.FailedGrace
	if s.Cfg.NoPaymentAge < idle {
		idle = s.Cfg.NoPaymentAge
	}

	batch := s.batch
	if batch <= 0 {
		batch = sweepBatchSize
	}

	removed := 0
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		candidates, err := repo.ListSweepCandidates(ctx, s.DB, now.Add(-idle), now.Add(-s.Cfg.HardCeiling), after, batch)
		if err != nil {
			return removed, err
		}
		for i := range candidates {
			d := &candidates[i]
			ok, err := s.collect(ctx, d)
			if err != nil {
				log.Warn().Err(err).Str("draft_id", d.ID).Msg("stale check failed")
				continue
			}
			if ok {
				removed++
			}
		}
		if len(candidates) < batch {
			break
		}
		after = candidates[len(candidates)-1].ID
	}
	span.SetAttributes(attribute.Int("removed", removed))
	return removed, nil
}
