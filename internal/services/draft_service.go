// Package services – DraftService
//
// DraftService owns the one in-progress booking per customer. Drafts change
// only through Merge, which applies the fields present in an extraction and
// writes the row with a compare-and-swap on its version. A merge that loses
// the race re-reads the draft and applies the same fields again, so
// concurrent turns never drop each other's updates.
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
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
)

// DraftService manages booking drafts.
type DraftService struct {
	DB         *gorm.DB
	Clock      clock.Clock
	Normalizer *timeparse.Normalizer

	// MaxRetries bounds compare-and-swap attempts per merge.
	MaxRetries int
}

// NewDraftService constructs a DraftService.
func NewDraftService(db *gorm.DB, clk clock.Clock, n *timeparse.Normalizer) *DraftService {
	return &DraftService{DB: db, Clock: clock.OrReal(clk), Normalizer: n, MaxRetries: 5}
}

// GetOrCreate returns the customer's draft, creating an empty one at step
// collect_service and version 1 on first use.
func (s *DraftService) GetOrCreate(ctx context.Context, customerID string) (*domain.Draft, error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "GetOrCreate", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	d, created, err := repo.GetOrCreateDraft(ctx, s.DB, customerID, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("created", created))
	return d, nil
}

// Get returns the customer's draft or ErrDraftNotFound.
func (s *DraftService) Get(ctx context.Context, customerID string) (*domain.Draft, error) {
	d, err := repo.GetDraftByCustomer(ctx, s.DB, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrDraftNotFound
	}
	return d, err
}

// Delete removes the customer's draft. It reports whether one existed.
func (s *DraftService) Delete(ctx context.Context, customerID string) (bool, error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	return repo.DeleteDraftByCustomer(ctx, s.DB, customerID)
}

// Merge applies every field present in rec to the customer's draft and
// leaves the rest untouched. When date and time are both set the start
// instant is re-derived; a parse failure clears it and is logged, but the
// merge still succeeds. changed is false when rec carried nothing new, in
// which case the draft is returned as stored.
func (s *DraftService) Merge(ctx context.Context, customerID string, rec extract.Record) (d *domain.Draft, changed bool, err error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "Merge", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	attempts := s.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		d, err = s.GetOrCreate(ctx, customerID)
		if err != nil {
			return nil, false, err
		}
		if !s.apply(d, rec) {
			return d, false, nil
		}
		err = repo.UpdateDraftCAS(ctx, s.DB, d, s.Clock.Now())
		if err == nil {
			span.SetAttributes(attribute.Int64("draft.version", d.Version), attribute.String("draft.step", d.Step))
			return d, true, nil
		}
		if !errors.Is(err, repo.ErrStaleVersion) {
			return nil, false, err
		}
		log.Debug().Str("customer_id", customerID).Int("attempt", i+1).Msg("draft merge lost race; retrying")
	}
	return nil, false, errors.Wrapf(err, "merge draft after %d attempts", attempts)
}

// apply copies rec onto d and refreshes derived fields. It reports whether
// anything changed.
func (s *DraftService) apply(d *domain.Draft, rec extract.Record) bool {
	before := *d
	setString(&d.Service, rec.Service)
	setString(&d.Date, rec.Date)
	setString(&d.Time, rec.Time)
	setString(&d.CustomerName, rec.Name)
	setString(&d.RecipientName, rec.RecipientName)
	setString(&d.RecipientPhone, rec.RecipientPhone)
	if rec.IsForSomeoneElse != nil {
		d.ForSomeoneElse = *rec.IsForSomeoneElse
	}

	if d.Date != before.Date || d.Time != before.Time || (d.StartsAt == nil && d.Date != "" && d.Time != "") {
		s.normalize(d)
	}
	d.Step = Step(d)
	return !sameDraft(before, *d)
}

func (s *DraftService) normalize(d *domain.Draft) {
	d.StartsAt = nil
	if d.Date == "" || d.Time == "" || s.Normalizer == nil {
		return
	}
	inst, err := s.Normalizer.Normalize(d.Date, d.Time, s.Clock.Now())
	if err != nil {
		log.Info().Err(err).Str("draft_id", d.ID).Str("date", d.Date).Str("time", d.Time).Msg("draft date/time not normalized")
		return
	}
	at := inst.UTC
	d.StartsAt = &at
}

// ApplyRecipientDefault fills the recipient name from the customer's own
// name when the booking is for themselves, and persists it. It is a no-op
// otherwise.
func (s *DraftService) ApplyRecipientDefault(ctx context.Context, d *domain.Draft) error {
	if d.ForSomeoneElse || d.RecipientName != "" || d.CustomerName == "" {
		return nil
	}
	for i := 0; i < max(s.MaxRetries, 1); i++ {
		d.RecipientName = d.CustomerName
		d.Step = Step(d)
		err := repo.UpdateDraftCAS(ctx, s.DB, d, s.Clock.Now())
		if !errors.Is(err, repo.ErrStaleVersion) {
			return err
		}
		fresh, gerr := repo.GetDraft(ctx, s.DB, d.ID)
		if gerr != nil {
			return gerr
		}
		*d = *fresh
		if d.ForSomeoneElse || d.RecipientName != "" || d.CustomerName == "" {
			return nil
		}
	}
	return errors.Wrap(repo.ErrStaleVersion, "apply recipient default")
}

// MissingFields lists, in prompt order, the fields d still needs. Service,
// date, time and name are always required; recipient name and phone are
// required only when booking for someone else. A booking for oneself takes
// the customer's name as recipient, so it is never reported missing then.
func MissingFields(d *domain.Draft) []string {
	missing := []string{}
	if d.Service == "" {
		missing = append(missing, domain.FieldService)
	}
	if d.Date == "" {
		missing = append(missing, domain.FieldDate)
	}
	if d.Time == "" {
		missing = append(missing, domain.FieldTime)
	}
	if d.CustomerName == "" {
		missing = append(missing, domain.FieldName)
	}
	if d.ForSomeoneElse {
		if d.RecipientName == "" {
			missing = append(missing, domain.FieldRecipientName)
		}
		if d.RecipientPhone == "" {
			missing = append(missing, domain.FieldRecipientPhone)
		}
	}
	return missing
}

var stepByField = map[string]string{
	domain.FieldService:        domain.StepCollectService,
	domain.FieldDate:           domain.StepCollectDate,
	domain.FieldTime:           domain.StepCollectTime,
	domain.FieldName:           domain.StepCollectName,
	domain.FieldRecipientName:  domain.StepCollectRecipientName,
	domain.FieldRecipientPhone: domain.StepCollectRecipientPhone,
}

// Step returns the workflow tag for d: the first missing field's collect
// step, or ready.
func Step(d *domain.Draft) string {
	if m := MissingFields(d); len(m) > 0 {
		return stepByField[m[0]]
	}
	return domain.StepReady
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func sameDraft(a, b domain.Draft) bool {
	if (a.StartsAt == nil) != (b.StartsAt == nil) {
		return false
	}
	if a.StartsAt != nil && !a.StartsAt.Equal(*b.StartsAt) {
		return false
	}
	a.StartsAt, b.StartsAt = nil, nil
	return a == b
}
