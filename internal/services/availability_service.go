// Package services – AvailabilityService
//
// AvailabilityService answers whether a service can start at an instant and,
// when it cannot, which nearby slots can. Only confirmed bookings occupy
// time. Intervals are half-open, so a booking ending at 14:00 does not block
// one starting at 14:00. Answers are advisory; the confirm path re-checks
// under a lock.
package services

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
)

// Availability is the answer for one requested instant.
type Availability struct {
	Available      bool          `json:"available"`
	Suggestions    []Slot        `json:"suggestions"`
	DayFullyBooked bool          `json:"day_fully_booked"`
	Service        string        `json:"service"`
	Duration       time.Duration `json:"-"`
}

// AvailabilityService checks slots against confirmed bookings.
type AvailabilityService struct {
	DB      *gorm.DB
	Catalog *Catalog
	Clock   clock.Clock
	Loc     *time.Location

	Open           time.Duration // offset from local midnight
	Close          time.Duration
	Granularity    time.Duration
	MaxSuggestions int
	LookaheadDays  int
	LookaheadWant  int
	PerDay         int
}

// NewAvailabilityService builds a service from business settings.
func NewAvailabilityService(db *gorm.DB, cat *Catalog, clk clock.Clock, loc *time.Location, b config.BusinessConfig) *AvailabilityService {
	open, _ := config.ParseClock(b.Open)
	closing, _ := config.ParseClock(b.Close)
	return &AvailabilityService{
		DB:             db,
		Catalog:        cat,
		Clock:          clock.OrReal(clk),
		Loc:            loc,
		Open:           open,
		Close:          closing,
		Granularity:    b.SlotGranularity,
		MaxSuggestions: b.MaxSuggestions,
		LookaheadDays:  b.LookaheadDays,
		LookaheadWant:  b.LookaheadWant,
		PerDay:         b.PerDayDisplay,
	}
}

// Check reports whether serviceName can start at start. When it cannot, up
// to MaxSuggestions free slots on the same day are returned, closest to
// start first with ties going to the later slot. DayFullyBooked is set when
// the day has no free slot at all.
func (s *AvailabilityService) Check(ctx context.Context, start time.Time, serviceName string) (Availability, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "Check",
		trace.WithAttributes(
			attribute.String("service", serviceName),
			attribute.String("start", start.UTC().Format(time.RFC3339)),
		),
	)
	defer span.End()

	dur := s.Catalog.Duration(serviceName)
	res := Availability{Service: serviceName, Duration: dur, Suggestions: []Slot{}}

	open, closing := s.window(start)
	busy, err := repo.ConfirmedInWindow(ctx, s.DB, open, closing)
	if err != nil {
		return res, err
	}

	end := start.Add(dur)
	inWindow := !start.Before(open) && !end.After(closing)
	if inWindow && !start.Before(s.Clock.Now()) && !overlapsAny(busy, start, end) {
		res.Available = true
		return res, nil
	}

	free := s.freeSlots(busy, open, closing, dur)
	if len(free) == 0 {
		res.DayFullyBooked = true
		return res, nil
	}
	sort.SliceStable(free, func(i, j int) bool {
		di, dj := absDur(free[i].Sub(start)), absDur(free[j].Sub(start))
		if di != dj {
			return di < dj
		}
		return free[i].After(free[j])
	})
	if s.MaxSuggestions > 0 && len(free) > s.MaxSuggestions {
		free = free[:s.MaxSuggestions]
	}
	for _, t := range free {
		res.Suggestions = append(res.Suggestions, s.slot(t))
	}
	span.SetAttributes(attribute.Int("suggestions", len(res.Suggestions)))
	return res, nil
}

// Lookahead scans the days after from for free slots, stopping after
// LookaheadDays days or once LookaheadWant days with room are found. Each
// day lists its earliest PerDay slots.
func (s *AvailabilityService) Lookahead(ctx context.Context, from time.Time, serviceName string) ([]DaySlots, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "Lookahead", trace.WithAttributes(attribute.String("service", serviceName)))
	defer span.End()

	dur := s.Catalog.Duration(serviceName)
	local := from.In(s.Loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Loc)

	var out []DaySlots
	for i := 1; i <= s.LookaheadDays && len(out) < s.LookaheadWant; i++ {
		d := day.AddDate(0, 0, i)
		open, closing := s.window(d)
		busy, err := repo.ConfirmedInWindow(ctx, s.DB, open, closing)
		if err != nil {
			return nil, err
		}
		free := s.freeSlots(busy, open, closing, dur)
		if len(free) == 0 {
			continue
		}
		if s.PerDay > 0 && len(free) > s.PerDay {
			free = free[:s.PerDay]
		}
		ds := DaySlots{Date: d.Format(timeparse.DateLayout)}
		for _, t := range free {
			ds.Slots = append(ds.Slots, s.slot(t))
		}
		out = append(out, ds)
	}
	return out, nil
}

// window returns the business hours of t's local calendar day in UTC.
func (s *AvailabilityService) window(t time.Time) (time.Time, time.Time) {
	local := t.In(s.Loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Loc)
	return midnight.Add(s.Open).UTC(), midnight.Add(s.Close).UTC()
}

// freeSlots lists candidate starts within [open, closing) that fit before
// closing, are not in the past and overlap no busy interval, in time order.
func (s *AvailabilityService) freeSlots(busy []domain.Booking, open, closing time.Time, dur time.Duration) []time.Time {
	step := s.Granularity
	if step <= 0 {
		step = 30 * time.Minute
	}
	now := s.Clock.Now()
	var out []time.Time
	for t := open; !t.Add(dur).After(closing); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(busy, t, t.Add(dur)) {
			out = append(out, t)
		}
	}
	return out
}

func (s *AvailabilityService) slot(t time.Time) Slot {
	local := t.In(s.Loc)
	return Slot{Start: t.UTC(), Date: local.Format(timeparse.DateLayout), Time: local.Format(timeparse.TimeLayout)}
}

func overlapsAny(busy []domain.Booking, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
