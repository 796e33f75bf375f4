package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/events"
	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/gateway"
	"github.com/tbourn/go-booking-backend/internal/ratelimit"
	"github.com/tbourn/go-booking-backend/internal/reminders"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
)

// ---------- test helpers ----------

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Notify(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.got {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	DB        *gorm.DB
	Clock     *clock.Mock
	Loc       *time.Location
	GW        *gateway.Sandbox
	Events    *recorder
	Reminders *reminders.LocalScheduler
	Limiter   *ratelimit.Memory

	Catalog   *Catalog
	Avail     *AvailabilityService
	Drafts    *DraftService
	Bookings  *BookingService
	Payments  *PaymentService
	Stale     *StaleCollector
	Lifecycle *Lifecycle
	Intents   *IntentRouter
}

var testBusiness = config.BusinessConfig{
	Timezone:        "Africa/Nairobi",
	Open:            "09:00",
	Close:           "17:00",
	SlotGranularity: 30 * time.Minute,
	DefaultDuration: time.Hour,
	MaxSuggestions:  3,
	LookaheadDays:   7,
	LookaheadWant:   3,
	PerDayDisplay:   3,
	ChangeCutoff:    72 * time.Hour,
}

var testPayment = config.PaymentConfig{
	VerifyMaxAttempts: 3,
	VerifyWindow:      10 * time.Minute,
	MaxPendingAge:     24 * time.Hour,
	PushInflightTTL:   time.Minute,
	PollAttempts:      0,
	PollInterval:      time.Second,
}

var testStale = config.StaleConfig{
	FailedGrace:   time.Hour,
	NoPaymentAge:  48 * time.Hour,
	HardCeiling:   7 * 24 * time.Hour,
	SweepSchedule: "@every 15m",
}

// newTestDB opens a WAL database on disk. Memory databases with a shared
// cache report table locks under concurrent writers instead of waiting.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "bookings.db"))
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)
	require.NoError(t, repo.AutoMigrate(db))
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)

	f := &fixture{
		DB:     newTestDB(t),
		Clock:  clock.NewMock(time.Date(2025, 12, 1, 9, 0, 0, 0, loc).UTC()),
		Loc:    loc,
		GW:     gateway.NewSandbox(0),
		Events: &recorder{},
	}
	f.Reminders = reminders.NewLocalScheduler(f.Events)
	f.Reminders.Now = f.Clock.Now
	t.Cleanup(f.Reminders.Stop)
	f.Limiter = ratelimit.NewMemory(3, 10*time.Minute)
	f.Limiter.Now = f.Clock.Now

	f.Catalog = NewCatalog(f.DB, time.Hour)
	require.NoError(t, f.Catalog.Seed(context.Background(), nil))
	f.Avail = NewAvailabilityService(f.DB, f.Catalog, f.Clock, loc, testBusiness)
	f.Drafts = NewDraftService(f.DB, f.Clock, timeparse.New(loc))
	f.Bookings = &BookingService{
		DB:           f.DB,
		Catalog:      f.Catalog,
		Availability: f.Avail,
		Clock:        f.Clock,
		Loc:          loc,
		ChangeCutoff: testBusiness.ChangeCutoff,
		Reminders:    f.Reminders,
		Notifier:     f.Events,
	}
	f.Payments = &PaymentService{
		DB:           f.DB,
		Gateway:      f.GW,
		Clock:        f.Clock,
		Catalog:      f.Catalog,
		Bookings:     f.Bookings,
		Availability: f.Avail,
		Limiter:      f.Limiter,
		Notifier:     f.Events,
		Region:       "KE",
		Cfg:          testPayment,
	}
	f.Stale = &StaleCollector{DB: f.DB, Clock: f.Clock, Cfg: testStale}
	f.Lifecycle = &Lifecycle{Drafts: f.Drafts, Catalog: f.Catalog, Availability: f.Avail, Payments: f.Payments}
	f.Intents = &IntentRouter{Payments: f.Payments, Drafts: f.Drafts}
	return f
}

func str(s string) *string { return &s }

func boolp(b bool) *bool { return &b }

// local returns the UTC instant of a Nairobi wall-clock time on 2025-12-10.
func (f *fixture) local(hh, mm int) time.Time {
	return time.Date(2025, 12, 10, hh, mm, 0, 0, f.Loc).UTC()
}

// completeDraft stores a ready Gold draft for customerID at hh:mm on
// 2025-12-10, paid from the customer's own number.
func (f *fixture) completeDraft(t *testing.T, customerID, hhmm string) *domain.Draft {
	t.Helper()
	d, changed, err := f.Drafts.Merge(context.Background(), customerID, extract.Record{
		Service:        str("gold"),
		Date:           str("2025-12-10"),
		Time:           str(hhmm),
		Name:           str("Amina"),
		RecipientPhone: str("0712345678"),
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, f.Drafts.ApplyRecipientDefault(context.Background(), d))
	require.Empty(t, MissingFields(d))
	require.NotNil(t, d.StartsAt)
	return d
}

// confirmed writes a confirmed booking directly.
func (f *fixture) confirmed(t *testing.T, customerID string, start time.Time, dur time.Duration) *domain.Booking {
	t.Helper()
	now := f.Clock.Now()
	b := &domain.Booking{
		CustomerID:  customerID,
		Service:     "Silver",
		StartsAt:    start,
		EndsAt:      start.Add(dur),
		DurationMin: int(dur / time.Minute),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := f.DB.Transaction(func(tx *gorm.DB) error {
		if err := repo.LockDays(tx, f.Bookings.days(b.StartsAt, b.EndsAt), now); err != nil {
			return err
		}
		return repo.InsertConfirmed(tx, b)
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) countPayments(t *testing.T, draftID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.DB.Model(&domain.Payment{}).Where("draft_id = ?", draftID).Count(&n).Error)
	return n
}

func (f *fixture) countBookings(t *testing.T, customerID string) int64 {
	t.Helper()
	n, err := repo.CountBookings(context.Background(), f.DB, customerID)
	require.NoError(t, err)
	return n
}
