// Package app assembles the booking engine from configuration: the gateway,
// notifier, verification limiter and reminder scheduler are chosen from what
// is configured, and the services are wired to them and to each other.
//
// Infrastructure can be overridden through Options, which tests use to plug
// in a sandbox gateway and a mock clock.
package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/clock"
	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/events"
	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/gateway"
	"github.com/tbourn/go-booking-backend/internal/http/handlers"
	"github.com/tbourn/go-booking-backend/internal/ratelimit"
	"github.com/tbourn/go-booking-backend/internal/reminders"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/services"
	"github.com/tbourn/go-booking-backend/internal/timeparse"
)

// resumeBatch bounds how many pending payments are re-watched on start.
const resumeBatch = 500

// Options overrides infrastructure. Zero fields are built from the config.
type Options struct {
	Clock     clock.Clock
	Gateway   gateway.Gateway
	Limiter   ratelimit.Limiter
	Reminders reminders.Scheduler
	Notifier  events.Notifier
	// Catalog replaces CATALOG_PATH; nil falls back to the file, then to
	// the built-in services.
	Catalog []domain.Service
}

// App holds the wired services.
type App struct {
	Cfg      config.Config
	DB       *gorm.DB
	Clock    clock.Clock
	Gateway  gateway.Gateway
	Notifier events.Notifier

	Catalog      *services.Catalog
	Availability *services.AvailabilityService
	Drafts       *services.DraftService
	Bookings     *services.BookingService
	Payments     *services.PaymentService
	Stale        *services.StaleCollector
	Lifecycle    *services.Lifecycle
	Intents      *services.IntentRouter
	Poller       *services.Poller
	Handlers     *handlers.Handlers

	closers []func() error
}

// New builds the App. ctx bounds the payment poller; cancelling it stops
// every background status check.
func New(ctx context.Context, cfg config.Config, db *gorm.DB, opt Options) (*App, error) {
	a := &App{Cfg: cfg, DB: db, Clock: clock.OrReal(opt.Clock)}
	loc := cfg.Location()

	a.Notifier = opt.Notifier
	if a.Notifier == nil {
		a.Notifier = a.buildNotifier()
	}
	a.Gateway = opt.Gateway
	if a.Gateway == nil {
		a.Gateway = buildGateway(cfg.Gateway)
	}
	limiter := opt.Limiter
	if limiter == nil {
		limiter = a.buildLimiter()
	}
	sched := opt.Reminders
	if sched == nil {
		sched = a.buildScheduler()
	}

	a.Catalog = services.NewCatalog(db, cfg.Business.DefaultDuration)
	items := opt.Catalog
	if items == nil && cfg.Business.CatalogPath != "" {
		var err error
		if items, err = services.ReadCatalogFile(cfg.Business.CatalogPath); err != nil {
			return nil, err
		}
	}
	if err := a.Catalog.Seed(ctx, items); err != nil {
		return nil, err
	}

	a.Availability = services.NewAvailabilityService(db, a.Catalog, a.Clock, loc, cfg.Business)
	a.Drafts = services.NewDraftService(db, a.Clock, timeparse.New(loc))
	a.Bookings = &services.BookingService{
		DB:           db,
		Catalog:      a.Catalog,
		Availability: a.Availability,
		Clock:        a.Clock,
		Loc:          loc,
		ChangeCutoff: cfg.Business.ChangeCutoff,
		Reminders:    sched,
		Notifier:     a.Notifier,
	}
	a.Payments = &services.PaymentService{
		DB:           db,
		Gateway:      a.Gateway,
		Clock:        a.Clock,
		Catalog:      a.Catalog,
		Bookings:     a.Bookings,
		Availability: a.Availability,
		Limiter:      limiter,
		Notifier:     a.Notifier,
		Region:       cfg.Gateway.DefaultRegion,
		Cfg:          cfg.Payment,
	}
	a.Poller = services.NewPoller(ctx, a.Gateway, cfg.Payment.PollAttempts, cfg.Payment.PollInterval)
	a.Poller.OnResult = func(ctx context.Context, cb gateway.Callback) {
		if _, err := a.Payments.Callback(ctx, cb); err != nil {
			log.Warn().Err(err).Str("correlation_id", cb.CorrelationID).Msg("polled result not applied")
		}
	}
	a.Payments.Poller = a.Poller
	a.closers = append(a.closers, func() error { a.Poller.Stop(); return nil })

	a.Stale = &services.StaleCollector{DB: db, Clock: a.Clock, Cfg: cfg.Stale}
	a.Lifecycle = &services.Lifecycle{
		Drafts:       a.Drafts,
		Catalog:      a.Catalog,
		Availability: a.Availability,
		Payments:     a.Payments,
	}
	a.Intents = &services.IntentRouter{Payments: a.Payments, Drafts: a.Drafts}

	a.Handlers = handlers.New(handlers.Deps{
		Lifecycle:      a.Lifecycle,
		Drafts:         a.Drafts,
		Stale:          a.Stale,
		Availability:   a.Availability,
		Payments:       a.Payments,
		Intents:        a.Intents,
		Bookings:       a.Bookings,
		Validator:      extract.NewValidator(),
		Normalizer:     timeparse.New(loc),
		Clock:          a.Clock,
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	return a, nil
}

// ResumePolling re-watches payments still pending from before a restart.
// It returns how many watches were started.
func (a *App) ResumePolling(ctx context.Context) (int, error) {
	since := a.Clock.Now().Add(-a.Cfg.Payment.MaxPendingAge)
	pending, err := repo.ListPendingPayments(ctx, a.DB, since, resumeBatch)
	if err != nil {
		return 0, errors.Wrap(err, "list pending payments")
	}
	n := 0
	for _, p := range pending {
		if p.CorrelationID == nil {
			continue
		}
		a.Poller.Watch(p.ID, *p.CorrelationID)
		n++
	}
	return n, nil
}

// Close stops the poller and releases broker connections.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	a.closers = nil
	return errs
}

// RedisOpt returns the asynq connection options for the configured Redis.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func buildGateway(cfg config.GatewayConfig) gateway.Gateway {
	if cfg.Mode == "daraja" {
		return gateway.NewDaraja(cfg)
	}
	log.Warn().Dur("auto_approve", cfg.SandboxApprove).Msg("using sandbox payment gateway")
	return gateway.NewSandbox(cfg.SandboxApprove)
}

func (a *App) buildNotifier() events.Notifier {
	if !a.Cfg.AMQP.Enabled() {
		return events.LogNotifier{}
	}
	pub, err := events.NewAMQPPublisher(a.Cfg.AMQP.URL, a.Cfg.AMQP.Exchange)
	if err != nil {
		log.Warn().Err(err).Msg("amqp unavailable, events are only logged")
		return events.LogNotifier{}
	}
	a.closers = append(a.closers, pub.Close)
	return events.Multi{events.LogNotifier{}, pub}
}

func (a *App) buildLimiter() ratelimit.Limiter {
	max, window := a.Cfg.Payment.VerifyMaxAttempts, a.Cfg.Payment.VerifyWindow
	if !a.Cfg.Redis.Enabled() {
		return ratelimit.NewMemory(max, window)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         a.Cfg.Redis.Addr,
		Password:     a.Cfg.Redis.Password,
		DB:           a.Cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedis(client, "verify:", max, window)
}

func (a *App) buildScheduler() reminders.Scheduler {
	if a.Cfg.Redis.Enabled() {
		s := reminders.NewAsynqScheduler(RedisOpt(a.Cfg.Redis))
		a.closers = append(a.closers, s.Close)
		return s
	}
	s := reminders.NewLocalScheduler(a.Notifier)
	s.Now = a.Clock.Now
	a.closers = append(a.closers, func() error { s.Stop(); return nil })
	return s
}
