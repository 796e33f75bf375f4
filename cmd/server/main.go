// Command server runs the booking API, the payment poller, the stale draft
// sweeper and, when Redis is configured, the reminder worker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-booking-backend/internal/app"
	"github.com/tbourn/go-booking-backend/internal/config"
	httpapi "github.com/tbourn/go-booking-backend/internal/http"
	"github.com/tbourn/go-booking-backend/internal/observability"
	"github.com/tbourn/go-booking-backend/internal/reminders"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/sysutil"
	"github.com/tbourn/go-booking-backend/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

const shutdownTimeout = 15 * time.Second

// @title           Booking Backend API
// @version         1.0
// @description     Deposit-backed booking lifecycle: conversational drafts, slot availability,
// @description     mobile-money deposits and booking management.
//
// @BasePath  /api/v1
// @schemes   http https
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION")),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(version, "dev"))
	if err != nil {
		return errors.Wrap(err, "otel")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		return errors.Wrap(err, "migrate")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	a, err := app.New(ctx, cfg, db, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("closing app")
		}
	}()

	if n, err := a.ResumePolling(ctx); err != nil {
		log.Warn().Err(err).Msg("could not resume payment polling")
	} else if n > 0 {
		log.Info().Int("payments", n).Msg("resumed polling pending payments")
	}

	if cfg.Redis.Enabled() {
		rs := reminders.NewServer(app.RedisOpt(cfg.Redis))
		if err := rs.Start(reminders.NewServeMux(a.Notifier)); err != nil {
			return errors.Wrap(err, "start reminder worker")
		}
		defer rs.Shutdown()
	}

	sweeper, err := worker.NewSweeper(a.Stale, cfg.Stale.SweepSchedule, time.Minute)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.Handlers, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("gateway", cfg.Gateway.Mode).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			_ = srv.Close()
			return errors.Wrap(err, "http shutdown")
		}
		return nil
	})
	return g.Wait()
}
