// Package worker runs the periodic background jobs of the booking service.
package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Collector deletes stale drafts and reports how many it removed.
type Collector interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper runs a Collector on a cron schedule. Overlapping runs are skipped
// and a panicking run is logged and recovered.
type Sweeper struct {
	Collector Collector
	Timeout   time.Duration

	cron *cron.Cron
}

// NewSweeper parses spec ("@every 15m", "*/10 * * * *", ...) and returns a
// Sweeper that is not yet running.
func NewSweeper(c Collector, spec string, timeout time.Duration) (*Sweeper, error) {
	logger := cronLogger{l: log.With().Str("component", "sweeper").Logger()}
	s := &Sweeper{
		Collector: c,
		Timeout:   timeout,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, errors.Wrapf(err, "sweep schedule %q", spec)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	s.cron.Start()
	log.Info().Msg("stale draft sweeper started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Msg("stale draft sweeper stopped")
	return nil
}

// RunOnce performs a single sweep bounded by Timeout.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	start := time.Now()
	n, err := s.Collector.Sweep(ctx)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Int("removed", n).Dur("took", time.Since(start)).Msg("stale draft sweep")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
