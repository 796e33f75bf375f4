package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-booking-backend/internal/gateway"
)

// Poller checks the gateway for the outcome of pushed payments in the
// background, in case the callback is slow or never arrives. Each watch
// makes at most Attempts queries, Interval apart, and stops early on a
// terminal state or when cancelled. Terminal states are handed to OnResult
// as if the gateway had called back.
type Poller struct {
	Gateway  gateway.Gateway
	Attempts int
	Interval time.Duration
	OnResult func(ctx context.Context, cb gateway.Callback)

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	jobs    map[string]context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewPoller returns a Poller bound to ctx; cancelling ctx cancels every
// watch.
func NewPoller(ctx context.Context, gw gateway.Gateway, attempts int, interval time.Duration) *Poller {
	base, stop := context.WithCancel(ctx)
	return &Poller{
		Gateway:  gw,
		Attempts: attempts,
		Interval: interval,
		base:     base,
		stop:     stop,
		jobs:     map[string]context.CancelFunc{},
	}
}

// Watch starts polling correlationID for paymentID. A second watch for the
// same payment replaces the first. It never blocks.
func (p *Poller) Watch(paymentID, correlationID string) {
	if p == nil || p.Attempts <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if cancel, ok := p.jobs[paymentID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(p.base)
	p.jobs[paymentID] = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.forget(ctx, paymentID)
		p.run(ctx, paymentID, correlationID)
	}()
}

// Cancel stops watching paymentID.
func (p *Poller) Cancel(paymentID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.jobs[paymentID]; ok {
		cancel()
		delete(p.jobs, paymentID)
	}
}

// Active returns the number of running watches.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// Stop cancels every watch and waits for them to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.stop()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, paymentID, correlationID string) {
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()
	for i := 1; i <= p.Attempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		res, err := p.Gateway.Query(ctx, correlationID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("payment_id", paymentID).Int("attempt", i).Msg("payment status query failed")
		} else if res.State != gateway.StatePending {
			if p.OnResult != nil {
				p.OnResult(ctx, gateway.Callback{
					CorrelationID: correlationID,
					ResultCode:    res.ResultCode,
					ResultDesc:    res.ResultDesc,
					Receipt:       res.Receipt,
				})
			}
			return
		}
		timer.Reset(p.Interval)
	}
	log.Info().Str("payment_id", paymentID).Int("attempts", p.Attempts).Msg("payment still pending after polling; awaiting callback")
}

func (p *Poller) forget(ctx context.Context, paymentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Only drop the entry if it still belongs to this watch.
	if cancel, ok := p.jobs[paymentID]; ok && ctx.Err() == nil {
		cancel()
		delete(p.jobs, paymentID)
	}
}
