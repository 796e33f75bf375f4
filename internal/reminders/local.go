package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-booking-backend/internal/events"
)

// LocalScheduler keeps reminders in process with timers. It is used when no
// Redis is configured; pending reminders are lost on restart.
type LocalScheduler struct {
	Notifier events.Notifier
	Now      func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewLocalScheduler returns a scheduler that delivers through n.
func NewLocalScheduler(n events.Notifier) *LocalScheduler {
	return &LocalScheduler{Notifier: n, Now: time.Now, timers: map[string]*time.Timer{}}
}

// Schedule arms a timer for r unless one with the same key exists.
func (s *LocalScheduler) Schedule(_ context.Context, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if _, ok := s.timers[r.Key]; ok {
		return nil
	}
	delay := r.FireAt.Sub(s.Now())
	if delay < 0 {
		return nil
	}
	s.timers[r.Key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, r.Key)
		s.mu.Unlock()
		if err := Deliver(context.Background(), s.Notifier, r.Payload); err != nil {
			log.Warn().Err(err).Str("booking_id", r.Payload.BookingID).Msg("reminder: delivery failed")
		}
	})
	return nil
}

// Cancel stops pending timers for keys.
func (s *LocalScheduler) Cancel(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if t, ok := s.timers[k]; ok {
			t.Stop()
			delete(s.timers, k)
		}
	}
	return nil
}

// Pending returns the number of armed reminders.
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending reminder.
func (s *LocalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
}
