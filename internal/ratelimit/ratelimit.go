// Package ratelimit implements the sliding-window limiter that caps receipt
// verification attempts per customer.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most a fixed number of events per key within a rolling
// window. retryAfter is only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Memory is a process-local sliding log.
type Memory struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemory returns a Memory limiter.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{Limit: limit, Window: window, Now: time.Now, hits: map[string][]time.Time{}}
}

// Allow records an attempt for key if the window has room.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	cutoff := now.Add(-m.Window)

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= m.Limit {
		m.hits[key] = kept
		return false, kept[0].Add(m.Window).Sub(now), nil
	}
	m.hits[key] = append(kept, now)
	return true, 0, nil
}

// Reset forgets key.
func (m *Memory) Reset(key string) {
	m.mu.Lock()
	delete(m.hits, key)
	m.mu.Unlock()
}
