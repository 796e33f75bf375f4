package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type countingCollector struct {
	runs  atomic.Int32
	err   error
	panic bool
}

func (c *countingCollector) Sweep(ctx context.Context) (int, error) {
	c.runs.Add(1)
	if c.panic {
		panic("boom")
	}
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep ran without a deadline")
	}
	return 2, c.err
}

func TestNewSweeper_RejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(&countingCollector{}, "every now and then", time.Minute)
	require.Error(t, err)
}

func TestSweeper_RunOnce(t *testing.T) {
	c := &countingCollector{err: errors.New("db locked")}
	s, err := NewSweeper(c, "@every 15m", time.Minute)
	require.NoError(t, err)

	s.RunOnce(context.Background())
	require.Equal(t, int32(1), c.runs.Load())
}

func TestSweeper_RunsOnScheduleUntilCancelled(t *testing.T) {
	c := &countingCollector{}
	s, err := NewSweeper(c, "@every 1s", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return c.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_RecoversFromPanic(t *testing.T) {
	c := &countingCollector{panic: true}
	s, err := NewSweeper(c, "@every 1s", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return c.runs.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
}
