package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-booking-backend/internal/events"
)

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

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestPlan_SkipsPastFireTimes(t *testing.T) {
	start := time.Date(2025, 12, 10, 11, 0, 0, 0, time.UTC)
	p := Payload{BookingID: "b1", StartsAt: start}

	all := Plan(p, start.Add(-72*time.Hour), nil)
	require.Len(t, all, 2)
	require.Equal(t, start.Add(-48*time.Hour), all[0].FireAt)
	require.Equal(t, start.Add(-24*time.Hour), all[1].FireAt)
	require.NotEqual(t, all[0].Key, all[1].Key)
	require.Equal(t, "48h0m0s", all[0].Payload.Lead)

	// 30h before start: T-2d already passed.
	some := Plan(p, start.Add(-30*time.Hour), nil)
	require.Len(t, some, 1)
	require.Equal(t, start.Add(-24*time.Hour), some[0].FireAt)

	require.Empty(t, Plan(p, start.Add(-time.Hour), nil))
	// A fire time exactly at now is skipped.
	require.Empty(t, Plan(p, start.Add(-24*time.Hour), []time.Duration{24 * time.Hour}))
}

func TestKeys_MatchPlan(t *testing.T) {
	start := time.Date(2025, 12, 10, 11, 0, 0, 0, time.UTC)
	planned := Plan(Payload{BookingID: "b1", StartsAt: start}, start.AddDate(0, 0, -5), nil)
	keys := Keys("b1", start, nil)
	require.Len(t, keys, len(planned))
	for i := range planned {
		require.Equal(t, planned[i].Key, keys[i])
	}
	require.NotEqual(t, keys[0], Key("b1", start.Add(time.Hour), 48*time.Hour))
}

func TestHandler_DeliversAndRejectsMalformed(t *testing.T) {
	rec := &recorder{}
	h := Handler(rec)

	b, _ := json.Marshal(Payload{BookingID: "b1", CustomerID: "c1", Service: "Gold", RecipientName: "Amina",
		StartsAt: time.Date(2025, 12, 10, 11, 0, 0, 0, time.UTC), Lead: "24h0m0s"})
	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(TypeSend, b)))
	require.Equal(t, 1, rec.len())
	require.Equal(t, events.ReminderDue, rec.got[0].Type)
	require.Contains(t, rec.got[0].Message, "Amina")
	require.Contains(t, rec.got[0].Message, "Gold")

	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeSend, []byte("{")))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestLocalScheduler_DedupesAndCancels(t *testing.T) {
	rec := &recorder{}
	s := NewLocalScheduler(rec)
	t.Cleanup(s.Stop)
	ctx := context.Background()

	far := Reminder{Key: "k1", FireAt: time.Now().Add(time.Hour), Payload: Payload{BookingID: "b1"}}
	require.NoError(t, s.Schedule(ctx, far))
	require.NoError(t, s.Schedule(ctx, far))
	require.Equal(t, 1, s.Pending())

	require.NoError(t, s.Cancel(ctx, "k1", "unknown"))
	require.Equal(t, 0, s.Pending())

	soon := Reminder{Key: "k2", FireAt: time.Now().Add(10 * time.Millisecond), Payload: Payload{BookingID: "b2"}}
	require.NoError(t, s.Schedule(ctx, soon))
	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)

	past := Reminder{Key: "k3", FireAt: time.Now().Add(-time.Minute)}
	require.NoError(t, s.Schedule(ctx, past))
	require.Equal(t, 0, s.Pending(), "past reminders are not armed")
}
