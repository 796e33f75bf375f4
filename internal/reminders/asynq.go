package reminders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

// Queue is the asynq queue reminders are enqueued on.
const Queue = "reminders"

// AsynqScheduler enqueues reminders in Redis. The reminder key is used as
// the asynq task id, so a second Schedule for the same key is dropped by
// the broker.
type AsynqScheduler struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewAsynqScheduler connects a client and inspector to opt.
func NewAsynqScheduler(opt asynq.RedisClientOpt) *AsynqScheduler {
	return &AsynqScheduler{Client: asynq.NewClient(opt), Inspector: asynq.NewInspector(opt)}
}

// Schedule enqueues r to run at r.FireAt.
func (s *AsynqScheduler) Schedule(ctx context.Context, r Reminder) error {
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeSend, b)
	_, err = s.Client.EnqueueContext(ctx, task,
		asynq.ProcessAt(r.FireAt),
		asynq.TaskID(r.Key),
		asynq.Queue(Queue),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Cancel deletes scheduled reminders. Unknown keys are ignored.
func (s *AsynqScheduler) Cancel(_ context.Context, keys ...string) error {
	if s.Inspector == nil {
		return nil
	}
	for _, k := range keys {
		err := s.Inspector.DeleteTask(Queue, k)
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return err
		}
	}
	return nil
}

// Close releases the Redis connections.
func (s *AsynqScheduler) Close() error {
	if s.Inspector != nil {
		_ = s.Inspector.Close()
	}
	return s.Client.Close()
}

// NewServer builds the worker that executes due reminders.
func NewServer(opt asynq.RedisClientOpt) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{Queue: 1},
	})
}
