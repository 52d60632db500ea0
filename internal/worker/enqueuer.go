package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// Enqueuer hands reminder dispatches to the job server.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueDispatch queues one dispatch run and returns the task id.
func (e *Enqueuer) EnqueueDispatch(ctx context.Context, opts model.DispatchOptions) (string, error) {
	task, err := NewReminderDispatchTask(opts)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue reminder dispatch: %w", err)
	}
	return info.ID, nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
