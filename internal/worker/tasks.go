package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

const (
	TypeReminderDispatch = "reminders:dispatch"
	TypeOTPCleanup       = "otp:cleanup"

	QueueDefault = "default"
	QueueLow     = "low"
)

// ReminderDispatchPayload mirrors model.DispatchOptions on the wire.
type ReminderDispatchPayload struct {
	ForceID *uuid.UUID `json:"force_id,omitempty"`
	DryRun  bool       `json:"dry_run,omitempty"`
}

func (p ReminderDispatchPayload) Options() model.DispatchOptions {
	return model.DispatchOptions{ForceID: p.ForceID, DryRun: p.DryRun}
}

func NewReminderDispatchTask(opts model.DispatchOptions) (*asynq.Task, error) {
	b, err := json.Marshal(ReminderDispatchPayload{ForceID: opts.ForceID, DryRun: opts.DryRun})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return asynq.NewTask(TypeReminderDispatch, b,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}

func NewOTPCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeOTPCleanup, nil,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(1),
	)
}
