package worker

import (
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// RegisterPeriodic adds the recurring tasks to the scheduler.
func RegisterPeriodic(s *asynq.Scheduler, reminderSpec, cleanupSpec string) error {
	task, err := NewReminderDispatchTask(model.DispatchOptions{})
	if err != nil {
		return err
	}
	if _, err := s.Register(reminderSpec, task); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}
	if _, err := s.Register(cleanupSpec, NewOTPCleanupTask()); err != nil {
		return fmt.Errorf("failed to schedule otp cleanup: %w", err)
	}
	return nil
}
