package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

// ReminderDispatcher runs one reminder dispatch.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, opts model.DispatchOptions) (*model.DispatchReport, error)
}

// Handlers process the background tasks.
type Handlers struct {
	reminders ReminderDispatcher
	otp       repository.OTPRepository
	// OTPRetention keeps expired codes around this long before deleting them.
	otpRetention time.Duration
	logger       *logger.Logger
	now          func() time.Time
}

func NewHandlers(reminders ReminderDispatcher, otp repository.OTPRepository, otpRetention time.Duration, log *logger.Logger) *Handlers {
	return &Handlers{
		reminders:    reminders,
		otp:          otp,
		otpRetention: otpRetention,
		logger:       log,
		now:          time.Now,
	}
}

// Mux routes every task type to its handler.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReminderDispatch, h.HandleReminderDispatch)
	mux.HandleFunc(TypeOTPCleanup, h.HandleOTPCleanup)
	return mux
}

func (h *Handlers) HandleReminderDispatch(ctx context.Context, task *asynq.Task) error {
	var p ReminderDispatchPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			// a malformed payload never gets better
			return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	report, err := h.reminders.Dispatch(ctx, p.Options())
	if err != nil {
		return fmt.Errorf("reminder dispatch failed: %w", err)
	}
	if !report.OK {
		h.logger.Warn("Reminder dispatch finished with errors", "sent", report.Sent, "results", len(report.Results))
	}
	return nil
}

func (h *Handlers) HandleOTPCleanup(ctx context.Context, _ *asynq.Task) error {
	deleted, err := h.otp.DeleteExpired(ctx, h.now().Add(-h.otpRetention))
	if err != nil {
		return fmt.Errorf("failed to delete expired otp codes: %w", err)
	}
	if deleted > 0 {
		h.logger.Info("Expired otp codes deleted", "count", deleted)
	}
	return nil
}
