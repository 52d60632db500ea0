package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/phone"
)

// Skip reasons reported per reservation.
const (
	SkipInvalidPhone = "invalid_phone"
	SkipAlreadySent  = "already_sent"
	SkipInactive     = "inactive"
)

const readableLayout = "Monday, 2 January 2006 15:04"

type Settings struct {
	BatchSize  int
	ClinicName string
	Signature  string
	Location   *time.Location
}

type Service struct {
	repo     repository.ReminderRepository
	sender   notification.Sender
	settings Settings
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(repo repository.ReminderRepository, sender notification.Sender, settings Settings, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 200
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Service{
		repo:     repo,
		sender:   sender,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Dispatch sends due reminders, or the reminder of one reservation when opts.ForceID is set.
// A dry run renders the messages without sending or marking anything.
func (s *Service) Dispatch(ctx context.Context, opts model.DispatchOptions) (*model.DispatchReport, error) {
	start := s.now()
	defer func() { s.metrics.ReminderDispatch.Observe(time.Since(start).Seconds()) }()

	report := &model.DispatchReport{OK: true, Mode: model.DispatchAuto, Results: []model.ReminderResult{}}

	var due []*model.DueReminder
	if opts.ForceID != nil {
		report.Mode = model.DispatchForce
		r, err := s.repo.Get(ctx, *opts.ForceID)
		if err != nil {
			return nil, err
		}
		due = []*model.DueReminder{r}
	} else {
		var err error
		due, err = s.repo.Due(ctx, start, s.settings.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load due reminders: %w", err)
		}
	}

	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := s.deliver(ctx, r, report.Mode == model.DispatchForce, opts.DryRun)
		if result.MarkedSent {
			report.Sent++
		}
		if result.Error != "" {
			report.OK = false
		}
		report.Results = append(report.Results, result)
	}

	if len(due) > 0 {
		s.logger.Info("Reminder dispatch finished",
			"mode", string(report.Mode),
			"candidates", len(due),
			"sent", report.Sent,
			"dry_run", opts.DryRun)
	}
	return report, nil
}

func (s *Service) deliver(ctx context.Context, r *model.DueReminder, force, dryRun bool) model.ReminderResult {
	result := model.ReminderResult{
		ID:             r.ReservationID,
		Status:         r.Status,
		Phone:          r.Phone,
		ValidPhone:     phone.IsE164(r.Phone),
		ReminderAt:     r.ReminderAt,
		ReminderSentAt: r.ReminderSentAt,
		ReadableTime:   s.readable(r.SlotID),
	}

	if !result.ValidPhone {
		result.Skip = SkipInvalidPhone
		s.metrics.RemindersSent.WithLabelValues("skipped").Inc()
		return result
	}
	if force && !r.Status.IsActive() {
		result.Skip = SkipInactive
		return result
	}

	msg := s.message(r, result.ReadableTime)
	if dryRun {
		result.Preview = true
		result.Body = msg.Body
		return result
	}

	now := s.now()
	if !force {
		claimed, err := s.repo.Claim(ctx, r.ReservationID, now)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if !claimed {
			result.Skip = SkipAlreadySent
			return result
		}
	}

	id, err := s.sender.Send(ctx, msg)
	if err != nil {
		result.Error = err.Error()
		s.metrics.RemindersSent.WithLabelValues("failed").Inc()
		s.logger.Error(err, "Failed to send reminder", "reservation_id", r.ReservationID.String())
		if !force {
			if rerr := s.repo.Release(ctx, r.ReservationID, now); rerr != nil {
				s.logger.Error(rerr, "Failed to release reminder claim", "reservation_id", r.ReservationID.String())
			}
		}
		return result
	}

	if force {
		if err := s.repo.Stamp(ctx, r.ReservationID, now); err != nil {
			result.Error = err.Error()
		}
	}
	result.MessageID = id
	result.MarkedSent = result.Error == ""
	if result.MarkedSent {
		result.ReminderSentAt = &now
	}
	s.metrics.RemindersSent.WithLabelValues("sent").Inc()
	return result
}

// readable renders the slot start in the clinic zone; unparsable ids come back unchanged.
func (s *Service) readable(slotID string) string {
	key, err := model.ParseSlotID(slotID)
	if err != nil {
		return slotID
	}
	return key.Start(s.settings.Location).Format(readableLayout)
}

func (s *Service) message(r *model.DueReminder, when string) model.Message {
	var b strings.Builder
	if r.FirstName != "" {
		fmt.Fprintf(&b, "Hello %s, ", r.FirstName)
	} else {
		b.WriteString("Hello, ")
	}
	fmt.Fprintf(&b, "this is a reminder of your appointment at %s on %s.", s.settings.ClinicName, when)
	if s.settings.Signature != "" {
		b.WriteString("\n\n")
		b.WriteString(s.settings.Signature)
	}

	msg := model.Message{
		To:      r.Phone,
		Subject: "Appointment reminder",
		Body:    b.String(),
	}
	if r.Email != nil {
		msg.Email = *r.Email
	}
	return msg
}
