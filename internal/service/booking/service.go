package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// Scope selects which of a patient's reservations to list.
type Scope string

const (
	ScopeUpcoming Scope = "upcoming"
	ScopeHistory  Scope = "history"
)

type Service struct {
	repo    repository.ReservationRepository
	rules   policy.Rules
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.ReservationRepository, rules policy.Rules, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		rules:   rules,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Book reserves a slot for the patient and debits one credit. Rule violations come back as
// an outcome with ok=false; only infrastructure failures are returned as errors.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, slotID string) (*model.BookingOutcome, error) {
	key, err := model.ParseSlotID(slotID)
	if err != nil {
		return nil, apperrors.BadRequest("invalid slot id", err)
	}
	slotID = key.ID()

	now := s.now()
	weekStart, weekEnd := s.rules.Week(key)

	res, err := s.repo.Book(ctx, repository.BookingCommand{
		PatientID:  patientID,
		Key:        key,
		WeekStart:  weekStart,
		WeekEnd:    weekEnd,
		ReminderAt: s.rules.ReminderAt(key, now),
		Now:        now,
		Check: func(f policy.BookingFacts) error {
			return s.rules.CheckBooking(f, now)
		},
	})
	if err != nil {
		if reason, ok := apperrors.ReasonOf(err); ok {
			metrics.ObserveOutcome(s.metrics.BookingAttempts, string(reason))
			s.logger.Info("Booking rejected", "patient_id", patientID.String(), "slot_id", slotID, "reason", string(reason))
			return &model.BookingOutcome{
				OK:      false,
				SlotID:  slotID,
				Code:    string(reason),
				Message: reason.Message(),
			}, nil
		}
		metrics.ObserveOutcome(s.metrics.BookingAttempts, "error")
		return nil, fmt.Errorf("failed to book slot: %w", err)
	}

	metrics.ObserveOutcome(s.metrics.BookingAttempts, "")
	s.logger.Info("Slot booked", "patient_id", patientID.String(), "slot_id", slotID, "reservation_id", res.ID.String())
	return &model.BookingOutcome{OK: true, ReservationID: &res.ID, SlotID: slotID}, nil
}

// Cancel cancels the patient's reservation and refunds the credit when it is far enough away.
func (s *Service) Cancel(ctx context.Context, patientID, reservationID uuid.UUID) (*model.CancelOutcome, error) {
	return s.cancel(ctx, &patientID, reservationID)
}

// CancelAny lets an admin cancel any reservation with the same refund rule.
func (s *Service) CancelAny(ctx context.Context, reservationID uuid.UUID) (*model.CancelOutcome, error) {
	return s.cancel(ctx, nil, reservationID)
}

func (s *Service) cancel(ctx context.Context, patientID *uuid.UUID, reservationID uuid.UUID) (*model.CancelOutcome, error) {
	now := s.now()
	result, err := s.repo.Cancel(ctx, repository.CancelCommand{
		ReservationID: reservationID,
		PatientID:     patientID,
		Now:           now,
		RefundDue: func(key model.SlotKey) bool {
			return s.rules.RefundDue(key, now)
		},
	})
	if err != nil {
		if reason, ok := apperrors.ReasonOf(err); ok {
			metrics.ObserveOutcome(s.metrics.Cancellations, string(reason))
			return &model.CancelOutcome{OK: false, Code: string(reason), Message: reason.Message()}, nil
		}
		metrics.ObserveOutcome(s.metrics.Cancellations, "error")
		return nil, fmt.Errorf("failed to cancel reservation: %w", err)
	}

	outcome := "no_refund"
	message := "reservation cancelled; the credit is not refunded"
	if result.Refunded {
		outcome = "refunded"
		message = "reservation cancelled and the credit refunded"
	}
	metrics.ObserveOutcome(s.metrics.Cancellations, outcome)
	s.logger.Info("Reservation cancelled",
		"reservation_id", reservationID.String(),
		"slot_id", result.Reservation.SlotID,
		"refunded", result.Refunded)

	return &model.CancelOutcome{OK: true, Refunded: result.Refunded, Message: message}, nil
}

// Review approves or rejects a reservation; a rejection returns the credit.
func (s *Service) Review(ctx context.Context, reservationID uuid.UUID, decision model.ReviewDecision) (*model.Reservation, error) {
	if decision != model.ReviewApprove && decision != model.ReviewReject {
		return nil, apperrors.BadRequest("decision must be approve or reject", nil)
	}
	res, err := s.repo.Review(ctx, repository.ReviewCommand{
		ReservationID: reservationID,
		Decision:      decision,
		Now:           s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Reservation reviewed", "reservation_id", reservationID.String(), "status", string(res.Status))
	return res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.ReservationView, error) {
	return s.repo.Get(ctx, id)
}

// currentHourSlot is the id of the slot running at now; slot ids sort chronologically.
func (s *Service) currentHourSlot() string {
	local := s.now().In(s.rules.Location)
	return model.SlotKey{Date: local.Format(model.DateLayout), Hour: local.Hour()}.ID()
}

// ListForPatient lists upcoming active reservations or the past and inactive ones.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, scope Scope, page model.Pagination) ([]*model.ReservationView, error) {
	filters := &model.ReservationFilters{PatientID: &patientID, Pagination: page}

	switch scope {
	case ScopeUpcoming, "":
		filters.Statuses = model.ActiveReservationStatuses
		filters.FromSlot = s.currentHourSlot()
		return s.repo.List(ctx, filters)
	case ScopeHistory:
		filters.Descending = true
		filters.HistoryBefore = s.currentHourSlot()
		return s.repo.List(ctx, filters)
	default:
		return nil, apperrors.BadRequest("scope must be upcoming or history", nil)
	}
}

// ListUpcoming returns future reservations of every patient for the admin view.
func (s *Service) ListUpcoming(ctx context.Context, statuses []model.ReservationStatus, page model.Pagination) ([]*model.ReservationView, error) {
	if len(statuses) == 0 {
		statuses = []model.ReservationStatus{model.ReservationStatusBooked}
	}
	return s.repo.List(ctx, &model.ReservationFilters{
		Statuses:   statuses,
		FromSlot:   s.currentHourSlot(),
		Pagination: page,
	})
}
