package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	pkgrepo "github.com/jwalitptl/clinic-booking/pkg/repository"
)

// BookingCommand carries everything the booking transaction needs besides stored state.
type BookingCommand struct {
	PatientID uuid.UUID
	Key       model.SlotKey
	// WeekStart and WeekEnd bound the density window as [WeekStart, WeekEnd) dates.
	WeekStart  string
	WeekEnd    string
	ReminderAt time.Time
	Now        time.Time
	// Check decides on the facts read under lock; a non-nil error aborts the booking.
	Check func(policy.BookingFacts) error
}

// CancelCommand cancels a reservation. A nil PatientID skips the ownership check.
type CancelCommand struct {
	ReservationID uuid.UUID
	PatientID     *uuid.UUID
	Now           time.Time
	// RefundDue reports whether the slot is far enough away to return the credit.
	RefundDue func(model.SlotKey) bool
}

type CancelResult struct {
	Reservation *model.Reservation
	Refunded    bool
}

// ReviewCommand approves or rejects a pending or booked reservation.
type ReviewCommand struct {
	ReservationID uuid.UUID
	Decision      model.ReviewDecision
	Now           time.Time
}

// All repository interfaces in one file
type (
	SlotRepository interface {
		Get(ctx context.Context, id string) (*model.Slot, error)
		List(ctx context.Context, fromDate, toDate string) ([]*model.Slot, error)
		// SetStatus upserts the rows and reports which of them carry an active reservation.
		SetStatus(ctx context.Context, keys []model.SlotKey, status model.SlotStatus, now time.Time) ([]*model.SlotStatusResult, error)
	}

	ReservationRepository interface {
		Book(ctx context.Context, cmd BookingCommand) (*model.Reservation, error)
		Cancel(ctx context.Context, cmd CancelCommand) (*CancelResult, error)
		Review(ctx context.Context, cmd ReviewCommand) (*model.Reservation, error)
		Get(ctx context.Context, id uuid.UUID) (*model.ReservationView, error)
		List(ctx context.Context, filters *model.ReservationFilters) ([]*model.ReservationView, error)
		// ReservedSlotIDs returns the subset of ids that carry an active reservation.
		ReservedSlotIDs(ctx context.Context, slotIDs []string) ([]string, error)
	}

	ReminderRepository interface {
		Due(ctx context.Context, now time.Time, limit int) ([]*model.DueReminder, error)
		Get(ctx context.Context, reservationID uuid.UUID) (*model.DueReminder, error)
		// Claim stamps reminder_sent_at if it is still empty; false means someone else did.
		Claim(ctx context.Context, reservationID uuid.UUID, at time.Time) (bool, error)
		// Stamp sets reminder_sent_at unconditionally.
		Stamp(ctx context.Context, reservationID uuid.UUID, at time.Time) error
		// Release clears a claim made at the given time after a failed send.
		Release(ctx context.Context, reservationID uuid.UUID, at time.Time) error
	}

	ProfileRepository interface {
		Create(ctx context.Context, profile *model.Profile) error
		Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
		GetByPhone(ctx context.Context, phone string) (*model.Profile, error)
		Update(ctx context.Context, profile *model.Profile) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.ProfileFilters) ([]*model.Profile, int, error)
		// SetCredits overwrites the balance in one statement.
		SetCredits(ctx context.Context, id uuid.UUID, credits int, expiresAt *time.Time) (*model.Profile, error)
	}

	OTPRepository interface {
		// Create stores a code and retires earlier unused codes of the same phone.
		Create(ctx context.Context, code *model.OTPCode) error
		Latest(ctx context.Context, phone string) (*model.OTPCode, error)
		// ConsumeAttempt counts one verification attempt unless max is already reached;
		// false means the code is locked.
		ConsumeAttempt(ctx context.Context, id uuid.UUID, max int) (bool, error)
		MarkUsed(ctx context.Context, id uuid.UUID) error
		DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		pkgrepo.OutboxStore
		Create(ctx context.Context, event *model.OutboxEvent) error
	}
)

// Store groups the repositories of one backend.
type Store struct {
	Slots        SlotRepository
	Reservations ReservationRepository
	Reminders    ReminderRepository
	Profiles     ProfileRepository
	OTP          OTPRepository
	Outbox       OutboxRepository
	// Ping reports backend health; nil for backends that are always up.
	Ping func(ctx context.Context) error
	// Close releases the backend.
	Close func() error
}
