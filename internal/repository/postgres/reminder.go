package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

const dueReminderSelect = `
	SELECT r.id, r.patient_id, r.slot_id, r.status, r.reminder_at, r.reminder_sent_at,
	       p.phone, p.email, p.first_name
	FROM reservations r
	JOIN profiles p ON p.id = r.patient_id`

type reminderRepository struct {
	BaseRepository
}

func NewReminderRepository(base BaseRepository) repository.ReminderRepository {
	return &reminderRepository{base}
}

func (r *reminderRepository) Due(ctx context.Context, now time.Time, limit int) ([]*model.DueReminder, error) {
	due := []*model.DueReminder{}
	err := r.db.SelectContext(ctx, &due, dueReminderSelect+`
		WHERE r.status = $1 AND r.reminder_sent_at IS NULL AND r.reminder_at <= $2
		ORDER BY r.reminder_at
		LIMIT $3`, model.ReservationStatusBooked, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return due, nil
}

func (r *reminderRepository) Get(ctx context.Context, reservationID uuid.UUID) (*model.DueReminder, error) {
	var due model.DueReminder
	err := r.db.GetContext(ctx, &due, dueReminderSelect+` WHERE r.id = $1`, reservationID)
	if isNoRows(err) {
		return nil, apperrors.ErrReservationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return &due, nil
}

func (r *reminderRepository) Claim(ctx context.Context, reservationID uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reservations SET reminder_sent_at = $2, updated_at = $2
		WHERE id = $1 AND reminder_sent_at IS NULL AND status = $3`,
		reservationID, dbTime(at), model.ReservationStatusBooked)
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	return n == 1, nil
}

func (r *reminderRepository) Stamp(ctx context.Context, reservationID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reservations SET reminder_sent_at = $2, updated_at = $2 WHERE id = $1`,
		reservationID, dbTime(at))
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

func (r *reminderRepository) Release(ctx context.Context, reservationID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reservations SET reminder_sent_at = NULL
		WHERE id = $1 AND reminder_sent_at = $2`,
		reservationID, dbTime(at))
	if err != nil {
		return fmt.Errorf("failed to release reminder: %w", err)
	}
	return nil
}
