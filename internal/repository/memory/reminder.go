package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type reminderRepository struct {
	*db
}

func (r *reminderRepository) due(res *model.Reservation) *model.DueReminder {
	d := &model.DueReminder{
		ReservationID:  res.ID,
		PatientID:      res.PatientID,
		SlotID:         res.SlotID,
		Status:         res.Status,
		ReminderAt:     res.ReminderAt,
		ReminderSentAt: res.ReminderSentAt,
	}
	if p, ok := r.profiles[res.PatientID]; ok {
		d.Phone, d.Email, d.FirstName = p.Phone, p.Email, p.FirstName
	}
	return d
}

func (r *reminderRepository) Due(ctx context.Context, now time.Time, limit int) ([]*model.DueReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*model.DueReminder{}
	for _, res := range r.reservations {
		if res.Status != model.ReservationStatusBooked || res.ReminderSentAt != nil {
			continue
		}
		if res.ReminderAt == nil || res.ReminderAt.After(now) {
			continue
		}
		out = append(out, r.due(res))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReminderAt.Before(*out[j].ReminderAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *reminderRepository) Get(ctx context.Context, reservationID uuid.UUID) (*model.DueReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, apperrors.ErrReservationMissing
	}
	return r.due(res), nil
}

func (r *reminderRepository) Claim(ctx context.Context, reservationID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[reservationID]
	if !ok || res.ReminderSentAt != nil || res.Status != model.ReservationStatusBooked {
		return false, nil
	}
	res.ReminderSentAt = &at
	res.UpdatedAt = at
	return true, nil
}

func (r *reminderRepository) Stamp(ctx context.Context, reservationID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.reservations[reservationID]; ok {
		res.ReminderSentAt = &at
		res.UpdatedAt = at
	}
	return nil
}

func (r *reminderRepository) Release(ctx context.Context, reservationID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.reservations[reservationID]; ok && res.ReminderSentAt != nil && res.ReminderSentAt.Equal(at) {
		res.ReminderSentAt = nil
	}
	return nil
}
