package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type reservationRepository struct {
	*db
}

func (r *reservationRepository) Book(ctx context.Context, cmd repository.BookingCommand) (*model.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slotID := cmd.Key.ID()
	facts := policy.BookingFacts{Key: cmd.Key}
	if s, ok := r.slots[slotID]; ok {
		facts.Slot = copySlot(s)
	}
	facts.SlotReserved = r.slotReserved(slotID)

	profile, ok := r.profiles[cmd.PatientID]
	if !ok {
		return nil, apperrors.NotFound("profile", nil)
	}
	facts.Balance = profile.Balance()

	for _, res := range r.reservations {
		if res.PatientID != cmd.PatientID || !res.Status.IsActive() {
			continue
		}
		key, err := model.ParseSlotID(res.SlotID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse slot id: %w", err)
		}
		if key.Date == cmd.Key.Date {
			facts.DayCount++
		}
		if key.Date >= cmd.WeekStart && key.Date < cmd.WeekEnd {
			facts.WeekCount++
		}
	}

	if err := cmd.Check(facts); err != nil {
		return nil, err
	}

	now := cmd.Now
	reminderAt := cmd.ReminderAt
	res := &model.Reservation{
		Base:       model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		SlotID:     slotID,
		PatientID:  cmd.PatientID,
		Status:     model.ReservationStatusBooked,
		ReminderAt: &reminderAt,
	}
	r.reservations[res.ID] = res
	profile.Credits--
	profile.UpdatedAt = now

	r.emit(model.ChangeNotice{Type: model.EventReservationBooked, SlotID: slotID, ReservationID: &res.ID, At: now})
	return copyReservation(res), nil
}

func (r *reservationRepository) Cancel(ctx context.Context, cmd repository.CancelCommand) (*repository.CancelResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[cmd.ReservationID]
	if !ok || (cmd.PatientID != nil && res.PatientID != *cmd.PatientID) {
		return nil, apperrors.ErrReservationMissing
	}
	if !res.Status.Cancellable() {
		return nil, apperrors.ErrNotCancellable
	}
	key, err := model.ParseSlotID(res.SlotID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse slot id: %w", err)
	}

	now := cmd.Now
	res.Status = model.ReservationStatusCancelled
	res.CancelledAt = &now
	res.UpdatedAt = now

	refunded := false
	if cmd.RefundDue != nil && cmd.RefundDue(key) {
		refunded = r.credit(res.PatientID, now)
	}

	r.emit(model.ChangeNotice{Type: model.EventReservationCancelled, SlotID: res.SlotID, ReservationID: &res.ID, At: now})
	return &repository.CancelResult{Reservation: copyReservation(res), Refunded: refunded}, nil
}

func (r *reservationRepository) Review(ctx context.Context, cmd repository.ReviewCommand) (*model.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[cmd.ReservationID]
	if !ok {
		return nil, apperrors.ErrReservationMissing
	}
	if !res.Status.Reviewable() {
		return nil, apperrors.Conflict(fmt.Sprintf("reservation is %s and cannot be reviewed", res.Status), nil)
	}

	res.Status = model.ReservationStatusApproved
	if cmd.Decision == model.ReviewReject {
		res.Status = model.ReservationStatusRejected
		r.credit(res.PatientID, cmd.Now)
	}
	res.UpdatedAt = cmd.Now

	r.emit(model.ChangeNotice{Type: model.EventReservationReviewed, SlotID: res.SlotID, ReservationID: &res.ID, At: cmd.Now})
	return copyReservation(res), nil
}

func (r *reservationRepository) view(res *model.Reservation) *model.ReservationView {
	v := &model.ReservationView{Reservation: *res}
	if key, err := model.ParseSlotID(res.SlotID); err == nil {
		v.Date, v.Hour = key.Date, key.Hour
	}
	v.DurationMinutes = model.SlotDurationMinutes
	if s, ok := r.slots[res.SlotID]; ok {
		v.DurationMinutes = s.DurationMinutes
	}
	if p, ok := r.profiles[res.PatientID]; ok {
		v.PatientFirstName, v.PatientLastName, v.PatientPhone = p.FirstName, p.LastName, p.Phone
	}
	return v
}

func (r *reservationRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReservationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, apperrors.ErrReservationMissing
	}
	return r.view(res), nil
}

func (r *reservationRepository) List(ctx context.Context, filters *model.ReservationFilters) ([]*model.ReservationView, error) {
	if filters == nil {
		filters = &model.ReservationFilters{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := map[model.ReservationStatus]bool{}
	for _, s := range filters.Statuses {
		statuses[s] = true
	}

	out := []*model.ReservationView{}
	for _, res := range r.reservations {
		if filters.PatientID != nil && res.PatientID != *filters.PatientID {
			continue
		}
		if len(statuses) > 0 && !statuses[res.Status] {
			continue
		}
		if filters.HistoryBefore != "" && res.Status.IsActive() && res.SlotID >= filters.HistoryBefore {
			continue
		}
		if filters.FromSlot != "" && res.SlotID < filters.FromSlot {
			continue
		}
		if filters.ToSlot != "" && res.SlotID >= filters.ToSlot {
			continue
		}
		out = append(out, r.view(res))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotID == out[j].SlotID {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if filters.Descending {
			return out[i].SlotID > out[j].SlotID
		}
		return out[i].SlotID < out[j].SlotID
	})

	page := filters.Pagination.Normalize(50, 500)
	if page.Offset >= len(out) {
		return []*model.ReservationView{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[page.Offset:end], nil
}

func (r *reservationRepository) ReservedSlotIDs(ctx context.Context, slotIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = true
	}
	seen := map[string]bool{}
	out := []string{}
	for _, res := range r.reservations {
		if wanted[res.SlotID] && res.Status.IsActive() && !seen[res.SlotID] {
			seen[res.SlotID] = true
			out = append(out, res.SlotID)
		}
	}
	sort.Strings(out)
	return out, nil
}
