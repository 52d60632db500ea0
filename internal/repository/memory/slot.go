package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type slotRepository struct {
	*db
}

func (r *slotRepository) Get(ctx context.Context, id string) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, apperrors.NotFound("slot", nil)
	}
	return copySlot(s), nil
}

func (r *slotRepository) List(ctx context.Context, fromDate, toDate string) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*model.Slot{}
	for _, s := range r.slots {
		if s.Date >= fromDate && s.Date <= toDate {
			out = append(out, copySlot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *slotRepository) SetStatus(ctx context.Context, keys []model.SlotKey, status model.SlotStatus, now time.Time) ([]*model.SlotStatusResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make([]*model.SlotStatusResult, 0, len(keys))
	for _, key := range keys {
		id := key.ID()
		s, ok := r.slots[id]
		if !ok {
			s = &model.Slot{
				ID:              id,
				Date:            key.Date,
				Hour:            key.Hour,
				DurationMinutes: model.SlotDurationMinutes,
				CreatedAt:       now,
			}
			r.slots[id] = s
		}
		s.Status = status
		s.UpdatedAt = now

		r.emit(model.ChangeNotice{Type: model.EventSlotStatusChanged, SlotID: id, At: now})
		results = append(results, &model.SlotStatusResult{Slot: copySlot(s), Reserved: r.slotReserved(id)})
	}
	return results, nil
}
