package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// MaxReservedLookup caps the ids accepted by ReservedSlots.
const MaxReservedLookup = 1000

type Service struct {
	slots        repository.SlotRepository
	reservations repository.ReservationRepository
	rules        policy.Rules
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(slots repository.SlotRepository, reservations repository.ReservationRepository, rules policy.Rules, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		slots:        slots,
		reservations: reservations,
		rules:        rules,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

func (s *Service) ListSlots(ctx context.Context, from, to string) ([]*model.Slot, error) {
	if _, err := s.rules.Grid(from, to); err != nil {
		return nil, err
	}
	return s.slots.List(ctx, from, to)
}

// SetSlotStatus opens or closes one slot. Closing never touches an existing reservation.
func (s *Service) SetSlotStatus(ctx context.Context, date string, hour int, status model.SlotStatus) (*model.SlotStatusResult, error) {
	key, err := model.NewSlotKey(date, hour)
	if err != nil {
		return nil, apperrors.BadRequest("invalid slot", err)
	}
	if !status.Valid() {
		return nil, apperrors.BadRequest("status must be free or closed", nil)
	}
	if status == model.SlotStatusFree && !s.rules.InTemplate(key) {
		return nil, apperrors.BadRequest("hour is outside the opening hours", nil)
	}

	results, err := s.slots.SetStatus(ctx, []model.SlotKey{key}, status, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to set slot status: %w", err)
	}
	s.metrics.SlotChanges.WithLabelValues(string(status)).Inc()
	s.logger.Info("Slot status changed", "slot_id", key.ID(), "status", string(status), "reserved", results[0].Reserved)
	return results[0], nil
}

// SetDayStatus applies status to every template hour of date.
func (s *Service) SetDayStatus(ctx context.Context, date string, status model.SlotStatus) ([]*model.SlotStatusResult, error) {
	if !status.Valid() {
		return nil, apperrors.BadRequest("status must be free or closed", nil)
	}
	keys, err := s.rules.Grid(date, date)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, apperrors.BadRequest("the clinic is closed on this day", nil)
	}

	results, err := s.slots.SetStatus(ctx, keys, status, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to set day status: %w", err)
	}
	s.metrics.SlotChanges.WithLabelValues(string(status)).Add(float64(len(results)))
	s.logger.Info("Day status changed", "date", date, "status", string(status), "slots", len(results))
	return results, nil
}

// ReservedSlots returns the ids among slotIDs that carry an active reservation.
func (s *Service) ReservedSlots(ctx context.Context, slotIDs []string) ([]string, error) {
	if len(slotIDs) > MaxReservedLookup {
		return nil, apperrors.BadRequest(fmt.Sprintf("at most %d slot ids", MaxReservedLookup), nil)
	}
	ids := make([]string, 0, len(slotIDs))
	for _, id := range slotIDs {
		key, err := model.ParseSlotID(id)
		if err != nil {
			return nil, apperrors.BadRequest("invalid slot id", err)
		}
		ids = append(ids, key.ID())
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	return s.reservations.ReservedSlotIDs(ctx, ids)
}

// Availability derives the grid of every template hour in [from, to].
func (s *Service) Availability(ctx context.Context, from, to string) ([]model.SlotAvailability, error) {
	keys, err := s.rules.Grid(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.slots.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID()
	}
	reserved := make(map[string]bool)
	for start := 0; start < len(ids); start += MaxReservedLookup {
		end := min(start+MaxReservedLookup, len(ids))
		taken, err := s.reservations.ReservedSlotIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to read reservations: %w", err)
		}
		for _, id := range taken {
			reserved[id] = true
		}
	}

	byID := make(map[string]*model.Slot, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	grid := make([]model.SlotAvailability, len(keys))
	for i, k := range keys {
		id := k.ID()
		grid[i] = model.SlotAvailability{
			SlotID:       id,
			Date:         k.Date,
			Hour:         k.Hour,
			Availability: s.rules.Availability(k, byID[id], reserved[id]),
		}
	}
	return grid, nil
}

// BookableRange returns today and the last bookable date for clients that need a default grid.
func (s *Service) BookableRange() (string, string) {
	return s.rules.BookableDates(s.now())
}
