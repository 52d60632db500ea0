package slot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

var zone = time.FixedZone("TRT", 3*60*60)

func setup(t *testing.T) (*Service, *repository.Store) {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewWithRegistry("test", "slot", prometheus.NewRegistry())
	svc := NewService(store.Slots, store.Reservations, policy.DefaultRules(zone), logger.Nop(), m)
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, zone) }
	return svc, store
}

func isBadRequest(t *testing.T, err error) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestSetSlotStatus(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	res, err := svc.SetSlotStatus(ctx, "2025-06-04", 10, model.SlotStatusFree)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-04T10:00", res.Slot.ID)
	assert.Equal(t, model.SlotStatusFree, res.Slot.Status)
	assert.Equal(t, model.SlotDurationMinutes, res.Slot.DurationMinutes)
	assert.False(t, res.Reserved)

	res, err = svc.SetSlotStatus(ctx, "2025-06-04", 10, model.SlotStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusClosed, res.Slot.Status)

	slots, err := svc.ListSlots(ctx, "2025-06-04", "2025-06-04")
	require.NoError(t, err)
	require.Len(t, slots, 1, "upsert keeps one row")
}

func TestSetSlotStatus_Invalid(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.SetSlotStatus(ctx, "2025-06-04", 22, model.SlotStatusFree)
	isBadRequest(t, err)

	_, err = svc.SetSlotStatus(ctx, "2025-06-08", 10, model.SlotStatusFree)
	isBadRequest(t, err)

	_, err = svc.SetSlotStatus(ctx, "2025-13-01", 10, model.SlotStatusFree)
	isBadRequest(t, err)

	_, err = svc.SetSlotStatus(ctx, "2025-06-04", 10, "maybe")
	isBadRequest(t, err)

	_, err = svc.SetSlotStatus(ctx, "2025-06-04", 22, model.SlotStatusClosed)
	assert.NoError(t, err, "closing outside the template is harmless")
}

func TestSetDayStatus(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	results, err := svc.SetDayStatus(ctx, "2025-06-04", model.SlotStatusFree)
	require.NoError(t, err)
	assert.Len(t, results, 12)

	results, err = svc.SetDayStatus(ctx, "2025-06-07", model.SlotStatusFree)
	require.NoError(t, err)
	assert.Len(t, results, 8, "saturday")

	_, err = svc.SetDayStatus(ctx, "2025-06-08", model.SlotStatusFree)
	isBadRequest(t, err)
}

func TestSoftCloseReportsReservation(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, zone)

	_, err := svc.SetSlotStatus(ctx, "2025-06-04", 10, model.SlotStatusFree)
	require.NoError(t, err)
	patient := &model.Profile{Phone: "+905551112233", Role: model.RoleUser}
	require.NoError(t, store.Profiles.Create(ctx, patient))
	exp := now.Add(30 * 24 * time.Hour)
	_, err = store.Profiles.SetCredits(ctx, patient.ID, 1, &exp)
	require.NoError(t, err)

	key := model.SlotKey{Date: "2025-06-04", Hour: 10}
	res0, err := store.Reservations.Book(ctx, repository.BookingCommand{
		PatientID:  patient.ID,
		Key:        key,
		WeekStart:  "2025-06-02",
		WeekEnd:    "2025-06-09",
		ReminderAt: now,
		Now:        now,
		Check:      func(policy.BookingFacts) error { return nil },
	})
	require.NoError(t, err)

	res, err := svc.SetSlotStatus(ctx, "2025-06-04", 10, model.SlotStatusClosed)
	require.NoError(t, err)
	assert.True(t, res.Reserved)

	view, err := store.Reservations.Get(ctx, res0.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusBooked, view.Status, "soft close keeps the reservation")

	grid, err := svc.Availability(ctx, "2025-06-04", "2025-06-04")
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityClosed, grid[1].Availability)
}

func TestReservedSlots(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	ids, err := svc.ReservedSlots(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = svc.ReservedSlots(ctx, []string{"garbage"})
	isBadRequest(t, err)

	tooMany := make([]string, MaxReservedLookup+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("2025-06-04T%02d:00", i%24)
	}
	_, err = svc.ReservedSlots(ctx, tooMany)
	isBadRequest(t, err)
}

func TestAvailability(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.SetDayStatus(ctx, "2025-06-04", model.SlotStatusFree)
	require.NoError(t, err)
	_, err = svc.SetSlotStatus(ctx, "2025-06-04", 12, model.SlotStatusClosed)
	require.NoError(t, err)

	grid, err := svc.Availability(ctx, "2025-06-03", "2025-06-04")
	require.NoError(t, err)
	require.Len(t, grid, 24)

	for _, cell := range grid[:12] {
		assert.Equal(t, model.AvailabilityClosed, cell.Availability, "no rows on %s", cell.SlotID)
	}
	counts := map[model.Availability]int{}
	for _, cell := range grid[12:] {
		counts[cell.Availability]++
	}
	assert.Equal(t, 11, counts[model.AvailabilityFree])
	assert.Equal(t, 1, counts[model.AvailabilityClosed])

	_, err = svc.Availability(ctx, "2025-06-05", "2025-06-04")
	isBadRequest(t, err)
}

func TestBookableRange(t *testing.T) {
	svc, _ := setup(t)
	from, to := svc.BookableRange()
	assert.Equal(t, "2025-06-02", from)
	assert.Equal(t, "2025-06-16", to)
}
