package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
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

type fixture struct {
	svc   *Service
	store *repository.Store
	now   time.Time
	seq   int
}

// newFixture starts the clock on Monday 2025-06-02 08:00 clinic time with the next two weeks open.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		now:   time.Date(2025, 6, 2, 8, 0, 0, 0, zone),
	}
	rules := policy.DefaultRules(zone)
	m := metrics.NewWithRegistry("test", "booking", prometheus.NewRegistry())
	f.svc = NewService(f.store.Reservations, rules, logger.Nop(), m)
	f.svc.now = func() time.Time { return f.now }

	keys, err := rules.Grid("2025-06-02", "2025-06-16")
	require.NoError(t, err)
	_, err = f.store.Slots.SetStatus(context.Background(), keys, model.SlotStatusFree, f.now)
	require.NoError(t, err)
	return f
}

func (f *fixture) patient(t *testing.T, credits int, validFor time.Duration) *model.Profile {
	t.Helper()
	f.seq++
	p := &model.Profile{Phone: fmt.Sprintf("+90555%07d", f.seq), Role: model.RoleUser}
	require.NoError(t, f.store.Profiles.Create(context.Background(), p))

	var exp *time.Time
	if validFor != 0 {
		e := f.now.Add(validFor)
		exp = &e
	}
	_, err := f.store.Profiles.SetCredits(context.Background(), p.ID, credits, exp)
	require.NoError(t, err)
	return p
}

func (f *fixture) credits(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.store.Profiles.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Credits
}

func (f *fixture) book(t *testing.T, p *model.Profile, slotID string) *model.BookingOutcome {
	t.Helper()
	out, err := f.svc.Book(context.Background(), p.ID, slotID)
	require.NoError(t, err)
	return out
}

const month = 30 * 24 * time.Hour

func TestBook_Success(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 3, month)

	out := f.book(t, p, "2025-06-04T10:00")
	require.True(t, out.OK, out.Message)
	require.NotNil(t, out.ReservationID)
	assert.Equal(t, 2, f.credits(t, p.ID))

	view, err := f.svc.Get(context.Background(), *out.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusBooked, view.Status)
	require.NotNil(t, view.ReminderAt)
	assert.True(t, view.ReminderAt.Equal(time.Date(2025, 6, 3, 10, 0, 0, 0, zone)))
}

func TestBook_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	const n = 20

	patients := make([]*model.Profile, n)
	for i := range patients {
		patients[i] = f.patient(t, 1, month)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		taken   int
	)
	for _, p := range patients {
		wg.Add(1)
		go func(p *model.Profile) {
			defer wg.Done()
			out, err := f.svc.Book(context.Background(), p.ID, "2025-06-05T14:00")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.OK {
				winners++
			} else if out.Code == string(apperrors.ReasonSlotTaken) {
				taken++
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, taken)

	total := 0
	for _, p := range patients {
		total += f.credits(t, p.ID)
	}
	assert.Equal(t, n-1, total, "exactly one credit spent")
}

func TestBook_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Slots.SetStatus(ctx, []model.SlotKey{{Date: "2025-06-04", Hour: 11}}, model.SlotStatusClosed, f.now)
	require.NoError(t, err)

	funded := f.patient(t, 5, month)
	cases := []struct {
		name   string
		slotID string
		reason apperrors.Reason
	}{
		{"closed row", "2025-06-04T11:00", apperrors.ReasonSlotClosed},
		{"no row", "2025-06-04T22:00", apperrors.ReasonSlotClosed},
		{"sunday", "2025-06-08T10:00", apperrors.ReasonSlotClosed},
		{"too soon", "2025-06-02T19:00", apperrors.ReasonTooLate},
		{"beyond horizon", "2025-06-17T10:00", apperrors.ReasonSlotClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := f.book(t, funded, tc.slotID)
			assert.False(t, out.OK)
			assert.Equal(t, string(tc.reason), out.Code)
			assert.NotEmpty(t, out.Message)
		})
	}
	assert.Equal(t, 5, f.credits(t, funded.ID), "rejections never debit")

	_, err = f.svc.Book(ctx, funded.ID, "not-a-slot")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestBook_OutOfWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// open a row beyond the horizon so the earlier checks pass
	_, err := f.store.Slots.SetStatus(ctx, []model.SlotKey{{Date: "2025-06-17", Hour: 10}}, model.SlotStatusFree, f.now)
	require.NoError(t, err)

	p := f.patient(t, 5, month)
	out := f.book(t, p, "2025-06-17T10:00")
	assert.Equal(t, string(apperrors.ReasonOutOfWindow), out.Code)

	out = f.book(t, p, "2025-06-16T10:00")
	assert.True(t, out.OK, "the last day of the window is bookable")
}

func TestBook_LeadTimeBoundary(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 6, 3, 10, 0, 0, 0, zone)

	early := f.patient(t, 1, month)
	f.now = start.Add(-(12*time.Hour + time.Minute))
	assert.True(t, f.book(t, early, "2025-06-03T10:00").OK)

	late := f.patient(t, 1, month)
	f.now = start.Add(-(11*time.Hour + 59*time.Minute))
	out := f.book(t, late, "2025-06-03T11:00")
	assert.True(t, out.OK, "11:00 is still 12h59m away")

	out = f.book(t, f.patient(t, 1, month), "2025-06-03T10:00")
	assert.Equal(t, string(apperrors.ReasonSlotTaken), out.Code, "taken is checked before lead time")

	f.now = time.Date(2025, 6, 2, 22, 1, 0, 0, zone)
	out = f.book(t, f.patient(t, 1, month), "2025-06-03T09:00")
	assert.Equal(t, string(apperrors.ReasonTooLate), out.Code)
}

func TestBook_InsufficientCredit(t *testing.T) {
	f := newFixture(t)

	none := f.patient(t, 0, month)
	assert.Equal(t, string(apperrors.ReasonInsufficientCredit), f.book(t, none, "2025-06-04T10:00").Code)

	expired := f.patient(t, 5, -time.Hour)
	assert.Equal(t, string(apperrors.ReasonInsufficientCredit), f.book(t, expired, "2025-06-04T10:00").Code)

	noWindow := f.patient(t, 5, 0)
	assert.Equal(t, string(apperrors.ReasonInsufficientCredit), f.book(t, noWindow, "2025-06-04T10:00").Code)
}

func TestBook_NoNegativeCredit(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 1, month)

	assert.True(t, f.book(t, p, "2025-06-04T10:00").OK)
	out := f.book(t, p, "2025-06-05T10:00")
	assert.Equal(t, string(apperrors.ReasonInsufficientCredit), out.Code)
	assert.Equal(t, 0, f.credits(t, p.ID))
}

func TestBook_DensityLimits(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 10, month)

	assert.True(t, f.book(t, p, "2025-06-03T10:00").OK)
	assert.Equal(t, string(apperrors.ReasonDensityLimit), f.book(t, p, "2025-06-03T15:00").Code, "one per day")

	assert.True(t, f.book(t, p, "2025-06-04T10:00").OK)
	assert.True(t, f.book(t, p, "2025-06-05T10:00").OK)
	assert.Equal(t, string(apperrors.ReasonDensityLimit), f.book(t, p, "2025-06-06T10:00").Code, "fourth in the week")

	assert.True(t, f.book(t, p, "2025-06-09T10:00").OK, "a new week starts on Monday")
	assert.Equal(t, 6, f.credits(t, p.ID))
}

func TestCancel_CreditConservation(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 3, month)

	out := f.book(t, p, "2025-06-05T10:00")
	require.True(t, out.OK)
	assert.Equal(t, 2, f.credits(t, p.ID))

	cancel, err := f.svc.Cancel(context.Background(), p.ID, *out.ReservationID)
	require.NoError(t, err)
	assert.True(t, cancel.OK)
	assert.True(t, cancel.Refunded)
	assert.Equal(t, 3, f.credits(t, p.ID))

	out = f.book(t, p, "2025-06-03T10:00")
	require.True(t, out.OK)
	f.now = time.Date(2025, 6, 2, 12, 0, 0, 0, zone) // 22h before the slot

	cancel, err = f.svc.Cancel(context.Background(), p.ID, *out.ReservationID)
	require.NoError(t, err)
	assert.True(t, cancel.OK)
	assert.False(t, cancel.Refunded)
	assert.Equal(t, 2, f.credits(t, p.ID))
}

func TestCancel_RefundBoundary(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 1, month)

	out := f.book(t, p, "2025-06-04T10:00")
	require.True(t, out.OK)

	f.now = time.Date(2025, 6, 3, 10, 0, 0, 0, zone) // exactly 24h
	cancel, err := f.svc.Cancel(context.Background(), p.ID, *out.ReservationID)
	require.NoError(t, err)
	assert.True(t, cancel.Refunded)
}

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 2, month)
	out := f.book(t, p, "2025-06-05T10:00")
	require.True(t, out.OK)

	first, err := f.svc.Cancel(context.Background(), p.ID, *out.ReservationID)
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := f.svc.Cancel(context.Background(), p.ID, *out.ReservationID)
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.Equal(t, string(apperrors.ReasonNotCancellable), second.Code)
	assert.Equal(t, 2, f.credits(t, p.ID), "no double refund")
}

func TestCancel_NotOwned(t *testing.T) {
	f := newFixture(t)
	owner := f.patient(t, 1, month)
	other := f.patient(t, 1, month)
	out := f.book(t, owner, "2025-06-05T10:00")
	require.True(t, out.OK)

	res, err := f.svc.Cancel(context.Background(), other.ID, *out.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, string(apperrors.ReasonNotFound), res.Code)

	res, err = f.svc.Cancel(context.Background(), owner.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, string(apperrors.ReasonNotFound), res.Code)
}

func TestCancel_FreesSlot(t *testing.T) {
	f := newFixture(t)
	first := f.patient(t, 1, month)
	second := f.patient(t, 1, month)

	out := f.book(t, first, "2025-06-05T10:00")
	require.True(t, out.OK)
	_, err := f.svc.Cancel(context.Background(), first.ID, *out.ReservationID)
	require.NoError(t, err)

	assert.True(t, f.book(t, second, "2025-06-05T10:00").OK)
}

func TestTwoCreditScenario(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 2, month)

	a := f.book(t, p, "2025-06-03T10:00")
	b := f.book(t, p, "2025-06-04T10:00")
	require.True(t, a.OK)
	require.True(t, b.OK)
	assert.Equal(t, 0, f.credits(t, p.ID))

	c := f.book(t, p, "2025-06-05T10:00")
	assert.Equal(t, string(apperrors.ReasonInsufficientCredit), c.Code)

	cancel, err := f.svc.Cancel(context.Background(), p.ID, *b.ReservationID)
	require.NoError(t, err)
	require.True(t, cancel.Refunded)
	assert.Equal(t, 1, f.credits(t, p.ID))

	assert.True(t, f.book(t, p, "2025-06-05T10:00").OK)
	assert.Equal(t, 0, f.credits(t, p.ID))
}

func TestReview(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 2, month)

	a := f.book(t, p, "2025-06-03T10:00")
	b := f.book(t, p, "2025-06-04T10:00")
	require.True(t, a.OK && b.OK)

	approved, err := f.svc.Review(context.Background(), *a.ReservationID, model.ReviewApprove)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusApproved, approved.Status)

	rejected, err := f.svc.Review(context.Background(), *b.ReservationID, model.ReviewReject)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusRejected, rejected.Status)
	assert.Equal(t, 1, f.credits(t, p.ID), "rejection returns the credit")

	_, err = f.svc.Review(context.Background(), *b.ReservationID, model.ReviewApprove)
	assert.Error(t, err)

	cancel, err := f.svc.Cancel(context.Background(), p.ID, *a.ReservationID)
	require.NoError(t, err)
	assert.True(t, cancel.OK, "approved reservations are cancellable")
}

func TestListForPatient(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 3, month)

	a := f.book(t, p, "2025-06-03T10:00")
	b := f.book(t, p, "2025-06-04T10:00")
	require.True(t, a.OK && b.OK)
	_, err := f.svc.Cancel(context.Background(), p.ID, *b.ReservationID)
	require.NoError(t, err)

	upcoming, err := f.svc.ListForPatient(context.Background(), p.ID, ScopeUpcoming, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "2025-06-03T10:00", upcoming[0].SlotID)

	history, err := f.svc.ListForPatient(context.Background(), p.ID, ScopeHistory, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ReservationStatusCancelled, history[0].Status)

	f.now = time.Date(2025, 6, 3, 12, 0, 0, 0, zone)
	history, err = f.svc.ListForPatient(context.Background(), p.ID, ScopeHistory, model.Pagination{})
	require.NoError(t, err)
	assert.Len(t, history, 2, "past appointments move to history")

	_, err = f.svc.ListForPatient(context.Background(), p.ID, "bogus", model.Pagination{})
	assert.Error(t, err)
}

func TestListUpcoming(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, 1, month)
	require.True(t, f.book(t, p, "2025-06-03T10:00").OK)

	views, err := f.svc.ListUpcoming(context.Background(), nil, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, p.Phone, views[0].PatientPhone)
}
