package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
)

// db is the shared state; one mutex serializes every operation, which gives the same
// guarantees as the row locks and unique index of the postgres backend.
type db struct {
	mu           sync.Mutex
	slots        map[string]*model.Slot
	reservations map[uuid.UUID]*model.Reservation
	profiles     map[uuid.UUID]*model.Profile
	otp          []*model.OTPCode
	outbox       []*model.OutboxEvent
}

// NewStore returns an empty in-memory backend.
func NewStore() *repository.Store {
	d := &db{
		slots:        make(map[string]*model.Slot),
		reservations: make(map[uuid.UUID]*model.Reservation),
		profiles:     make(map[uuid.UUID]*model.Profile),
	}
	return &repository.Store{
		Slots:        &slotRepository{d},
		Reservations: &reservationRepository{d},
		Reminders:    &reminderRepository{d},
		Profiles:     &profileRepository{d},
		OTP:          &otpRepository{d},
		Outbox:       &outboxRepository{d},
		Ping:         func(context.Context) error { return nil },
		Close:        func() error { return nil },
	}
}

func (d *db) emit(notice model.ChangeNotice) {
	event, err := model.NewOutboxEvent(notice)
	if err != nil {
		return
	}
	d.outbox = append(d.outbox, event)
}

func (d *db) slotReserved(slotID string) bool {
	for _, r := range d.reservations {
		if r.SlotID == slotID && r.Status.IsActive() {
			return true
		}
	}
	return false
}

// credit returns one credit when the balance still has a validity window.
func (d *db) credit(patientID uuid.UUID, now time.Time) bool {
	p, ok := d.profiles[patientID]
	if !ok || !p.Balance().HasWindow(now) {
		return false
	}
	p.Credits++
	p.UpdatedAt = now
	return true
}

func copySlot(s *model.Slot) *model.Slot {
	c := *s
	return &c
}

func copyReservation(r *model.Reservation) *model.Reservation {
	c := *r
	return &c
}

func copyProfile(p *model.Profile) *model.Profile {
	c := *p
	return &c
}
