package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/repository"
)

// NewStore wires every postgres repository on one connection pool.
func NewStore(db *sqlx.DB) *repository.Store {
	base := NewBaseRepository(db)
	return &repository.Store{
		Slots:        NewSlotRepository(base),
		Reservations: NewReservationRepository(base),
		Reminders:    NewReminderRepository(base),
		Profiles:     NewProfileRepository(base),
		OTP:          NewOTPRepository(base),
		Outbox:       NewOutboxRepository(base),
		Ping:         func(ctx context.Context) error { return db.PingContext(ctx) },
		Close:        db.Close,
	}
}
