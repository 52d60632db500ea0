package policy

import (
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// Rules holds the booking and cancellation business rules.
type Rules struct {
	LeadTime     time.Duration
	HorizonDays  int
	RefundWindow time.Duration
	DailyLimit   int
	WeeklyLimit  int
	ReminderLead time.Duration
	Template     Template
	Location     *time.Location
}

func DefaultRules(loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{
		LeadTime:     12 * time.Hour,
		HorizonDays:  14,
		RefundWindow: 24 * time.Hour,
		DailyLimit:   1,
		WeeklyLimit:  3,
		ReminderLead: 24 * time.Hour,
		Template:     DefaultTemplate(),
		Location:     loc,
	}
}

// BookingFacts is the state read inside the booking transaction.
type BookingFacts struct {
	Key model.SlotKey
	// Slot is nil when no row exists.
	Slot         *model.Slot
	SlotReserved bool
	Balance      model.CreditBalance
	// DayCount and WeekCount are the patient's active reservations on the slot date and in
	// its Monday-based week.
	DayCount  int
	WeekCount int
}

// CheckBooking applies the checks in their fixed order and returns the first rejection.
func (r Rules) CheckBooking(f BookingFacts, now time.Time) error {
	if !r.SlotOpen(f.Key, f.Slot) {
		return apperrors.ErrSlotClosed
	}
	if f.SlotReserved {
		return apperrors.ErrSlotTaken
	}
	start := f.Key.Start(r.Location)
	if start.Sub(now) <= r.LeadTime {
		return apperrors.ErrTooLate
	}
	if !r.WithinHorizon(f.Key, now) {
		return apperrors.ErrOutOfWindow
	}
	if f.Balance.Usable(now) < 1 {
		return apperrors.ErrInsufficientCredit
	}
	if f.DayCount >= r.DailyLimit || f.WeekCount >= r.WeeklyLimit {
		return apperrors.ErrDensityLimit
	}
	return nil
}

// SlotOpen: a row exists, is free, and the hour belongs to the weekly template.
func (r Rules) SlotOpen(key model.SlotKey, slot *model.Slot) bool {
	if slot == nil || slot.Status != model.SlotStatusFree {
		return false
	}
	return r.InTemplate(key)
}

func (r Rules) InTemplate(key model.SlotKey) bool {
	return r.Template.Allows(key.Day(r.Location).Weekday(), key.Hour)
}

// WithinHorizon: the slot date is no later than today plus HorizonDays.
func (r Rules) WithinHorizon(key model.SlotKey, now time.Time) bool {
	limit := r.Today(now).AddDate(0, 0, r.HorizonDays)
	return !key.Day(r.Location).After(limit)
}

// Today is midnight of now's date in the clinic zone.
func (r Rules) Today(now time.Time) time.Time {
	local := now.In(r.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.Location)
}

// BookableDates returns the first and last date patients can see.
func (r Rules) BookableDates(now time.Time) (string, string) {
	today := r.Today(now)
	return today.Format(model.DateLayout), today.AddDate(0, 0, r.HorizonDays).Format(model.DateLayout)
}

// Week returns the Monday starting the week of key and the Monday after, as dates.
func (r Rules) Week(key model.SlotKey) (string, string) {
	day := key.Day(r.Location)
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return monday.Format(model.DateLayout), monday.AddDate(0, 0, 7).Format(model.DateLayout)
}

// RefundDue reports whether cancelling at now returns the credit.
func (r Rules) RefundDue(key model.SlotKey, now time.Time) bool {
	return key.Start(r.Location).Sub(now) >= r.RefundWindow
}

// ReminderAt is ReminderLead before the start, but never before now.
func (r Rules) ReminderAt(key model.SlotKey, now time.Time) time.Time {
	at := key.Start(r.Location).Add(-r.ReminderLead)
	if at.Before(now) {
		return now
	}
	return at
}

// Availability derives the state of one slot.
func (r Rules) Availability(key model.SlotKey, slot *model.Slot, reserved bool) model.Availability {
	if !r.SlotOpen(key, slot) {
		return model.AvailabilityClosed
	}
	if reserved {
		return model.AvailabilityReserved
	}
	return model.AvailabilityFree
}

// Grid enumerates the template hours of every date in [from, to].
func (r Rules) Grid(from, to string) ([]model.SlotKey, error) {
	start, err := time.ParseInLocation(model.DateLayout, from, r.Location)
	if err != nil {
		return nil, apperrors.BadRequest("invalid from date", err)
	}
	end, err := time.ParseInLocation(model.DateLayout, to, r.Location)
	if err != nil {
		return nil, apperrors.BadRequest("invalid to date", err)
	}
	if end.Before(start) {
		return nil, apperrors.BadRequest("to must not be before from", nil)
	}
	if end.Sub(start) > 62*24*time.Hour {
		return nil, apperrors.BadRequest("date range too large", nil)
	}

	var keys []model.SlotKey
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, h := range r.Template.Hours(d.Weekday()) {
			keys = append(keys, model.SlotKey{Date: d.Format(model.DateLayout), Hour: h})
		}
	}
	return keys, nil
}
