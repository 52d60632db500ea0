package model

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the calendar date format used across the API.
	DateLayout = "2006-01-02"
	// SlotIDLayout is the format of a slot id, the slot start in clinic local time.
	SlotIDLayout = "2006-01-02T15:04"

	SlotDurationMinutes = 60
)

type SlotStatus string

const (
	SlotStatusFree   SlotStatus = "free"
	SlotStatusClosed SlotStatus = "closed"
)

func (s SlotStatus) Valid() bool {
	return s == SlotStatusFree || s == SlotStatusClosed
}

// Slot is a stored slot row. A (date, hour) without a row is closed.
type Slot struct {
	ID              string     `db:"id" json:"id"`
	Date            string     `db:"date" json:"date"`
	Hour            int        `db:"hour" json:"hour"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          SlotStatus `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// SlotKey identifies a slot by clinic-local date and start hour.
type SlotKey struct {
	Date string
	Hour int
}

func NewSlotKey(date string, hour int) (SlotKey, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return SlotKey{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if hour < 0 || hour > 23 {
		return SlotKey{}, fmt.Errorf("invalid hour %d", hour)
	}
	return SlotKey{Date: date, Hour: hour}, nil
}

// ParseSlotID parses "YYYY-MM-DDTHH:MM". Minutes must be zero.
func ParseSlotID(id string) (SlotKey, error) {
	t, err := time.Parse(SlotIDLayout, id)
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot id %q: %w", id, err)
	}
	if t.Minute() != 0 {
		return SlotKey{}, fmt.Errorf("invalid slot id %q: slots start on the hour", id)
	}
	return SlotKey{Date: t.Format(DateLayout), Hour: t.Hour()}, nil
}

func (k SlotKey) ID() string {
	return fmt.Sprintf("%sT%02d:00", k.Date, k.Hour)
}

// Start returns the slot start instant in loc.
func (k SlotKey) Start(loc *time.Location) time.Time {
	d, _ := time.ParseInLocation(DateLayout, k.Date, loc)
	return time.Date(d.Year(), d.Month(), d.Day(), k.Hour, 0, 0, 0, loc)
}

// Day returns midnight of the slot date in loc.
func (k SlotKey) Day(loc *time.Location) time.Time {
	d, _ := time.ParseInLocation(DateLayout, k.Date, loc)
	return d
}

func (s *Slot) Key() SlotKey {
	return SlotKey{Date: s.Date, Hour: s.Hour}
}

// Availability is the derived state of a slot; it is never stored.
type Availability string

const (
	AvailabilityFree     Availability = "free"
	AvailabilityReserved Availability = "reserved"
	AvailabilityClosed   Availability = "closed"
)

// SlotAvailability is one cell of the availability grid.
type SlotAvailability struct {
	SlotID       string       `json:"slot_id"`
	Date         string       `json:"date"`
	Hour         int          `json:"hour"`
	Availability Availability `json:"availability"`
}

type SetSlotStatusRequest struct {
	Date   string     `json:"date" binding:"required,datetime=2006-01-02"`
	Hour   int        `json:"hour" binding:"min=0,max=23"`
	Status SlotStatus `json:"status" binding:"required,oneof=free closed"`
}

type SetDayStatusRequest struct {
	Date   string     `json:"date" binding:"required,datetime=2006-01-02"`
	Status SlotStatus `json:"status" binding:"required,oneof=free closed"`
}

// SlotStatusResult reports an admin change; Reserved warns that a soft-closed slot still
// carries an active reservation.
type SlotStatusResult struct {
	Slot     *Slot `json:"slot"`
	Reserved bool  `json:"reserved"`
}

type ReservedSlotsRequest struct {
	SlotIDs []string `json:"slot_ids" binding:"required,max=1000,dive,slotid"`
}
