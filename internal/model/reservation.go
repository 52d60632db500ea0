package model

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusBooked    ReservationStatus = "booked"
	ReservationStatusApproved  ReservationStatus = "approved"
	ReservationStatusRejected  ReservationStatus = "rejected"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// ActiveReservationStatuses block a slot for everyone else.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusBooked,
	ReservationStatusApproved,
}

func (s ReservationStatus) IsActive() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusBooked, ReservationStatusApproved:
		return true
	}
	return false
}

// Cancellable reports whether the patient may still cancel.
func (s ReservationStatus) Cancellable() bool {
	return s == ReservationStatusBooked || s == ReservationStatusApproved
}

// Reviewable reports whether an admin may approve or reject.
func (s ReservationStatus) Reviewable() bool {
	return s == ReservationStatusPending || s == ReservationStatusBooked
}

type Reservation struct {
	Base
	SlotID         string            `db:"slot_id" json:"slot_id"`
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	Status         ReservationStatus `db:"status" json:"status"`
	CancelledAt    *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ReminderAt     *time.Time        `db:"reminder_at" json:"reminder_at,omitempty"`
	ReminderSentAt *time.Time        `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
}

// ReservationView joins a reservation with its slot and patient for listings.
type ReservationView struct {
	Reservation
	Date             string `db:"date" json:"date"`
	Hour             int    `db:"hour" json:"hour"`
	DurationMinutes  int    `db:"duration_minutes" json:"duration_minutes"`
	PatientFirstName string `db:"first_name" json:"patient_first_name,omitempty"`
	PatientLastName  string `db:"last_name" json:"patient_last_name,omitempty"`
	PatientPhone     string `db:"phone" json:"patient_phone,omitempty"`
}

type ReservationFilters struct {
	PatientID *uuid.UUID
	Statuses  []ReservationStatus
	// FromSlot and ToSlot bound slot ids lexically, which matches chronological order.
	FromSlot string
	ToSlot   string
	// HistoryBefore keeps reservations that are inactive or whose slot id sorts before it.
	HistoryBefore string
	// Descending lists the latest slot first.
	Descending bool
	Pagination
}

// BookingOutcome is the structured result of a booking attempt.
type BookingOutcome struct {
	OK            bool       `json:"ok"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	SlotID        string     `json:"slot_id,omitempty"`
	Code          string     `json:"code,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// CancelOutcome is the structured result of a cancellation.
type CancelOutcome struct {
	OK       bool   `json:"ok"`
	Refunded bool   `json:"refunded"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

type BookRequest struct {
	SlotID string `json:"slot_id" binding:"required,slotid"`
}

type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

type ReviewRequest struct {
	Decision ReviewDecision `json:"decision" binding:"required,oneof=approve reject"`
}
