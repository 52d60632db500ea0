package model

import (
	"time"

	"github.com/google/uuid"
)

// DueReminder is a reservation whose reminder should go out.
type DueReminder struct {
	ReservationID  uuid.UUID         `db:"id" json:"id"`
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	SlotID         string            `db:"slot_id" json:"slot_id"`
	Status         ReservationStatus `db:"status" json:"status"`
	ReminderAt     *time.Time        `db:"reminder_at" json:"reminder_at"`
	ReminderSentAt *time.Time        `db:"reminder_sent_at" json:"reminder_sent_at"`
	Phone          string            `db:"phone" json:"phone"`
	Email          *string           `db:"email" json:"email,omitempty"`
	FirstName      string            `db:"first_name" json:"first_name"`
}

type DispatchMode string

const (
	DispatchAuto  DispatchMode = "auto"
	DispatchForce DispatchMode = "force"
)

type DispatchOptions struct {
	// ForceID sends the reminder of one reservation regardless of its marker.
	ForceID *uuid.UUID
	// DryRun renders messages without sending or marking.
	DryRun bool
}

type ReminderResult struct {
	ID             uuid.UUID         `json:"id"`
	Status         ReservationStatus `json:"status"`
	Phone          string            `json:"phone"`
	ValidPhone     bool              `json:"valid_phone"`
	ReminderAt     *time.Time        `json:"reminder_at"`
	ReminderSentAt *time.Time        `json:"reminder_sent_at"`
	ReadableTime   string            `json:"readable_time"`
	Skip           string            `json:"skip,omitempty"`
	Preview        bool              `json:"preview,omitempty"`
	Body           string            `json:"body,omitempty"`
	MessageID      string            `json:"message_id,omitempty"`
	MarkedSent     bool              `json:"marked_sent,omitempty"`
	Error          string            `json:"error,omitempty"`
}

type DispatchReport struct {
	OK      bool             `json:"ok"`
	Mode    DispatchMode     `json:"mode"`
	Sent    int              `json:"sent"`
	Results []ReminderResult `json:"results"`
}

// Message is an outbound notification to one patient.
type Message struct {
	To      string
	Email   string
	Subject string
	Body    string
}
