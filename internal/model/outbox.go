package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Event types written to the outbox.
const (
	EventReservationBooked    = "reservation.booked"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationReviewed  = "reservation.reviewed"
	EventSlotStatusChanged    = "slot.status_changed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// ChangeNotice is the payload of every event and of the change feed. It only tells
// subscribers what to re-read.
type ChangeNotice struct {
	Type          string     `json:"type"`
	SlotID        string     `json:"slot_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	At            time.Time  `json:"at"`
}

// NewOutboxEvent wraps a change notice into a pending outbox row.
func NewOutboxEvent(notice ChangeNotice) (*OutboxEvent, error) {
	payload, err := json.Marshal(notice)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: notice.Type,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
