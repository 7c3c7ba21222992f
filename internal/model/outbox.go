package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Event types written by the ledger.
const (
	EventBookingCreated        = "booking.created"
	EventBookingStatusChanged  = "booking.status_changed"
	EventBookingPaymentChanged = "booking.payment_changed"
	EventBookingRefunded       = "booking.refunded"
	EventBookingDeleted        = "booking.deleted"
	EventBookingFlagged        = "booking.flag_added"
	EventBookingFlagRemoved    = "booking.flag_removed"
	EventAvailabilityReplaced  = "availability.replaced"
	EventProviderUpdated       = "provider.updated"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, aggregateID uuid.UUID, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkProcessed records successful delivery.
func (e *OutboxEvent) MarkProcessed(now time.Time) {
	e.Status = OutboxStatusProcessed
	e.ProcessedAt = &now
	e.ErrorMessage = nil
	e.RetryAt = nil
	e.UpdatedAt = now
}

// MarkFailed schedules a retry with linear backoff, or parks the event as
// failed once maxRetries is exhausted.
func (e *OutboxEvent) MarkFailed(cause error, now time.Time, maxRetries int, delay time.Duration) {
	msg := cause.Error()
	e.ErrorMessage = &msg
	e.RetryCount++
	e.UpdatedAt = now
	if e.RetryCount >= maxRetries {
		e.Status = OutboxStatusFailed
		e.RetryAt = nil
		return
	}
	next := now.Add(delay * time.Duration(e.RetryCount))
	e.Status = OutboxStatusPending
	e.RetryAt = &next
}
