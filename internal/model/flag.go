package model

import (
	"time"

	"github.com/google/uuid"
)

type FlagType string

const (
	FlagTypeWarning FlagType = "warning"
	FlagTypeInfo    FlagType = "info"
	FlagTypeSuccess FlagType = "success"
	FlagTypeError   FlagType = "error"
)

func (t FlagType) IsValid() bool {
	switch t {
	case FlagTypeWarning, FlagTypeInfo, FlagTypeSuccess, FlagTypeError:
		return true
	}
	return false
}

// SystemActor is recorded as the author of flags the ledger writes itself.
const SystemActor = "system"

// Flag is an annotation on a booking.
type Flag struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BookingID uuid.UUID `db:"booking_id" json:"-"`
	Type      FlagType  `db:"type" json:"type"`
	Message   string    `db:"message" json:"message"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewFlag stamps a new flag with a server-side id and time.
func NewFlag(bookingID uuid.UUID, flagType FlagType, message, createdBy string, now time.Time) Flag {
	return Flag{
		ID:        uuid.New(),
		BookingID: bookingID,
		Type:      flagType,
		Message:   message,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
}

type AddFlagRequest struct {
	Type      FlagType `json:"type" binding:"required"`
	Message   string   `json:"message" binding:"required,max=1000"`
	CreatedBy string   `json:"created_by" binding:"max=128"`
}
