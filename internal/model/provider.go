package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultStartTime = "09:00"
	DefaultEndTime   = "17:00"
	DefaultCurrency  = "LKR"
)

// Provider is the bookable party. Its profile is owned by the directory
// service; the ledger keeps only what pricing and the calendar need.
type Provider struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	ConsultationFee  int64     `db:"consultation_fee" json:"consultation_fee"`
	Currency         string    `db:"currency" json:"currency"`
	DefaultStartTime string    `db:"default_start_time" json:"default_start_time"`
	DefaultEndTime   string    `db:"default_end_time" json:"default_end_time"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type UpsertProviderRequest struct {
	Name             string `json:"name" binding:"required,max=200"`
	ConsultationFee  int64  `json:"consultation_fee" binding:"min=0"`
	Currency         string `json:"currency" binding:"omitempty,len=3"`
	DefaultStartTime string `json:"default_start_time" binding:"omitempty,clock"`
	DefaultEndTime   string `json:"default_end_time" binding:"omitempty,clock"`
}
