package model

import (
	"time"

	"github.com/google/uuid"
)

// Booking is a reservation of one provider slot.
type Booking struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	ProviderID    uuid.UUID     `db:"provider_id" json:"provider_id"`
	RequesterID   *uuid.UUID    `db:"requester_id" json:"requester_id,omitempty"`
	Date          string        `db:"date" json:"date"`
	Time          string        `db:"time" json:"time"`
	Status        BookingStatus `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	Amount        int64         `db:"amount" json:"amount"`
	Currency      string        `db:"currency" json:"currency"`
	Reference     string        `db:"reference" json:"reference,omitempty"`
	Reason        string        `db:"reason" json:"reason,omitempty"`
	Name          string        `db:"name" json:"name"`
	Email         string        `db:"email" json:"email"`
	Phone         string        `db:"phone" json:"phone"`
	Location      string        `db:"location" json:"location,omitempty"`
	FilledByOther bool          `db:"filled_by_other" json:"filled_by_other"`
	Flags         []Flag        `db:"-" json:"flags"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy, flags included.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.RequesterID != nil {
		id := *b.RequesterID
		c.RequesterID = &id
	}
	c.Flags = make([]Flag, len(b.Flags))
	copy(c.Flags, b.Flags)
	return &c
}

// SameRequester reports whether both bookings belong to the same known requester.
func (b *Booking) SameRequester(requesterID *uuid.UUID) bool {
	return b.RequesterID != nil && requesterID != nil && *b.RequesterID == *requesterID
}

type CreateBookingRequest struct {
	ProviderID    uuid.UUID     `json:"provider_id" binding:"required"`
	RequesterID   *uuid.UUID    `json:"requester_id"`
	Date          string        `json:"date" binding:"required,datestr"`
	Time          string        `json:"time" binding:"required,clock"`
	Reason        string        `json:"reason" binding:"max=1000"`
	Name          string        `json:"name" binding:"required,max=200"`
	Email         string        `json:"email" binding:"required,email"`
	Phone         string        `json:"phone" binding:"required,max=32"`
	Reference     string        `json:"reference" binding:"max=128"`
	Location      string        `json:"location" binding:"max=200"`
	FilledByOther bool          `json:"filled_by_other"`
	Status        BookingStatus `json:"status" binding:"omitempty,oneof=pending confirmed"`
	PaymentStatus PaymentStatus `json:"payment_status" binding:"omitempty,oneof=pending completed failed refunded"`
}

type UpdateStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required,oneof=pending confirmed cancelled completed"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status" binding:"required,oneof=pending completed failed refunded"`
}

// RefundRequest identifies the booking either by id or by payment reference.
type RefundRequest struct {
	BookingID *uuid.UUID `json:"booking_id"`
	Reference string     `json:"reference" binding:"max=128"`
}

// TransactionFilter drives the transactions report.
type TransactionFilter struct {
	StartDate     string        `form:"startDate" binding:"omitempty,datestr"`
	EndDate       string        `form:"endDate" binding:"omitempty,datestr"`
	PaymentStatus PaymentStatus `form:"paymentStatus" binding:"omitempty,oneof=pending completed failed refunded"`
	ProviderID    *uuid.UUID    `form:"-"`
	RequesterID   *uuid.UUID    `form:"-"`
	SortOrder
	Pagination
}

// Normalize fills the report defaults: newest date first, ten rows per page.
func (f *TransactionFilter) Normalize() {
	f.Pagination.Normalize()
	if _, ok := TransactionSortFields[f.Field]; !ok {
		f.Field = "date"
	}
	if f.Dir != "asc" {
		f.Dir = "desc"
	}
}

// TransactionSortFields maps accepted sort keys onto columns.
var TransactionSortFields = map[string]string{
	"date":      "date",
	"time":      "time",
	"amount":    "amount",
	"createdAt": "created_at",
}

// TransactionSummary is computed over every booking that matches the filter,
// not only the current page.
type TransactionSummary struct {
	TotalAmount           int64 `json:"total_amount" db:"total_amount"`
	TotalTransactions     int64 `json:"total_transactions" db:"total_transactions"`
	CompletedTransactions int64 `json:"completed_transactions" db:"completed_transactions"`
	PendingTransactions   int64 `json:"pending_transactions" db:"pending_transactions"`
	FailedTransactions    int64 `json:"failed_transactions" db:"failed_transactions"`
	RefundedTransactions  int64 `json:"refunded_transactions" db:"refunded_transactions"`
}

// Add folds one booking into the summary.
func (s *TransactionSummary) Add(b *Booking) {
	s.TotalAmount += b.Amount
	s.TotalTransactions++
	switch b.PaymentStatus {
	case PaymentStatusCompleted:
		s.CompletedTransactions++
	case PaymentStatusPending:
		s.PendingTransactions++
	case PaymentStatusFailed:
		s.FailedTransactions++
	case PaymentStatusRefunded:
		s.RefundedTransactions++
	}
}

type TransactionPage struct {
	Transactions []*Booking
	Summary      TransactionSummary
	Total        int64
}
