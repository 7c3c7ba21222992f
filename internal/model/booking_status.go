package model

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCancelled: {},
	BookingStatusCompleted: {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// IsActive reports whether the booking holds its slot.
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

func (s BookingStatus) IsTerminal() bool {
	next, ok := bookingTransitions[s]
	return ok && len(next) == 0
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ActiveBookingStatuses lists the states that occupy a slot.
func ActiveBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusPending, BookingStatusConfirmed}
}

// PaymentStatus mirrors the external payment collaborator.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// A captured payment can still be reversed, so completed -> refunded is allowed.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) IsTerminal() bool {
	next, ok := paymentTransitions[s]
	return ok && len(next) == 0
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// RefundBlocker is returned by CheckRefund when a refund must be refused.
type RefundBlocker string

const (
	RefundAllowed          RefundBlocker = ""
	RefundBlockedByStatus  RefundBlocker = "Only pending appointments can be refunded"
	RefundBlockedByPayment RefundBlocker = "Payment cannot be refunded in its current state"
)

// CheckRefund applies the refund rule: the booking must still be pending and
// its payment must be able to move to refunded.
func CheckRefund(status BookingStatus, payment PaymentStatus) RefundBlocker {
	if status != BookingStatusPending {
		return RefundBlockedByStatus
	}
	if !payment.CanTransitionTo(PaymentStatusRefunded) {
		return RefundBlockedByPayment
	}
	return RefundAllowed
}
