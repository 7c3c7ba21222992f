package booking

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const refundFlagMessage = "Refund processed"

// Service is the booking ledger. Every write goes through a repository lock
// so two requesters can never both hold the same slot.
type Service struct {
	bookings repository.BookingRepository
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(bookings repository.BookingRepository, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		bookings: bookings,
		logger:   logger.With("booking"),
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the slot and inserts the booking atomically. The amount
// is the provider's fee at this moment and is never recomputed.
func (s *Service) Create(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error) {
	if err := validateSlotRef(req.Date, req.Time); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = model.BookingStatusPending
	}
	if !status.IsActive() {
		return nil, errors.BadRequest("a booking can only start as pending or confirmed", nil)
	}
	payment := req.PaymentStatus
	if payment == "" {
		payment = model.PaymentStatusPending
	}
	if !payment.IsValid() {
		return nil, errors.BadRequest("invalid payment status", nil)
	}

	var created *model.Booking
	err := s.bookings.WithProviderLock(ctx, req.ProviderID, func(tx repository.LedgerTx) error {
		day, err := tx.GetDay(ctx, req.Date)
		if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			return err
		}
		if !day.HasSlot(req.Time) {
			return errors.SlotUnavailable(req.Date, req.Time)
		}

		existing, err := tx.FindActiveBooking(ctx, req.Date, req.Time)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.SameRequester(req.RequesterID) {
				return errors.DuplicateRequest("You already have a booking for this slot")
			}
			return errors.Conflict("This time slot is already booked", nil)
		}

		provider := tx.Provider()
		b := &model.Booking{
			ID:            uuid.New(),
			ProviderID:    provider.ID,
			RequesterID:   req.RequesterID,
			Date:          req.Date,
			Time:          req.Time,
			Status:        status,
			PaymentStatus: payment,
			Amount:        provider.ConsultationFee,
			Currency:      provider.Currency,
			Reference:     strings.TrimSpace(req.Reference),
			Reason:        req.Reason,
			Name:          strings.TrimSpace(req.Name),
			Email:         strings.TrimSpace(req.Email),
			Phone:         strings.TrimSpace(req.Phone),
			Location:      req.Location,
			FilledByOther: req.FilledByOther,
			Flags:         []model.Flag{},
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}

		evt, err := model.NewOutboxEvent(model.EventBookingCreated, b.ID, b)
		if err != nil {
			return errors.Internal(err)
		}
		if err := tx.AddEvent(ctx, evt); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		s.metrics.BookingRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	s.metrics.BookingsCreated.Inc()
	s.logger.Info("booking created",
		"booking_id", created.ID.String(),
		"provider_id", created.ProviderID.String(),
		"date", created.Date,
		"time", created.Time)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.bookings.Get(ctx, id)
}

// UpdateStatus moves the booking along the status state machine.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) (*model.Booking, error) {
	if !status.IsValid() {
		return nil, errors.BadRequest("invalid status", nil)
	}

	var from model.BookingStatus
	updated, err := s.bookings.Mutate(ctx, id, model.EventBookingStatusChanged, func(b *model.Booking) error {
		if !b.Status.CanTransitionTo(status) {
			return errors.InvalidTransition("booking status", string(b.Status), string(status))
		}
		from = b.Status
		b.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues("booking", string(from), string(status)).Inc()
	s.logger.Info("booking status changed", "booking_id", id.String(), "from", from, "to", status)
	return updated, nil
}

// UpdatePaymentStatus records a callback from the payment collaborator.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) (*model.Booking, error) {
	if !status.IsValid() {
		return nil, errors.BadRequest("invalid payment status", nil)
	}
	// Refunds carry their own rule and flag; they only go through Refund.
	if status == model.PaymentStatusRefunded {
		return nil, errors.RefundNotPermitted("Refunds must go through /payments/refund")
	}

	var from model.PaymentStatus
	updated, err := s.bookings.Mutate(ctx, id, model.EventBookingPaymentChanged, func(b *model.Booking) error {
		if !b.PaymentStatus.CanTransitionTo(status) {
			return errors.InvalidTransition("payment status", string(b.PaymentStatus), string(status))
		}
		from = b.PaymentStatus
		b.PaymentStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues("payment", string(from), string(status)).Inc()
	s.logger.Info("payment status changed", "booking_id", id.String(), "from", from, "to", status)
	return updated, nil
}

// Refund marks the payment refunded and leaves an info flag behind. The
// booking status itself does not change.
func (s *Service) Refund(ctx context.Context, req *model.RefundRequest) (*model.Booking, error) {
	var id uuid.UUID
	switch {
	case req.BookingID != nil:
		id = *req.BookingID
	case strings.TrimSpace(req.Reference) != "":
		b, err := s.bookings.GetByReference(ctx, strings.TrimSpace(req.Reference))
		if err != nil {
			return nil, err
		}
		id = b.ID
	default:
		return nil, errors.BadRequest("booking_id or reference is required", nil)
	}

	updated, err := s.bookings.Mutate(ctx, id, model.EventBookingRefunded, func(b *model.Booking) error {
		if blocker := model.CheckRefund(b.Status, b.PaymentStatus); blocker != model.RefundAllowed {
			return errors.RefundNotPermitted(string(blocker))
		}
		b.PaymentStatus = model.PaymentStatusRefunded
		b.Flags = append(b.Flags, model.NewFlag(b.ID, model.FlagTypeInfo, refundFlagMessage, model.SystemActor, s.now()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Refunds.Inc()
	s.logger.Info("booking refunded", "booking_id", id.String(), "amount", updated.Amount)
	return updated, nil
}

// Remove hard-deletes the booking.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	removed, err := s.bookings.Delete(ctx, id, model.EventBookingDeleted)
	if err != nil {
		return err
	}
	s.logger.Info("booking removed", "booking_id", id.String(), "status", removed.Status)
	return nil
}

func (s *Service) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*model.Booking, error) {
	return s.bookings.ListByRequester(ctx, requesterID)
}

func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Booking, error) {
	return s.bookings.ListByProvider(ctx, providerID)
}

// ListActiveByProviderAndDate returns the pending and confirmed bookings of one day.
func (s *Service) ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date string) ([]*model.Booking, error) {
	if _, err := model.ParseDate(date, time.UTC); err != nil {
		return nil, errors.BadRequest("invalid date", err)
	}
	return s.bookings.ListActiveByProviderAndDate(ctx, providerID, date)
}

// Transactions pages through bookings as payment records with a summary
// over the whole filtered set.
func (s *Service) Transactions(ctx context.Context, filter *model.TransactionFilter) (*model.TransactionPage, error) {
	if filter.StartDate != "" && filter.EndDate != "" && filter.EndDate < filter.StartDate {
		return nil, errors.BadRequest("endDate must not be before startDate", nil)
	}
	filter.Normalize()
	return s.bookings.Transactions(ctx, filter)
}

func validateSlotRef(date, clock string) error {
	if _, err := model.ParseDate(date, time.UTC); err != nil {
		return errors.BadRequest("invalid date", err)
	}
	if _, err := model.ParseClock(clock); err != nil {
		return errors.BadRequest("invalid time", err)
	}
	return nil
}

func rejectionReason(err error) string {
	switch errors.As(err).Code {
	case errors.CodeNotFound:
		return "provider_not_found"
	case errors.CodeSlotUnavailable:
		return "slot_unavailable"
	case errors.CodeDuplicateRequest:
		return "duplicate"
	case errors.CodeConflict:
		return "conflict"
	default:
		return "error"
	}
}
