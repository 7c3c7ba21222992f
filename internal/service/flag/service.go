package flag

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Service appends and removes booking flags. Flags keep insertion order.
type Service struct {
	bookings repository.BookingRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(bookings repository.BookingRepository, logger *logger.Logger) *Service {
	return &Service{
		bookings: bookings,
		logger:   logger.With("flag"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Append(ctx context.Context, bookingID uuid.UUID, flagType model.FlagType, message, createdBy string) (*model.Flag, error) {
	if !flagType.IsValid() {
		return nil, errors.InvalidFlagType(string(flagType))
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.BadRequest("flag message is required", nil)
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return nil, errors.BadRequest("flag author is required", nil)
	}

	flag := model.NewFlag(bookingID, flagType, message, createdBy, s.now())
	_, err := s.bookings.Mutate(ctx, bookingID, model.EventBookingFlagged, func(b *model.Booking) error {
		b.Flags = append(b.Flags, flag)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("flag added", "booking_id", bookingID.String(), "flag_id", flag.ID.String(), "type", flagType)
	return &flag, nil
}

// Remove deletes exactly one flag. An unknown flag id leaves the booking untouched.
func (s *Service) Remove(ctx context.Context, bookingID, flagID uuid.UUID) error {
	_, err := s.bookings.Mutate(ctx, bookingID, model.EventBookingFlagRemoved, func(b *model.Booking) error {
		for i, f := range b.Flags {
			if f.ID == flagID {
				b.Flags = append(b.Flags[:i], b.Flags[i+1:]...)
				return nil
			}
		}
		return errors.NotFound("flag", nil)
	})
	if err != nil {
		return err
	}

	s.logger.Info("flag removed", "booking_id", bookingID.String(), "flag_id", flagID.String())
	return nil
}

func (s *Service) List(ctx context.Context, bookingID uuid.UUID) ([]model.Flag, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return b.Flags, nil
}
