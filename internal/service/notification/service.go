package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// Service turns booking events into e-mails for the booking contact.
type Service struct {
	sender  email.Sender
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(sender email.Sender, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		sender:  sender,
		logger:  logger.With("notification"),
		metrics: metrics,
	}
}

// Handle is a messaging.Handler. Events that need no e-mail are acknowledged
// without side effects.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) error {
	var b model.Booking
	if err := msg.Decode(&b); err != nil {
		s.metrics.NotificationsSent.WithLabelValues(msg.Type, "invalid").Inc()
		return fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
	}

	subject, body, ok := compose(msg.Type, &b)
	if !ok {
		s.metrics.NotificationsSent.WithLabelValues(msg.Type, "skipped").Inc()
		return nil
	}
	if strings.TrimSpace(b.Email) == "" {
		s.metrics.NotificationsSent.WithLabelValues(msg.Type, "skipped").Inc()
		s.logger.Warn("booking has no contact email", "booking_id", b.ID.String())
		return nil
	}

	if err := s.sender.Send(ctx, b.Email, subject, body); err != nil {
		s.metrics.NotificationsSent.WithLabelValues(msg.Type, "failed").Inc()
		return err
	}

	s.metrics.NotificationsSent.WithLabelValues(msg.Type, "sent").Inc()
	s.logger.Info("notification sent", "booking_id", b.ID.String(), "event_type", msg.Type)
	return nil
}

func compose(eventType string, b *model.Booking) (subject, body string, ok bool) {
	when := fmt.Sprintf("%s at %s", b.Date, b.Time)
	switch eventType {
	case model.EventBookingStatusChanged:
		switch b.Status {
		case model.BookingStatusConfirmed:
			return "Your consultation is confirmed",
				fmt.Sprintf("Hello %s,\n\nYour consultation on %s is confirmed.\n", b.Name, when), true
		case model.BookingStatusCancelled:
			return "Your consultation was cancelled",
				fmt.Sprintf("Hello %s,\n\nYour consultation on %s has been cancelled.\n", b.Name, when), true
		}
	case model.EventBookingRefunded:
		return "Your payment was refunded",
			fmt.Sprintf("Hello %s,\n\nYour payment of %s for the consultation on %s has been refunded.\n",
				b.Name, formatAmount(b.Amount, b.Currency), when), true
	}
	return "", "", false
}

// Amounts are whole currency units.
func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%s %d", currency, amount)
}
