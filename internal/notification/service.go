package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

type Feed interface {
	Append(ctx context.Context, n domain.Notification) (bool, error)
}

type Service struct {
	feed   Feed
	logger *slog.Logger
}

func NewService(feed Feed, logger *slog.Logger) *Service {
	return &Service{feed: feed, logger: logger}
}

// OnEmployeeUpdated tells administrators which employee changed.
func (s *Service) OnEmployeeUpdated(ctx context.Context, event domain.EmployeeUpdatedEvent) error {
	if event.EventID == "" {
		return broker.Permanent(errors.New("employee.updated event without id"))
	}

	added, err := s.feed.Append(ctx, domain.Notification{
		EventID:       event.EventID,
		EmployeeEmail: event.NewEmployee.Email,
		UpdatedAt:     event.NewEmployee.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if added {
		s.logger.Info("admin notified", slog.String("eventId", event.EventID), slog.String("employeeEmail", event.NewEmployee.Email))
	}
	return nil
}

// HandleDelivery is the consumer of the admin_notification queue.
func (s *Service) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	if d.Type != domain.EventEmployeeUpdated {
		return nil
	}

	var event domain.EmployeeUpdatedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return broker.Permanent(err)
	}
	return s.OnEmployeeUpdated(ctx, event)
}
