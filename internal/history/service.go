package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

type Store interface {
	CreateHistory(ctx context.Context, h *domain.History) (bool, error)
	GetHistoriesByEmployeeID(ctx context.Context, employeeID int64) ([]*domain.History, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// OnEmployeeUpdated stores the change described by event. Redelivered events are
// recorded once.
func (s *Service) OnEmployeeUpdated(ctx context.Context, event domain.EmployeeUpdatedEvent) error {
	if event.EventID == "" {
		return broker.Permanent(errors.New("employee.updated event without id"))
	}

	h := &domain.History{
		EventID:     event.EventID,
		EmployeeID:  event.NewEmployee.ID,
		OldEmployee: event.OldEmployee.Snapshot(),
		NewEmployee: event.NewEmployee.Snapshot(),
		CreatedBy:   event.AuthorizedUser.UserID,
	}

	created, err := s.store.CreateHistory(ctx, h)
	if err != nil {
		return err
	}
	if !created {
		s.logger.Info("history already recorded", slog.String("eventId", event.EventID))
		return nil
	}

	s.logger.Info("history recorded", slog.String("eventId", event.EventID), slog.Int64("employeeId", h.EmployeeID))
	return nil
}

// HandleDelivery is the consumer of the save_history queue.
func (s *Service) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	if d.Type != domain.EventEmployeeUpdated {
		// other employee events are not recorded
		return nil
	}

	var event domain.EmployeeUpdatedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return broker.Permanent(err)
	}
	return s.OnEmployeeUpdated(ctx, event)
}

func (s *Service) List(ctx context.Context, employeeID int64) ([]*domain.History, error) {
	return s.store.GetHistoriesByEmployeeID(ctx, employeeID)
}

func (s *Service) RegisterRoutes(mux *rpc.Mux) {
	mux.Handle(rpc.PatternFindHistories, rpc.Authorized(func(ctx context.Context, req *rpc.Request) (any, error) {
		if !req.AuthorizedUser.IsAdmin() {
			return nil, domain.Forbidden("Forbidden")
		}
		var p domain.EmployeeIDRequest
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return s.List(ctx, p.EmployeeID)
	}))
}
