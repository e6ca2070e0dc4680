package employee

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/outbox"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

const compensationTimeout = 10 * time.Second

type Store interface {
	GetAllEmployees(ctx context.Context) ([]*domain.Employee, error)
	GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error)
	GetEmployeeByUserID(ctx context.Context, userID int64) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, e *domain.Employee, messages func(*domain.Employee) ([]*domain.OutboxMessage, error)) error
	UpdateEmployee(ctx context.Context, id int64, change func(e *domain.Employee) ([]*domain.OutboxMessage, error)) (*domain.Employee, error)
}

// Notifier is told when new outbox rows were committed.
type Notifier interface {
	Notify()
}

type Service struct {
	store     Store
	auth      rpc.Client
	outbox    Notifier
	clock     *clock.Clock
	exchange  string
	portalURL string
	logger    *slog.Logger
}

func NewService(store Store, auth rpc.Client, notifier Notifier, clk *clock.Clock, exchange, portalURL string, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		auth:      auth,
		outbox:    notifier,
		clock:     clk,
		exchange:  exchange,
		portalURL: portalURL,
		logger:    logger,
	}
}

func (s *Service) List(ctx context.Context) ([]*domain.Employee, error) {
	return s.store.GetAllEmployees(ctx)
}

// Get returns nil without error when no employee has id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Employee, error) {
	e, err := s.store.GetEmployeeByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// GetByUserID returns nil without error when the account has no employee profile.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*domain.Employee, error) {
	e, err := s.store.GetEmployeeByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Update applies patch on behalf of actor, who must be the linked user or an admin, and
// records an employee.updated event with both versions in the same transaction.
func (s *Service) Update(ctx context.Context, id int64, patch domain.EmployeeUpdate, actor *domain.AuthorizedUser) (*domain.Employee, error) {
	if actor == nil {
		return nil, domain.Unauthorized("Unauthorized")
	}

	s.logger.Info("updating employee", slog.Int64("employeeId", id), slog.Int64("actorUserId", actor.UserID), slog.String("actorRole", actor.Role))

	updated, err := s.store.UpdateEmployee(ctx, id, func(e *domain.Employee) ([]*domain.OutboxMessage, error) {
		if e.UserID != actor.UserID && !actor.IsAdmin() {
			return nil, domain.Forbidden("Forbidden")
		}

		old := *e
		patch.Apply(e)
		e.UpdatedAt = s.clock.Now()

		event := domain.EmployeeUpdatedEvent{
			EventID:        uuid.NewString(),
			AuthorizedUser: *actor,
			OldEmployee:    old,
			NewEmployee:    *e,
			OccurredAt:     e.UpdatedAt,
		}
		msg, err := outbox.NewMessage(s.exchange, "", domain.EventEmployeeUpdated, event)
		if err != nil {
			return nil, err
		}
		msg.ID = event.EventID

		return []*domain.OutboxMessage{msg}, nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("Employee not found")
		}
		return nil, err
	}

	s.outbox.Notify()
	return updated, nil
}

// UpdateProfile lets an employee change the phone number of their own profile.
func (s *Service) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest, actor *domain.AuthorizedUser) (*domain.Employee, error) {
	if actor == nil {
		return nil, domain.Unauthorized("Unauthorized")
	}

	e, err := s.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.NotFound("Employee not found")
	}

	return s.Update(ctx, e.ID, domain.EmployeeUpdate{Phone: req.Phone}, actor)
}

// Create provisions the login account through the credential service and then the
// profile. When the profile cannot be stored the account is removed again.
func (s *Service) Create(ctx context.Context, req domain.CreateEmployeeRequest, actor *domain.AuthorizedUser) (*domain.Employee, error) {
	var user domain.User
	if err := s.auth.Call(ctx, rpc.PatternCreateEmployeeUser, actor, domain.CreateEmployeeUserRequest{Email: req.Email}, &user); err != nil {
		return nil, err
	}

	e := &domain.Employee{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		JobTitle: req.JobTitle,
		PhotoURL: req.PhotoURL,
		UserID:   user.ID,
	}

	err := s.store.CreateEmployee(ctx, e, func(e *domain.Employee) ([]*domain.OutboxMessage, error) {
		welcome := domain.MailMessage{
			Type: domain.MailTypeCreateUser,
			To:   e.Email,
			Data: domain.CreateUserMailData{
				FullName:  e.Name,
				Email:     e.Email,
				PortalURL: s.portalURL,
			},
		}
		msg, err := outbox.NewMessage("", domain.MailQueue, domain.MailTypeCreateUser, welcome)
		if err != nil {
			return nil, err
		}
		return []*domain.OutboxMessage{msg}, nil
	})
	if err != nil {
		s.compensateUser(ctx, user.ID, actor, err)
		return nil, err
	}

	s.outbox.Notify()
	return e, nil
}

func (s *Service) compensateUser(ctx context.Context, userID int64, actor *domain.AuthorizedUser, cause error) {
	// the caller may already be gone, the account must be removed anyway
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	s.logger.Warn("employee profile not stored, removing account", slog.Int64("userId", userID), slog.String("error", cause.Error()))

	if err := s.auth.Call(ctx, rpc.PatternDeleteEmployeeUser, actor, domain.UserIDRequest{UserID: userID}, nil); err != nil {
		s.logger.Error("account compensation failed", slog.Int64("userId", userID), slog.String("error", err.Error()))
	}
}
