package attendance

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Store interface {
	GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error)
	CreateCheckIn(ctx context.Context, employeeID int64, checkIn time.Time, workDate string) (*domain.Attendance, error)
	GetAttendanceByWorkDate(ctx context.Context, employeeID int64, workDate string) (*domain.Attendance, error)
	CheckOut(ctx context.Context, id int64, checkOut time.Time, totalWorkingSeconds int64) (*domain.Attendance, error)
	FindAttendances(ctx context.Context, filter domain.AttendanceFilter) ([]*domain.Attendance, error)
}

type Service struct {
	store  Store
	clock  *clock.Clock
	logger *slog.Logger
}

func NewService(store Store, clk *clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// CheckIn opens today's record of the employee. A second check-in on the same day is
// refused even when two requests race.
func (s *Service) CheckIn(ctx context.Context, employeeID int64) (*domain.Attendance, error) {
	if err := s.requireEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	a, err := s.store.CreateCheckIn(ctx, employeeID, now, s.clock.WorkDate(now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unprocessable("Already check in")
		}
		return nil, err
	}

	s.logger.Info("checked in", slog.Int64("employeeId", employeeID), slog.String("workDate", a.WorkDate))
	return a, nil
}

// CheckOut closes today's record and stores the whole seconds worked.
func (s *Service) CheckOut(ctx context.Context, employeeID int64) (*domain.Attendance, error) {
	if err := s.requireEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	today, err := s.store.GetAttendanceByWorkDate(ctx, employeeID, s.clock.WorkDate(now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unprocessable("Please check in first")
		}
		return nil, err
	}
	if today.CheckOutTime != nil {
		return nil, domain.Unprocessable("Already check out")
	}

	a, err := s.store.CheckOut(ctx, today.ID, now, WorkingSeconds(today.CheckInTime, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// a concurrent check-out won
			return nil, domain.Unprocessable("Already check out")
		}
		return nil, err
	}

	s.logger.Info("checked out", slog.Int64("employeeId", employeeID), slog.Int64("totalWorkingSeconds", *a.TotalWorkingSeconds))
	return a, nil
}

// WorkingSeconds is the number of whole seconds between checkIn and checkOut.
func WorkingSeconds(checkIn, checkOut time.Time) int64 {
	d := checkOut.Sub(checkIn)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func (s *Service) requireEmployee(ctx context.Context, employeeID int64) error {
	if _, err := s.store.GetEmployeeByID(ctx, employeeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("Employee not found")
		}
		return err
	}
	return nil
}

// Find lists records matching filter. Callers other than admins only ever see their
// own records.
func (s *Service) Find(ctx context.Context, filter domain.AttendanceFilter, actor *domain.AuthorizedUser) ([]*domain.Attendance, error) {
	if actor == nil {
		return nil, domain.Unauthorized("Unauthorized")
	}

	if !actor.IsAdmin() {
		if actor.EmployeeID == nil {
			return nil, domain.Forbidden("Forbidden")
		}
		if filter.EmployeeID == nil {
			filter.EmployeeID = actor.EmployeeID
		}
		if *filter.EmployeeID != *actor.EmployeeID {
			return nil, domain.Forbidden("Forbidden")
		}
	}

	if err := NormalizeFilter(&filter); err != nil {
		return nil, err
	}

	return s.store.FindAttendances(ctx, filter)
}

// NormalizeFilter applies the paging defaults and rejects inverted ranges.
func NormalizeFilter(filter *domain.AttendanceFilter) error {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultLimit
	case filter.Limit > MaxLimit:
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	if r := filter.CheckInTime; r != nil && r.From.After(r.To) {
		return domain.BadRequest("checkInTimeFrom must not be after checkInTimeTo")
	}
	if r := filter.CheckOutTime; r != nil && r.From.After(r.To) {
		return domain.BadRequest("checkOutTimeFrom must not be after checkOutTimeTo")
	}
	if r := filter.TotalWorkingSeconds; r != nil && r.Min > r.Max {
		return domain.BadRequest("totalWorkingSecondsMin must not be greater than totalWorkingSecondsMax")
	}
	return nil
}
