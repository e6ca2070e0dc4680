package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

const attendanceColumns = `
	a.id, a.employee_id, a.check_in_time, a.check_out_time, a.total_working_seconds, a.work_date::text, a.created_at, a.updated_at
`

func attendanceDst(a *domain.Attendance) []any {
	return []any{&a.ID, &a.EmployeeID, &a.CheckInTime, &a.CheckOutTime, &a.TotalWorkingSeconds, &a.WorkDate, &a.CreatedAt, &a.UpdatedAt}
}

// CreateCheckIn inserts the check-in of employeeID for workDate. When the employee already
// has a record for that day nothing is written and sql.ErrNoRows is returned.
func (r *Repository) CreateCheckIn(ctx context.Context, employeeID int64, checkIn time.Time, workDate string) (*domain.Attendance, error) {
	query := `
		INSERT INTO attendances AS a (employee_id, check_in_time, work_date)
		VALUES ($1, $2, $3::date)
		ON CONFLICT (employee_id, work_date) DO NOTHING
		RETURNING ` + attendanceColumns

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	a := &domain.Attendance{}
	if err := r.dbpool.QueryRowContext(ctx, query, employeeID, checkIn, workDate).Scan(attendanceDst(a)...); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) GetAttendanceByWorkDate(ctx context.Context, employeeID int64, workDate string) (*domain.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendances a WHERE a.employee_id = $1 AND a.work_date = $2::date`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	a := &domain.Attendance{}
	if err := r.dbpool.QueryRowContext(ctx, query, employeeID, workDate).Scan(attendanceDst(a)...); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckOut closes attendance id. It returns sql.ErrNoRows when the record is already closed.
func (r *Repository) CheckOut(ctx context.Context, id int64, checkOut time.Time, totalWorkingSeconds int64) (*domain.Attendance, error) {
	query := `
		UPDATE attendances AS a
		SET check_out_time = $1, total_working_seconds = $2, updated_at = now()
		WHERE a.id = $3 AND a.check_out_time IS NULL
		RETURNING ` + attendanceColumns

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	a := &domain.Attendance{}
	if err := r.dbpool.QueryRowContext(ctx, query, checkOut, totalWorkingSeconds, id).Scan(attendanceDst(a)...); err != nil {
		return nil, err
	}
	return a, nil
}

// FindAttendances returns the records matching filter with their employee, newest
// check-in first. Every range is inclusive on both ends.
func (r *Repository) FindAttendances(ctx context.Context, filter domain.AttendanceFilter) ([]*domain.Attendance, error) {
	where, args := attendanceConditions(filter)

	query := `SELECT ` + attendanceColumns + `, ` + employeeColumns + `
		FROM attendances a
		JOIN employees e ON e.id = a.employee_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf("\n\t\tORDER BY a.check_in_time DESC, a.id DESC\n\t\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attendances := make([]*domain.Attendance, 0)
	for rows.Next() {
		a := &domain.Attendance{Employee: &domain.Employee{}}
		if err := rows.Scan(append(attendanceDst(a), employeeDst(a.Employee)...)...); err != nil {
			return nil, err
		}
		attendances = append(attendances, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attendances, nil
}

func attendanceConditions(filter domain.AttendanceFilter) ([]string, []any) {
	where := make([]string, 0)
	args := make([]any, 0)

	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.ID != nil {
		add("a.id = $%d", *filter.ID)
	}
	if filter.EmployeeID != nil {
		add("a.employee_id = $%d", *filter.EmployeeID)
	}
	if filter.CheckInTime != nil {
		add("a.check_in_time >= $%d", filter.CheckInTime.From)
		add("a.check_in_time <= $%d", filter.CheckInTime.To)
	}
	if filter.CheckOutTime != nil {
		add("a.check_out_time >= $%d", filter.CheckOutTime.From)
		add("a.check_out_time <= $%d", filter.CheckOutTime.To)
	}
	if filter.TotalWorkingSeconds != nil {
		add("a.total_working_seconds >= $%d", filter.TotalWorkingSeconds.Min)
		add("a.total_working_seconds <= $%d", filter.TotalWorkingSeconds.Max)
	}

	return where, args
}

// CreateAttendance writes a complete historical record, used by the seeder only.
func (r *Repository) CreateAttendance(ctx context.Context, a *domain.Attendance) error {
	query := `
		INSERT INTO attendances (employee_id, check_in_time, check_out_time, total_working_seconds, work_date)
		VALUES ($1, $2, $3, $4, $5::date)
		ON CONFLICT (employee_id, work_date) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{a.EmployeeID, a.CheckInTime, a.CheckOutTime, a.TotalWorkingSeconds, a.WorkDate}
	err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// the day is already recorded
		return nil
	}
	return err
}
