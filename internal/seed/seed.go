package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/attendance"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

var requiredColumns = []string{"name", "email", "phone", "job_title"}

// ReadEmployeesCSV reads employees from a CSV file with a header row. The columns name,
// email, phone and job_title are required, photo_url is optional.
func ReadEmployeesCSV(r io.Reader) ([]domain.CreateEmployeeRequest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, column := range requiredColumns {
		if _, ok := index[column]; !ok {
			return nil, fmt.Errorf("missing column %q", column)
		}
	}

	field := func(row []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []domain.CreateEmployeeRequest
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		e := domain.CreateEmployeeRequest{
			Name:     field(row, "name"),
			Email:    field(row, "email"),
			Phone:    field(row, "phone"),
			JobTitle: field(row, "job_title"),
			PhotoURL: field(row, "photo_url"),
		}
		if e.Name == "" || e.Email == "" {
			return nil, fmt.Errorf("line %d: name and email are required", line)
		}
		out = append(out, e)
	}
	return out, nil
}

// CreateEmployees creates each employee through the directory service, account included,
// and returns how many were created. Failures are logged and skipped.
func CreateEmployees(ctx context.Context, client rpc.Client, actor *domain.AuthorizedUser, employees []domain.CreateEmployeeRequest, logger *slog.Logger) int {
	created := 0
	for _, e := range employees {
		var out domain.Employee
		if err := client.Call(ctx, rpc.PatternCreateEmployee, actor, e, &out); err != nil {
			logger.Error("failed to create employee", slog.String("email", e.Email), slog.String("error", err.Error()))
			if domain.KindOf(err) == domain.KindBadGateway {
				// the service is gone, the remaining rows would fail the same way
				break
			}
			continue
		}
		logger.Info("employee created", slog.Int64("id", out.ID), slog.String("email", out.Email))
		created++
	}
	return created
}

type AttendanceStore interface {
	GetAllEmployees(ctx context.Context) ([]*domain.Employee, error)
	CreateAttendance(ctx context.Context, a *domain.Attendance) error
}

// History generates finished attendance records for every working day among the last
// days days before today, weekends excluded. Check-ins fall between 07:30 and 09:30,
// check-outs eight to ten hours later.
func History(clk *clock.Clock, rng *rand.Rand, employeeIDs []int64, days int) []*domain.Attendance {
	todayStart, _ := clk.Today()

	var out []*domain.Attendance
	for d := days; d >= 1; d-- {
		day := todayStart.AddDate(0, 0, -d)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}

		for _, id := range employeeIDs {
			checkIn := day.Add(7*time.Hour + 30*time.Minute + time.Duration(rng.Intn(120*60))*time.Second)
			checkOut := checkIn.Add(8*time.Hour + time.Duration(rng.Intn(120*60))*time.Second)
			seconds := attendance.WorkingSeconds(checkIn, checkOut)

			out = append(out, &domain.Attendance{
				EmployeeID:          id,
				CheckInTime:         checkIn,
				CheckOutTime:        &checkOut,
				TotalWorkingSeconds: &seconds,
				WorkDate:            clk.WorkDate(checkIn),
			})
		}
	}
	return out
}

// CreateHistory stores History for every existing employee and returns the number of
// records written. Days already recorded are left as they are.
func CreateHistory(ctx context.Context, store AttendanceStore, clk *clock.Clock, rng *rand.Rand, days int) (int, error) {
	employees, err := store.GetAllEmployees(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}

	written := 0
	for _, a := range History(clk, rng, ids, days) {
		if err := store.CreateAttendance(ctx, a); err != nil {
			return written, fmt.Errorf("employee %d on %s: %w", a.EmployeeID, a.WorkDate, err)
		}
		if a.ID != 0 {
			written++
		}
	}
	return written, nil
}
