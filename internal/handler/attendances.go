package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/attendance"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

// reportMaxPages bounds how many pages of MaxLimit records one report may pull.
const reportMaxPages = 50

// parseAttendanceFilter reads the attendance filters from the query string. A range must
// be given with both of its bounds; without any time range the filter covers today's
// check-ins.
func (h *Handler) parseAttendanceFilter(q url.Values) (domain.AttendanceFilter, error) {
	var filter domain.AttendanceFilter

	if v := q.Get("employeeId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, domain.BadRequest("employeeId must be an integer")
		}
		filter.EmployeeID = &id
	}

	checkIn, err := h.parseTimeRange(q, "checkInTimeFrom", "checkInTimeTo")
	if err != nil {
		return filter, err
	}
	checkOut, err := h.parseTimeRange(q, "checkOutTimeFrom", "checkOutTimeTo")
	if err != nil {
		return filter, err
	}
	if checkIn == nil && checkOut == nil {
		from, to := h.clock.Today()
		checkIn = &domain.TimeRange{From: from, To: to}
	}
	filter.CheckInTime = checkIn
	filter.CheckOutTime = checkOut

	minSeconds, hasMin, err := queryInt(q, "totalWorkingSecondsMin")
	if err != nil {
		return filter, err
	}
	maxSeconds, hasMax, err := queryInt(q, "totalWorkingSecondsMax")
	if err != nil {
		return filter, err
	}
	if hasMin != hasMax {
		return filter, domain.BadRequest("totalWorkingSecondsMin and totalWorkingSecondsMax must be given together")
	}
	if hasMin {
		filter.TotalWorkingSeconds = &domain.SecondsRange{Min: minSeconds, Max: maxSeconds}
	}

	limit, _, err := queryInt(q, "limit")
	if err != nil {
		return filter, err
	}
	offset, _, err := queryInt(q, "offset")
	if err != nil {
		return filter, err
	}
	filter.Limit = int(limit)
	filter.Offset = int(offset)

	if err := attendance.NormalizeFilter(&filter); err != nil {
		return filter, err
	}
	return filter, nil
}

func (h *Handler) parseTimeRange(q url.Values, fromKey, toKey string) (*domain.TimeRange, error) {
	fromValue, toValue := q.Get(fromKey), q.Get(toKey)
	if fromValue == "" && toValue == "" {
		return nil, nil
	}
	if fromValue == "" || toValue == "" {
		return nil, domain.BadRequest(fmt.Sprintf("%s and %s must be given together", fromKey, toKey))
	}

	from, err := h.parseTime(fromValue, false)
	if err != nil {
		return nil, domain.BadRequest(fromKey + " must be a date or an RFC 3339 time")
	}
	to, err := h.parseTime(toValue, true)
	if err != nil {
		return nil, domain.BadRequest(toKey + " must be a date or an RFC 3339 time")
	}
	return &domain.TimeRange{From: from, To: to}, nil
}

// parseTime accepts a full timestamp or a bare date. A bare date stands for its first
// instant, or its last one when endOfDay is set.
func (h *Handler) parseTime(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := h.clock.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	start, end := h.clock.DayBounds(day)
	if endOfDay {
		return end, nil
	}
	return start, nil
}

func queryInt(q url.Values, key string) (int64, bool, error) {
	v := q.Get(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, domain.BadRequest(key + " must be an integer")
	}
	return n, true, nil
}

func (h *Handler) GetAttendances(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseAttendanceFilter(r.URL.Query())
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	var attendances []*domain.Attendance
	if err := h.employees.Call(r.Context(), rpc.PatternFindAttendances, authorizedUser(r), filter, &attendances); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, attendances)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.attend(w, r, rpc.PatternCheckIn)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.attend(w, r, rpc.PatternCheckOut)
}

// attend checks the caller's own employee profile in or out.
func (h *Handler) attend(w http.ResponseWriter, r *http.Request, pattern string) {
	user := authorizedUser(r)
	if user.EmployeeID == nil {
		h.errorResponse(w, r, domain.NotFound("Employee not found"))
		return
	}

	var a *domain.Attendance
	if err := h.employees.Call(r.Context(), pattern, user, domain.EmployeeIDRequest{EmployeeID: *user.EmployeeID}, &a); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, a)
}

func (h *Handler) GetAttendanceReport(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseAttendanceFilter(r.URL.Query())
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	filter.Limit = attendance.MaxLimit
	filter.Offset = 0
	var rows []*domain.Attendance
	for page := 0; page < reportMaxPages; page++ {
		var batch []*domain.Attendance
		if err := h.employees.Call(r.Context(), rpc.PatternFindAttendances, authorizedUser(r), filter, &batch); err != nil {
			h.errorResponse(w, r, err)
			return
		}
		rows = append(rows, batch...)
		if len(batch) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	now := h.clock.Now()
	var buf bytes.Buffer
	if err := h.report.Attendances(&buf, "Attendance report", now, h.clock.Location(), rows); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendances-%s.pdf"`, now.Format(clock.DateLayout)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
