package domain

import "time"

type Attendance struct {
	ID                  int64      `json:"id"`
	EmployeeID          int64      `json:"employeeId"`
	CheckInTime         time.Time  `json:"checkInTime"`
	CheckOutTime        *time.Time `json:"checkOutTime"`
	TotalWorkingSeconds *int64     `json:"totalWorkingSeconds"`
	WorkDate            string     `json:"workDate"` // 2006-01-02 in the system timezone
	Employee            *Employee  `json:"employee,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type SecondsRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

type AttendanceFilter struct {
	ID                  *int64        `json:"id,omitempty"`
	EmployeeID          *int64        `json:"employeeId,omitempty"`
	CheckInTime         *TimeRange    `json:"checkInTime,omitempty"`
	CheckOutTime        *TimeRange    `json:"checkOutTime,omitempty"`
	TotalWorkingSeconds *SecondsRange `json:"totalWorkingSeconds,omitempty"`
	Limit               int           `json:"limit"`
	Offset              int           `json:"offset"`
}
