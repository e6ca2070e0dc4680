package domain

import "time"

type History struct {
	ID          int64            `json:"id"`
	EventID     string           `json:"eventId"`
	EmployeeID  int64            `json:"employeeId"`
	OldEmployee EmployeeSnapshot `json:"oldEmployee"`
	NewEmployee EmployeeSnapshot `json:"newEmployee"`
	CreatedBy   int64            `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
}
