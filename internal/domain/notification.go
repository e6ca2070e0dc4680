package domain

import "time"

type Notification struct {
	ID            string    `json:"id"`
	EventID       string    `json:"eventId"`
	EmployeeEmail string    `json:"employeeEmail"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
