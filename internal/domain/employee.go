package domain

import "time"

type Employee struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	JobTitle  string    `json:"jobTitle"`
	PhotoURL  string    `json:"photoUrl"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmployeeUpdate is a partial update, nil fields are left untouched.
type EmployeeUpdate struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	JobTitle *string `json:"jobTitle,omitempty"`
	PhotoURL *string `json:"photoUrl,omitempty"`
}

func (u EmployeeUpdate) Apply(e *Employee) {
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.Email != nil {
		e.Email = *u.Email
	}
	if u.Phone != nil {
		e.Phone = *u.Phone
	}
	if u.JobTitle != nil {
		e.JobTitle = *u.JobTitle
	}
	if u.PhotoURL != nil {
		e.PhotoURL = *u.PhotoURL
	}
}

// Snapshot is the employee as recorded in history rows: identifier and timestamps are dropped.
type EmployeeSnapshot struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	JobTitle string `json:"jobTitle"`
	PhotoURL string `json:"photoUrl"`
	UserID   int64  `json:"userId"`
}

func (e *Employee) Snapshot() EmployeeSnapshot {
	return EmployeeSnapshot{
		Name:     e.Name,
		Email:    e.Email,
		Phone:    e.Phone,
		JobTitle: e.JobTitle,
		PhotoURL: e.PhotoURL,
		UserID:   e.UserID,
	}
}
