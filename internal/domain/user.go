package domain

import (
	"time"
)

const (
	RoleKeyAdmin    = "admin"
	RoleKeyEmployee = "employee"
)

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

type User struct {
	ID                     int64     `json:"id"`
	Email                  string    `json:"email"`
	PasswordHash           string    `json:"-"`
	Role                   Role      `json:"role"`
	CreatedBy              *int64    `json:"createdBy"`
	LatestRefreshTokenHash *string   `json:"-"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role.Key == RoleKeyAdmin
}

// AuthorizedUser is the identity the gateway attaches to every internal call.
type AuthorizedUser struct {
	UserID     int64  `json:"userId"`
	Role       string `json:"role"`
	EmployeeID *int64 `json:"employeeId"`
}

func (a *AuthorizedUser) IsAdmin() bool {
	return a != nil && a.Role == RoleKeyAdmin
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
