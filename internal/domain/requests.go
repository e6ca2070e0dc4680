package domain

// Payloads of internal calls, shared by callers and callees.

type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	IsAdminOnly bool   `json:"isAdminOnly"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type UpdatePasswordRequest struct {
	OldPassword        string `json:"oldPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

type CreateEmployeeUserRequest struct {
	Email string `json:"email"`
}

type IDRequest struct {
	ID int64 `json:"id"`
}

type UserIDRequest struct {
	UserID int64 `json:"userId"`
}

type EmployeeIDRequest struct {
	EmployeeID int64 `json:"employeeId"`
}

type CreateEmployeeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	JobTitle string `json:"jobTitle"`
	PhotoURL string `json:"photoUrl"`
}

type UpdateEmployeeRequest struct {
	ID     int64          `json:"id"`
	Update EmployeeUpdate `json:"update"`
}

type UpdateProfileRequest struct {
	Phone *string `json:"phone"`
}
