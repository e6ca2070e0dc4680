package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.errorResponse(w, r, domain.BadRequest("Invalid "+name))
		return 0, false
	}
	return id, true
}

func (h *Handler) GetEmployees(w http.ResponseWriter, r *http.Request) {
	var employees []*domain.Employee
	if err := h.employees.Call(r.Context(), rpc.PatternGetEmployees, authorizedUser(r), nil, &employees); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, employees)
}

type createEmployeeRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,min=6,max=20"`
	JobTitle string `json:"jobTitle" validate:"required"`
	PhotoURL string `json:"photoUrl" validate:"omitempty,url"`
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	if !h.bind(w, r, &req) {
		return
	}

	payload := domain.CreateEmployeeRequest{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		JobTitle: req.JobTitle,
		PhotoURL: req.PhotoURL,
	}
	var employee *domain.Employee
	if err := h.employees.Call(r.Context(), rpc.PatternCreateEmployee, authorizedUser(r), payload, &employee); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, employee)
}

func (h *Handler) GetEmployeeByUserID(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userId")
	if !ok {
		return
	}

	var employee *domain.Employee
	if err := h.employees.Call(r.Context(), rpc.PatternFindEmployeeByUser, authorizedUser(r), domain.UserIDRequest{UserID: userID}, &employee); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, employee)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var employee *domain.Employee
	if err := h.employees.Call(r.Context(), rpc.PatternFindEmployeeByID, authorizedUser(r), domain.IDRequest{ID: id}, &employee); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, employee)
}

type updateEmployeeRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,min=6,max=20"`
	JobTitle *string `json:"jobTitle" validate:"omitempty,min=1"`
	PhotoURL *string `json:"photoUrl" validate:"omitempty,url"`
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req updateEmployeeRequest
	if !h.bind(w, r, &req) {
		return
	}

	payload := domain.UpdateEmployeeRequest{
		ID: id,
		Update: domain.EmployeeUpdate{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			JobTitle: req.JobTitle,
			PhotoURL: req.PhotoURL,
		},
	}
	var employee *domain.Employee
	if err := h.employees.Call(r.Context(), rpc.PatternUpdateEmployee, authorizedUser(r), payload, &employee); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, employee)
}

type updateProfileRequest struct {
	Phone *string `json:"phone" validate:"required,min=6,max=20"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !h.bind(w, r, &req) {
		return
	}

	var employee *domain.Employee
	if err := h.employees.Call(r.Context(), rpc.PatternUpdateProfile, authorizedUser(r), domain.UpdateProfileRequest{Phone: req.Phone}, &employee); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, employee)
}

func (h *Handler) GetEmployeeHistories(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var histories []*domain.History
	if err := h.histories.Call(r.Context(), rpc.PatternFindHistories, authorizedUser(r), domain.EmployeeIDRequest{EmployeeID: id}, &histories); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, histories)
}
