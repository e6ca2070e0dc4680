package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

const maxBodyBytes = 1 << 20

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.BadRequest("Invalid request body")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, data any) {
	h.writeJSON(w, r, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
	})
}

// errorResponse answers with the status of err's kind. Internal details never reach the client.
func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindInternal:
		slog.Error("internal server error", "method", r.Method, "path", r.URL.Path, "requestId", requestID(r.Context()), "error", err)
	case domain.KindBadGateway:
		slog.Warn("backend unreachable", "method", r.Method, "path", r.URL.Path, "requestId", requestID(r.Context()), "error", err)
	}

	h.writeJSON(w, r, kind.Status(), ErrorResponse{
		Success: false,
		Error:   domain.PublicMessage(err),
	})
}

// badRequest answers 400 with the first validation error translated, or err's own message.
func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.errorResponse(w, r, domain.BadRequest(validationErrors[0].Translate(h.translator)))
		return
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		h.errorResponse(w, r, err)
		return
	}
	h.errorResponse(w, r, domain.BadRequest(err.Error()))
}

// bind decodes and validates a request body, answering 400 itself when it fails.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := h.readJSON(w, r, v); err != nil {
		h.badRequest(w, r, err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.badRequest(w, r, err)
		return false
	}
	return true
}
