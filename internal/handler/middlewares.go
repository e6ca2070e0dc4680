package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the flusher of the server's writer.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), RequestIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		slog.Info("request handled", "status", rw.StatusCode, "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", duration, "requestId", requestID(r.Context()))
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.errorResponse(w, r, fmt.Errorf("panic: %v", err))
				stackTrace := string(debug.Stack())
				fmt.Print(stackTrace) // slog would mangle the trace
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// queryToken moves an access_token query parameter into the Authorization header when
// the request carries no bearer token of its own.
func (h *Handler) queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := q.Get("access_token")
		if token == "" || bearerToken(r) != "" {
			next.ServeHTTP(w, r)
			return
		}

		r = r.Clone(r.Context())
		r.Header.Set("Authorization", "Bearer "+token)
		q.Del("access_token")
		r.URL.RawQuery = q.Encode()
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token to the caller's identity and its employee
// profile, and attaches both to the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.errorResponse(w, r, domain.Unauthorized("Unauthorized"))
			return
		}

		var user domain.User
		if err := h.auth.Call(r.Context(), rpc.PatternValidateToken, nil, domain.TokenRequest{Token: token}, &user); err != nil {
			h.errorResponse(w, r, err)
			return
		}

		var employee *domain.Employee
		if err := h.employees.Call(r.Context(), rpc.PatternFindEmployeeByUser, nil, domain.UserIDRequest{UserID: user.ID}, &employee); err != nil {
			h.errorResponse(w, r, err)
			return
		}

		identity := &domain.AuthorizedUser{
			UserID: user.ID,
			Role:   user.Role.Key,
		}
		if employee != nil {
			identity.EmployeeID = &employee.ID
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, AuthorizedUserCtxKey, identity)
		ctx = context.WithValue(ctx, UserCtxKey, &user)
		ctx = context.WithValue(ctx, TokenCtxKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorizedUser(r).IsAdmin() {
			h.errorResponse(w, r, domain.Forbidden("Forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
