package handler

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/report"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

// Feed is the notification stream as the gateway reads it.
type Feed interface {
	Latest(ctx context.Context, count int64) ([]domain.Notification, error)
	Read(ctx context.Context, lastID string, block time.Duration) ([]domain.Notification, string, error)
}

type Handler struct {
	validate   *validator.Validate
	translator ut.Translator
	config     *config.Config
	clock      *clock.Clock
	auth       rpc.Client
	employees  rpc.Client
	histories  rpc.Client
	feed       Feed
	report     *report.Renderer

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, clk *clock.Clock, auth, employees, histories rpc.Client, feed Feed) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	renderer, err := report.NewRenderer(cfg.Report.FontPath)
	if err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		translator: trans,
		config:     cfg,
		clock:      clk,
		auth:       auth,
		employees:  employees,
		histories:  histories,
		feed:       feed,
		report:     renderer,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.requestID)
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Get("/healthz", h.Healthz)

	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/login-admin", h.LoginAdmin)
		r.Post("/refresh-token", h.RefreshToken)
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Post("/logout", h.Logout)
			r.Put("/update-password", h.UpdatePassword)
			r.Post("/update-password", h.UpdatePassword)
			r.Get("/me", h.GetMe)
		})
	})

	// everything below needs a valid access token
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/employees", func(r chi.Router) {
			r.With(h.requireAdmin).Get("/", h.GetEmployees)
			r.With(h.requireAdmin).Post("/", h.CreateEmployee)
			r.Get("/user/{userId}", h.GetEmployeeByUserID)
			r.Put("/update-profile", h.UpdateProfile)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/", h.GetEmployee)
				r.Put("/", h.UpdateEmployee)
				r.Get("/histories", h.GetEmployeeHistories)
			})
		})

		r.Route("/attendances", func(r chi.Router) {
			r.Get("/", h.GetAttendances)
			r.Post("/check-in", h.CheckIn)
			r.Post("/check-out", h.CheckOut)
			r.With(h.requireAdmin).Get("/report", h.GetAttendanceReport)
		})
	})

	h.Mux.Route("/notifications", func(r chi.Router) {
		r.With(h.authenticate, h.requireAdmin).Get("/", h.GetNotifications)
		// EventSource cannot send headers, the token may come in the query instead
		r.With(h.queryToken, h.authenticate, h.requireAdmin).Get("/stream", h.StreamNotifications)
	})
}
