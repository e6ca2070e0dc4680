package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

const refreshTokenCookie = "refreshToken"

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, false)
}

func (h *Handler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, true)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, adminOnly bool) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}

	var tokens domain.TokenPair
	payload := domain.LoginRequest{Email: req.Email, Password: req.Password, IsAdminOnly: adminOnly}
	if err := h.auth.Call(r.Context(), rpc.PatternLogin, nil, payload, &tokens); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(tokens.RefreshToken, h.clock.Now().Add(time.Duration(h.config.JWT.RefreshExpiration)*time.Second)))
	h.successResponse(w, r, domain.AccessTokenResponse{AccessToken: tokens.AccessToken})
}

func (h *Handler) refreshCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.config.IsProduction(),
		Expires:  expires,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshTokenCookie)
	if err != nil || cookie.Value == "" {
		if err != nil && !errors.Is(err, http.ErrNoCookie) {
			h.errorResponse(w, r, err)
			return
		}
		h.errorResponse(w, r, domain.Unauthorized("Unauthorized"))
		return
	}

	var resp domain.AccessTokenResponse
	if err := h.auth.Call(r.Context(), rpc.PatternRefreshToken, nil, domain.RefreshTokenRequest{RefreshToken: cookie.Value}, &resp); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, r, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Call(r.Context(), rpc.PatternLogout, authorizedUser(r), nil, nil); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie("", time.Unix(0, 0)))
	h.successResponse(w, r, nil)
}

type updatePasswordRequest struct {
	OldPassword        string `json:"oldPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required,min=6"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required"`
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	payload := domain.UpdatePasswordRequest{
		OldPassword:        req.OldPassword,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	}
	if err := h.auth.Call(r.Context(), rpc.PatternUpdatePassword, authorizedUser(r), payload, nil); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, r, true)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(TokenCtxKey).(string)

	var user domain.User
	if err := h.auth.Call(r.Context(), rpc.PatternGetUserByToken, nil, domain.TokenRequest{Token: token}, &user); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, r, user)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, map[string]string{"status": "ok"})
}
