package handler

import (
	"context"
	"net/http"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

type ContextKey string

var (
	RequestIDCtxKey      ContextKey = "requestId"
	AuthorizedUserCtxKey ContextKey = "authorizedUser"
	UserCtxKey           ContextKey = "user"
	TokenCtxKey          ContextKey = "token"
)

func authorizedUser(r *http.Request) *domain.AuthorizedUser {
	user, _ := r.Context().Value(AuthorizedUserCtxKey).(*domain.AuthorizedUser)
	return user
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDCtxKey).(string)
	return id
}
