package auth

import (
	"context"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

func (s *Service) RegisterRoutes(mux *rpc.Mux) {
	mux.Handle(rpc.PatternLogin, s.handleLogin)
	mux.Handle(rpc.PatternRefreshToken, s.handleRefreshToken)
	mux.Handle(rpc.PatternValidateToken, s.handleValidateToken)
	mux.Handle(rpc.PatternGetUserByToken, s.handleValidateToken)
	mux.Handle(rpc.PatternLogout, rpc.Authorized(s.handleLogout))
	mux.Handle(rpc.PatternUpdatePassword, rpc.Authorized(s.handleUpdatePassword))
	mux.Handle(rpc.PatternCreateEmployeeUser, rpc.Authorized(s.handleCreateEmployeeUser))
	mux.Handle(rpc.PatternDeleteEmployeeUser, rpc.Authorized(s.handleDeleteEmployeeUser))
}

func (s *Service) handleLogin(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.LoginRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.Login(ctx, p.Email, p.Password, p.IsAdminOnly)
}

func (s *Service) handleRefreshToken(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.RefreshTokenRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	accessToken, err := s.RefreshToken(ctx, p.RefreshToken)
	if err != nil {
		return nil, err
	}
	return domain.AccessTokenResponse{AccessToken: accessToken}, nil
}

func (s *Service) handleValidateToken(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.TokenRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.ValidateToken(ctx, p.Token)
}

func (s *Service) handleLogout(ctx context.Context, req *rpc.Request) (any, error) {
	if err := s.Logout(ctx, req.AuthorizedUser.UserID); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) handleUpdatePassword(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.UpdatePasswordRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if err := s.UpdatePassword(ctx, req.AuthorizedUser.UserID, p); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) handleCreateEmployeeUser(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.CreateEmployeeUserRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.CreateEmployeeUser(ctx, p.Email, req.AuthorizedUser)
}

func (s *Service) handleDeleteEmployeeUser(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.UserIDRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if err := s.DeleteEmployeeUser(ctx, p.UserID); err != nil {
		return nil, err
	}
	return true, nil
}
