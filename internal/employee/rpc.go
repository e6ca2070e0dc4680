package employee

import (
	"context"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

func (s *Service) RegisterRoutes(mux *rpc.Mux) {
	mux.Handle(rpc.PatternGetEmployees, rpc.Authorized(s.handleGetEmployees))
	mux.Handle(rpc.PatternFindEmployeeByID, rpc.Authorized(s.handleFindByID))
	mux.Handle(rpc.PatternFindEmployeeByUser, s.handleFindByUserID)
	mux.Handle(rpc.PatternCreateEmployee, rpc.Authorized(s.handleCreate))
	mux.Handle(rpc.PatternUpdateEmployee, rpc.Authorized(s.handleUpdate))
	mux.Handle(rpc.PatternUpdateProfile, rpc.Authorized(s.handleUpdateProfile))
}

func (s *Service) handleGetEmployees(ctx context.Context, req *rpc.Request) (any, error) {
	return s.List(ctx)
}

func (s *Service) handleFindByID(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.IDRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.Get(ctx, p.ID)
}

// The gateway resolves the employee of a caller while authenticating, before any
// identity exists, so this one is not behind Authorized.
func (s *Service) handleFindByUserID(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.UserIDRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.GetByUserID(ctx, p.UserID)
}

func (s *Service) handleCreate(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.CreateEmployeeRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.Create(ctx, p, req.AuthorizedUser)
}

func (s *Service) handleUpdate(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.UpdateEmployeeRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.Update(ctx, p.ID, p.Update, req.AuthorizedUser)
}

func (s *Service) handleUpdateProfile(ctx context.Context, req *rpc.Request) (any, error) {
	var p domain.UpdateProfileRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return s.UpdateProfile(ctx, p, req.AuthorizedUser)
}
