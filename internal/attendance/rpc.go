package attendance

import (
	"context"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

func (s *Service) RegisterRoutes(mux *rpc.Mux) {
	mux.Handle(rpc.PatternFindAttendances, rpc.Authorized(s.handleFind))
	mux.Handle(rpc.PatternCheckIn, rpc.Authorized(s.handleCheckIn))
	mux.Handle(rpc.PatternCheckOut, rpc.Authorized(s.handleCheckOut))
}

func (s *Service) handleFind(ctx context.Context, req *rpc.Request) (any, error) {
	var filter domain.AttendanceFilter
	if err := req.Bind(&filter); err != nil {
		return nil, err
	}
	return s.Find(ctx, filter, req.AuthorizedUser)
}

func (s *Service) handleCheckIn(ctx context.Context, req *rpc.Request) (any, error) {
	employeeID, err := ownEmployeeID(req)
	if err != nil {
		return nil, err
	}
	return s.CheckIn(ctx, employeeID)
}

func (s *Service) handleCheckOut(ctx context.Context, req *rpc.Request) (any, error) {
	employeeID, err := ownEmployeeID(req)
	if err != nil {
		return nil, err
	}
	return s.CheckOut(ctx, employeeID)
}

// ownEmployeeID reads the employee to act on. Only admins may act for someone else.
func ownEmployeeID(req *rpc.Request) (int64, error) {
	var p domain.EmployeeIDRequest
	if err := req.Bind(&p); err != nil {
		return 0, err
	}
	user := req.AuthorizedUser
	if !user.IsAdmin() && (user.EmployeeID == nil || *user.EmployeeID != p.EmployeeID) {
		return 0, domain.Forbidden("Forbidden")
	}
	return p.EmployeeID, nil
}
