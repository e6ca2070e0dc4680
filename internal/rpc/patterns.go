package rpc

// Request queues, one per service.
const (
	QueueAuth     = "auth_service_rpc"
	QueueEmployee = "employee_service_rpc"
	QueueHistory  = "history_service_rpc"
)

const (
	PatternLogin              = "auth.login"
	PatternRefreshToken       = "auth.refreshToken"
	PatternLogout             = "auth.logout"
	PatternValidateToken      = "auth.validateToken"
	PatternGetUserByToken     = "auth.getUserByToken"
	PatternUpdatePassword     = "auth.updatePassword"
	PatternCreateEmployeeUser = "user.employee.create"
	PatternDeleteEmployeeUser = "user.employee.delete"

	PatternGetEmployees       = "employee.getEmployees"
	PatternFindEmployeeByID   = "employee.findById"
	PatternFindEmployeeByUser = "employee.findByUserId"
	PatternCreateEmployee     = "employee.createEmployee"
	PatternUpdateEmployee     = "employee.updateEmployee"
	PatternUpdateProfile      = "employee.updateProfile"

	PatternFindAttendances = "attendance.findAttendances"
	PatternCheckIn         = "attendance.checkIn"
	PatternCheckOut        = "attendance.checkOut"

	PatternFindHistories = "history.findByEmployeeId"
)
