package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

const testAPIKey = "test-key"

type countingClient struct {
	next  rpc.Client
	Err   error
	Calls []string
}

func (c *countingClient) Call(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
	c.Calls = append(c.Calls, pattern)
	if c.Err != nil {
		return c.Err
	}
	return c.next.Call(ctx, pattern, user, payload, out)
}

type mockFeed struct {
	LatestFunc func(ctx context.Context, count int64) ([]domain.Notification, error)
}

func (m *mockFeed) Latest(ctx context.Context, count int64) ([]domain.Notification, error) {
	return m.LatestFunc(ctx, count)
}

func (m *mockFeed) Read(ctx context.Context, lastID string, block time.Duration) ([]domain.Notification, string, error) {
	<-ctx.Done()
	return nil, lastID, ctx.Err()
}

type fixture struct {
	handler    *Handler
	auth       *countingClient
	employees  *countingClient
	lastFilter domain.AttendanceFilter
	lastCaller *domain.AuthorizedUser
	records    []*domain.Attendance
}

var (
	jakarta, _ = time.LoadLocation("Asia/Jakarta")
	testNow    = time.Date(2024, 6, 3, 9, 30, 0, 0, jakarta)
)

var users = map[string]domain.User{
	"admin-token":    {ID: 1, Email: "admin@example.com", Role: domain.Role{Key: domain.RoleKeyAdmin}},
	"employee-token": {ID: 20, Email: "siti@example.com", Role: domain.Role{Key: domain.RoleKeyEmployee}},
	"orphan-token":   {ID: 30, Email: "orphan@example.com", Role: domain.Role{Key: domain.RoleKeyEmployee}},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	authMux := rpc.NewMux(testAPIKey)
	validate := func(ctx context.Context, req *rpc.Request) (any, error) {
		var p domain.TokenRequest
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		user, ok := users[p.Token]
		if !ok {
			return nil, domain.Unauthorized("Invalid Credentials")
		}
		return user, nil
	}
	authMux.Handle(rpc.PatternValidateToken, validate)
	authMux.Handle(rpc.PatternGetUserByToken, validate)
	authMux.Handle(rpc.PatternLogin, func(ctx context.Context, req *rpc.Request) (any, error) {
		var p domain.LoginRequest
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		if p.Password != "secret" {
			return nil, domain.Unauthorized("Invalid Credentials")
		}
		return domain.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
	})
	authMux.Handle(rpc.PatternRefreshToken, func(ctx context.Context, req *rpc.Request) (any, error) {
		var p domain.RefreshTokenRequest
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return domain.AccessTokenResponse{AccessToken: "renewed-" + p.RefreshToken}, nil
	})
	authMux.Handle(rpc.PatternLogout, rpc.Authorized(func(ctx context.Context, req *rpc.Request) (any, error) {
		return true, nil
	}))

	employeeMux := rpc.NewMux(testAPIKey)
	employeeMux.Handle(rpc.PatternFindEmployeeByUser, func(ctx context.Context, req *rpc.Request) (any, error) {
		var p domain.UserIDRequest
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		if p.UserID == 20 {
			return &domain.Employee{ID: 5, UserID: 20, Name: "Siti"}, nil
		}
		return nil, nil
	})
	employeeMux.Handle(rpc.PatternGetEmployees, func(ctx context.Context, req *rpc.Request) (any, error) {
		return []*domain.Employee{{ID: 5, UserID: 20, Name: "Siti"}}, nil
	})
	employeeMux.Handle(rpc.PatternFindAttendances, func(ctx context.Context, req *rpc.Request) (any, error) {
		if err := req.Bind(&f.lastFilter); err != nil {
			return nil, err
		}
		return f.records, nil
	})
	employeeMux.Handle(rpc.PatternCheckIn, func(ctx context.Context, req *rpc.Request) (any, error) {
		var p domain.EmployeeIDRequest
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		f.lastCaller = req.AuthorizedUser
		return &domain.Attendance{ID: 1, EmployeeID: p.EmployeeID, CheckInTime: testNow, WorkDate: "2024-06-03"}, nil
	})
	employeeMux.Handle(rpc.PatternCheckOut, func(ctx context.Context, req *rpc.Request) (any, error) {
		return nil, domain.Unprocessable("Please check in first")
	})

	f.auth = &countingClient{next: rpc.NewLocalClient(authMux, testAPIKey)}
	f.employees = &countingClient{next: rpc.NewLocalClient(employeeMux, testAPIKey)}
	histories := rpc.NewLocalClient(rpc.NewMux(testAPIKey), testAPIKey)

	cfg := &config.Config{Environment: "production"}
	cfg.JWT.RefreshExpiration = 3600
	clk := clock.New(jakarta).WithNow(func() time.Time { return testNow })

	feed := &mockFeed{LatestFunc: func(ctx context.Context, count int64) ([]domain.Notification, error) {
		return []domain.Notification{{ID: "1-0", EventID: "evt", EmployeeEmail: "siti@example.com"}}, nil
	}}

	h, err := NewHandler(cfg, clk, f.auth, f.employees, histories, feed)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	h.RegisterRoutes()
	f.handler = h
	return f
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.Mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false")
	}
	return resp
}

func TestMissingBearerTokenIsRejectedWithoutCalls(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/employees", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(f.auth.Calls) != 0 || len(f.employees.Calls) != 0 {
		t.Fatalf("expected no internal calls, got %v %v", f.auth.Calls, f.employees.Calls)
	}
	if msg := decodeError(t, rec).Error; msg != "Unauthorized" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestInvalidTokenIsUnauthorized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/attendances", "forged", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(f.employees.Calls) != 0 {
		t.Fatal("directory must not be consulted for an invalid token")
	}
}

func TestUnreachableAuthServiceIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.auth.Err = domain.BadGateway(errors.New("rpc timeout"))

	rec := f.do(http.MethodGet, "/employees", "admin-token", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Error; msg != "Bad Gateway" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAdminRoutesRejectEmployees(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/employees", "employee-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	for _, p := range f.employees.Calls {
		if p == rpc.PatternGetEmployees {
			t.Fatal("employee list must not be requested for a non-admin")
		}
	}
}

func TestAdminListsEmployees(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/employees", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Success bool               `json:"success"`
		Data    []*domain.Employee `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.Data) != 1 || resp.Data[0].Name != "Siti" {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "siti@example.com", "password": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshTokenCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("refresh cookie not set")
	}
	if cookie.Value != "refresh" || !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || !cookie.Secure {
		t.Fatalf("unexpected cookie %+v", cookie)
	}
	if strings.Contains(rec.Body.String(), `"refresh"`) {
		t.Fatal("refresh token must not be returned in the body")
	}
}

func TestLoginValidationMessage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "not-an-email", "password": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Error; !strings.Contains(msg, "Email") {
		t.Fatalf("expected a translated message about Email, got %q", msg)
	}
	if len(f.auth.Calls) != 0 {
		t.Fatal("invalid payloads must not reach the credential service")
	}
}

func TestWrongPasswordIsUnauthorized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/auth/login-admin", "", map[string]string{"email": "siti@example.com", "password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Error; msg != "Invalid Credentials" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRefreshTokenReadsCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/auth/refresh-token", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: "abc"})
	rec = httptest.NewRecorder()
	f.handler.Mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "renewed-abc") {
		t.Fatalf("unexpected body %s", rec.Body)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/auth/logout", "employee-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != refreshTokenCookie || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected the refresh cookie to be cleared, got %+v", cookies)
	}
}

func TestAttendancesDefaultToToday(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/attendances", "employee-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	r := f.lastFilter.CheckInTime
	if r == nil {
		t.Fatal("expected a check-in range")
	}
	wantFrom := time.Date(2024, 6, 3, 0, 0, 0, 0, jakarta)
	wantTo := time.Date(2024, 6, 4, 0, 0, 0, 0, jakarta).Add(-time.Nanosecond)
	if !r.From.Equal(wantFrom) || !r.To.Equal(wantTo) {
		t.Fatalf("unexpected range %v - %v", r.From, r.To)
	}
	if f.lastFilter.Limit != 10 {
		t.Fatalf("expected default limit 10, got %d", f.lastFilter.Limit)
	}
}

func TestAttendancesDateRange(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/attendances?checkInTimeFrom=2024-06-01&checkInTimeTo=2024-06-02&limit=500", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	r := f.lastFilter.CheckInTime
	if !r.From.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, jakarta)) {
		t.Fatalf("unexpected from %v", r.From)
	}
	if !r.To.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, jakarta).Add(-time.Nanosecond)) {
		t.Fatalf("unexpected to %v", r.To)
	}
	if f.lastFilter.Limit != 100 {
		t.Fatalf("expected limit capped at 100, got %d", f.lastFilter.Limit)
	}
}

func TestAttendancesRejectHalfRange(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/attendances?checkInTimeFrom=2024-06-01", "admin-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	for _, p := range f.employees.Calls {
		if p == rpc.PatternFindAttendances {
			t.Fatal("invalid filters must not be forwarded")
		}
	}
}

func TestCheckInUsesCallerEmployee(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/attendances/check-in", "employee-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if f.lastCaller == nil || f.lastCaller.EmployeeID == nil || *f.lastCaller.EmployeeID != 5 {
		t.Fatalf("unexpected identity forwarded %+v", f.lastCaller)
	}
	if !strings.Contains(rec.Body.String(), `"employeeId":5`) {
		t.Fatalf("unexpected body %s", rec.Body)
	}
}

func TestCheckInWithoutProfile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/attendances/check-in", "orphan-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckOutConflictIsUnprocessable(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/attendances/check-out", "employee-token", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Error; msg != "Please check in first" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAttendanceReportIsPDF(t *testing.T) {
	f := newFixture(t)
	worked := int64(3600)
	out := testNow.Add(time.Hour)
	f.records = []*domain.Attendance{{ID: 1, EmployeeID: 5, WorkDate: "2024-06-03", CheckInTime: testNow, CheckOutTime: &out, TotalWorkingSeconds: &worked}}

	rec := f.do(http.MethodGet, "/attendances/report", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatal("body is not a PDF")
	}
}

func TestNotificationsRequireAdmin(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(http.MethodGet, "/notifications", "employee-token", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec := f.do(http.MethodGet, "/notifications?count=5", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "siti@example.com") {
		t.Fatalf("unexpected body %s", rec.Body)
	}
}

func TestNotificationStreamAcceptsQueryToken(t *testing.T) {
	f := newFixture(t)

	stream := func(path string) *httptest.ResponseRecorder {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		f.handler.Mux.ServeHTTP(rec, req)
		return rec
	}

	rec := stream("/notifications/stream?access_token=admin-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	if rec := stream("/notifications/stream?access_token=employee-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin, got %d", rec.Code)
	}
	if rec := stream("/notifications/stream"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without any token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/notifications?access_token=admin-token", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("query tokens are only for the stream, got %d", rec.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	f.handler.Mux.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("unexpected request id %q", rec.Header().Get("X-Request-ID"))
	}

	rec = f.do(http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}
