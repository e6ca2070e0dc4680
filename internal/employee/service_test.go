package employee

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

type memStore struct {
	nextID    int64
	employees map[int64]*domain.Employee
	outbox    []*domain.OutboxMessage

	CreateEmployeeErr error
}

func newMemStore() *memStore {
	return &memStore{employees: make(map[int64]*domain.Employee)}
}

func (m *memStore) add(e domain.Employee) *domain.Employee {
	m.nextID++
	e.ID = m.nextID
	m.employees[e.ID] = &e
	return &e
}

func (m *memStore) GetAllEmployees(ctx context.Context) ([]*domain.Employee, error) {
	out := make([]*domain.Employee, 0, len(m.employees))
	for id := int64(1); id <= m.nextID; id++ {
		if e, ok := m.employees[id]; ok {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (m *memStore) GetEmployeeByUserID(ctx context.Context, userID int64) (*domain.Employee, error) {
	for _, e := range m.employees {
		if e.UserID == userID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) CreateEmployee(ctx context.Context, e *domain.Employee, messages func(*domain.Employee) ([]*domain.OutboxMessage, error)) error {
	if m.CreateEmployeeErr != nil {
		return m.CreateEmployeeErr
	}
	stored := m.add(*e)
	e.ID = stored.ID
	msgs, err := messages(e)
	if err != nil {
		return err
	}
	m.outbox = append(m.outbox, msgs...)
	return nil
}

func (m *memStore) UpdateEmployee(ctx context.Context, id int64, change func(e *domain.Employee) ([]*domain.OutboxMessage, error)) (*domain.Employee, error) {
	current, ok := m.employees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := *current
	msgs, err := change(&working)
	if err != nil {
		return nil, err
	}
	*current = working
	m.outbox = append(m.outbox, msgs...)
	return &working, nil
}

type mockAuthClient struct {
	CallFunc func(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error
	Calls    int
	Patterns []string
}

func (m *mockAuthClient) Call(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
	m.Calls++
	m.Patterns = append(m.Patterns, pattern)
	if m.CallFunc != nil {
		return m.CallFunc(ctx, pattern, user, payload, out)
	}
	return nil
}

type countingNotifier struct {
	count int
}

func (n *countingNotifier) Notify() { n.count++ }

var testNow = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

func newTestService(auth rpc.Client) (*Service, *memStore, *countingNotifier) {
	store := newMemStore()
	notifier := &countingNotifier{}
	clk := clock.New(time.UTC).WithNow(func() time.Time { return testNow })
	svc := NewService(store, auth, notifier, clk, "employee_events", "http://portal.test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store, notifier
}

func ptr[T any](v T) *T { return &v }

var (
	admin    = &domain.AuthorizedUser{UserID: 1, Role: domain.RoleKeyAdmin}
	employee = &domain.AuthorizedUser{UserID: 20, Role: domain.RoleKeyEmployee}
	stranger = &domain.AuthorizedUser{UserID: 30, Role: domain.RoleKeyEmployee}
)

func TestGetMissingIsNotAnError(t *testing.T) {
	svc, _, _ := newTestService(&mockAuthClient{})

	e, err := svc.Get(context.Background(), 42)
	if err != nil || e != nil {
		t.Fatalf("expected nil, nil; got %v, %v", e, err)
	}
	e, err = svc.GetByUserID(context.Background(), 42)
	if err != nil || e != nil {
		t.Fatalf("expected nil, nil; got %v, %v", e, err)
	}
}

func TestUpdateByOwner(t *testing.T) {
	svc, store, notifier := newTestService(&mockAuthClient{})
	e := store.add(domain.Employee{Name: "Siti", Email: "siti@example.com", Phone: "0811", UserID: employee.UserID})

	updated, err := svc.Update(context.Background(), e.ID, domain.EmployeeUpdate{Phone: ptr("0812")}, employee)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Phone != "0812" || updated.Name != "Siti" {
		t.Fatalf("unexpected result %+v", updated)
	}
	if !updated.UpdatedAt.Equal(testNow) {
		t.Fatalf("updatedAt not taken from the clock: %v", updated.UpdatedAt)
	}

	if len(store.outbox) != 1 || notifier.count != 1 {
		t.Fatalf("expected one event and one notify, got %d/%d", len(store.outbox), notifier.count)
	}
	msg := store.outbox[0]
	if msg.Exchange != "employee_events" || msg.Type != domain.EventEmployeeUpdated {
		t.Fatalf("unexpected message %+v", msg)
	}

	var event domain.EmployeeUpdatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.EventID != msg.ID {
		t.Fatal("event id and message id differ")
	}
	if event.OldEmployee.Phone != "0811" || event.NewEmployee.Phone != "0812" {
		t.Fatalf("snapshots wrong: %+v", event)
	}
	if event.AuthorizedUser.UserID != employee.UserID {
		t.Fatal("actor missing from event")
	}
}

func TestUpdateByAdmin(t *testing.T) {
	svc, store, _ := newTestService(&mockAuthClient{})
	e := store.add(domain.Employee{Name: "Siti", UserID: employee.UserID})

	updated, err := svc.Update(context.Background(), e.ID, domain.EmployeeUpdate{JobTitle: ptr("Lead"), PhotoURL: ptr("https://cdn.test/siti.png")}, admin)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.JobTitle != "Lead" || updated.PhotoURL != "https://cdn.test/siti.png" {
		t.Fatalf("unexpected result %+v", updated)
	}
}

func TestUpdateForbiddenLeavesNoTrace(t *testing.T) {
	svc, store, notifier := newTestService(&mockAuthClient{})
	e := store.add(domain.Employee{Name: "Siti", UserID: employee.UserID})

	_, err := svc.Update(context.Background(), e.ID, domain.EmployeeUpdate{Name: ptr("Mallory")}, stranger)
	if domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if store.employees[e.ID].Name != "Siti" {
		t.Fatal("employee changed")
	}
	if len(store.outbox) != 0 || notifier.count != 0 {
		t.Fatal("no event expected")
	}
}

func TestUpdateMissing(t *testing.T) {
	svc, _, _ := newTestService(&mockAuthClient{})

	_, err := svc.Update(context.Background(), 9, domain.EmployeeUpdate{}, admin)
	if domain.KindOf(err) != domain.KindNotFound || domain.PublicMessage(err) != "Employee not found" {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, store, _ := newTestService(&mockAuthClient{})
	e := store.add(domain.Employee{Name: "Siti", Phone: "0811", JobTitle: "Staff", UserID: employee.UserID})

	updated, err := svc.UpdateProfile(context.Background(), domain.UpdateProfileRequest{Phone: ptr("0899")}, employee)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.ID != e.ID || updated.Phone != "0899" || updated.JobTitle != "Staff" {
		t.Fatalf("unexpected result %+v", updated)
	}

	_, err = svc.UpdateProfile(context.Background(), domain.UpdateProfileRequest{Phone: ptr("0800")}, stranger)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateEmployee(t *testing.T) {
	auth := &mockAuthClient{CallFunc: func(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
		if pattern != rpc.PatternCreateEmployeeUser {
			t.Fatalf("unexpected pattern %s", pattern)
		}
		if payload.(domain.CreateEmployeeUserRequest).Email != "budi@example.com" {
			t.Fatalf("unexpected payload %+v", payload)
		}
		out.(*domain.User).ID = 77
		return nil
	}}
	svc, store, notifier := newTestService(auth)

	e, err := svc.Create(context.Background(), domain.CreateEmployeeRequest{
		Name: "Budi", Email: "budi@example.com", Phone: "0813", JobTitle: "Staff",
	}, admin)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.UserID != 77 || e.ID == 0 {
		t.Fatalf("unexpected employee %+v", e)
	}

	if len(store.outbox) != 1 || notifier.count != 1 {
		t.Fatal("expected the welcome mail in the outbox")
	}
	msg := store.outbox[0]
	if msg.Exchange != "" || msg.RoutingKey != domain.MailQueue || msg.Type != domain.MailTypeCreateUser {
		t.Fatalf("unexpected message %+v", msg)
	}
	var mail struct {
		To   string                    `json:"to"`
		Data domain.CreateUserMailData `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &mail); err != nil {
		t.Fatal(err)
	}
	if mail.To != "budi@example.com" || mail.Data.FullName != "Budi" || mail.Data.PortalURL != "http://portal.test" {
		t.Fatalf("unexpected mail %+v", mail)
	}
}

func TestCreateEmployeeAccountRejected(t *testing.T) {
	auth := &mockAuthClient{CallFunc: func(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
		return domain.BadRequest("Email already exists")
	}}
	svc, store, _ := newTestService(auth)

	_, err := svc.Create(context.Background(), domain.CreateEmployeeRequest{Name: "Budi", Email: "budi@example.com"}, admin)
	if domain.KindOf(err) != domain.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
	if len(store.employees) != 0 || auth.Calls != 1 {
		t.Fatal("nothing else may happen after the account is refused")
	}
}

func TestCreateEmployeeCompensates(t *testing.T) {
	var deleted int64
	auth := &mockAuthClient{CallFunc: func(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
		switch pattern {
		case rpc.PatternCreateEmployeeUser:
			out.(*domain.User).ID = 77
		case rpc.PatternDeleteEmployeeUser:
			deleted = payload.(domain.UserIDRequest).UserID
		}
		return nil
	}}
	svc, store, notifier := newTestService(auth)
	store.CreateEmployeeErr = errors.New("duplicate key value violates unique constraint")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Create(ctx, domain.CreateEmployeeRequest{Name: "Budi", Email: "budi@example.com"}, admin)
	if err == nil {
		t.Fatal("expected error")
	}
	if deleted != 77 {
		t.Fatalf("account 77 not compensated, patterns %v", auth.Patterns)
	}
	if notifier.count != 0 {
		t.Fatal("nothing to publish")
	}
}
