package history

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

type memStore struct {
	histories map[string]*domain.History
	calls     int
}

func (m *memStore) CreateHistory(ctx context.Context, h *domain.History) (bool, error) {
	m.calls++
	if _, ok := m.histories[h.EventID]; ok {
		return false, nil
	}
	h.ID = int64(len(m.histories) + 1)
	m.histories[h.EventID] = h
	return true, nil
}

func (m *memStore) GetHistoriesByEmployeeID(ctx context.Context, employeeID int64) ([]*domain.History, error) {
	out := make([]*domain.History, 0)
	for _, h := range m.histories {
		if h.EmployeeID == employeeID {
			out = append(out, h)
		}
	}
	return out, nil
}

func newTestService() (*Service, *memStore) {
	store := &memStore{histories: make(map[string]*domain.History)}
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func sampleEvent() domain.EmployeeUpdatedEvent {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	old := domain.Employee{ID: 5, Name: "Siti", Email: "siti@example.com", Phone: "0811", UserID: 20, CreatedAt: created, UpdatedAt: created}
	updated := old
	updated.Phone = "0812"
	updated.UpdatedAt = created.Add(time.Hour)
	return domain.EmployeeUpdatedEvent{
		EventID:        "6f1c1a52-5f7e-4a53-9d8b-1f0d1e0a9c11",
		AuthorizedUser: domain.AuthorizedUser{UserID: 1, Role: domain.RoleKeyAdmin},
		OldEmployee:    old,
		NewEmployee:    updated,
	}
}

func TestOnEmployeeUpdatedStoresSnapshots(t *testing.T) {
	svc, store := newTestService()
	event := sampleEvent()

	if err := svc.OnEmployeeUpdated(context.Background(), event); err != nil {
		t.Fatalf("OnEmployeeUpdated: %v", err)
	}

	h := store.histories[event.EventID]
	if h == nil {
		t.Fatal("history not stored")
	}
	if h.EmployeeID != 5 || h.CreatedBy != 1 {
		t.Fatalf("unexpected history %+v", h)
	}
	if h.OldEmployee.Phone != "0811" || h.NewEmployee.Phone != "0812" {
		t.Fatalf("snapshots wrong: %+v / %+v", h.OldEmployee, h.NewEmployee)
	}

	raw, err := json.Marshal(h.NewEmployee)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "createdAt", "updatedAt"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("snapshot must not carry %s", key)
		}
	}
}

func TestRedeliveryIsRecordedOnce(t *testing.T) {
	svc, store := newTestService()
	event := sampleEvent()

	for i := 0; i < 3; i++ {
		if err := svc.OnEmployeeUpdated(context.Background(), event); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(store.histories) != 1 || store.calls != 3 {
		t.Fatalf("expected one row from three deliveries, got %d rows", len(store.histories))
	}
}

func TestHandleDelivery(t *testing.T) {
	svc, store := newTestService()
	body, err := json.Marshal(sampleEvent())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.HandleDelivery(context.Background(), amqp.Delivery{Type: "employee.archived", Body: body}); err != nil {
		t.Fatalf("other event types are skipped: %v", err)
	}
	if store.calls != 0 {
		t.Fatal("only updates are recorded")
	}

	if err := svc.HandleDelivery(context.Background(), amqp.Delivery{Type: domain.EventEmployeeUpdated, Body: body}); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if len(store.histories) != 1 {
		t.Fatal("history not stored")
	}

	err = svc.HandleDelivery(context.Background(), amqp.Delivery{Type: domain.EventEmployeeUpdated, Body: []byte("{")})
	if !broker.IsPermanent(err) {
		t.Fatalf("broken body must be dropped, got %v", err)
	}
}

func TestFindHistoriesIsAdminOnly(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.OnEmployeeUpdated(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}

	mux := rpc.NewMux("key")
	svc.RegisterRoutes(mux)
	client := rpc.NewLocalClient(mux, "key")

	employeeID := int64(5)
	self := &domain.AuthorizedUser{UserID: 20, Role: domain.RoleKeyEmployee, EmployeeID: &employeeID}
	err := client.Call(context.Background(), rpc.PatternFindHistories, self, domain.EmployeeIDRequest{EmployeeID: 5}, nil)
	if domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	var histories []domain.History
	admin := &domain.AuthorizedUser{UserID: 1, Role: domain.RoleKeyAdmin}
	if err := client.Call(context.Background(), rpc.PatternFindHistories, admin, domain.EmployeeIDRequest{EmployeeID: 5}, &histories); err != nil {
		t.Fatalf("admin call: %v", err)
	}
	if len(histories) != 1 || histories[0].NewEmployee.Phone != "0812" {
		t.Fatalf("unexpected histories %+v", histories)
	}
}
