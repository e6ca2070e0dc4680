package employee

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/auth"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

// memUsers is the account table of the credential service.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
}

func (m *memUsers) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) CheckEmailIfExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (m *memUsers) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUsers) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return nil
}

func (m *memUsers) SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LatestRefreshTokenHash = hash
	}
	return nil
}

func (m *memUsers) DeleteEmployeeUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

type discardMail struct{}

func (discardMail) PublishMail(ctx context.Context, msg domain.MailMessage) error { return nil }

func TestCreatedEmployeeCanSignInAndFindProfile(t *testing.T) {
	const apiKey = "internal-key"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.New(time.UTC).WithNow(func() time.Time { return testNow })

	users := &memUsers{users: make(map[int64]*domain.User)}
	tokens := auth.NewTokens("test-secret", "attendance-manager", 15*time.Minute, 7*24*time.Hour, clk)
	accounts := auth.NewService(users, tokens, discardMail{}, clk, "changeme", logger)

	mux := rpc.NewMux(apiKey)
	client := rpc.NewLocalClient(mux, apiKey)
	store := newMemStore()
	directory := NewService(store, client, &countingNotifier{}, clk, "employee_events", "http://portal.test", logger)
	accounts.RegisterRoutes(mux)
	directory.RegisterRoutes(mux)

	var created domain.Employee
	err := client.Call(context.Background(), rpc.PatternCreateEmployee, admin, domain.CreateEmployeeRequest{
		Name: "Budi", Email: "budi@example.com", Phone: "0813", JobTitle: "Staff",
	}, &created)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	account, err := users.GetUserByEmail(context.Background(), "budi@example.com")
	if err != nil {
		t.Fatalf("account not found by email: %v", err)
	}
	if account.ID != created.UserID || account.Role.Key != domain.RoleKeyEmployee {
		t.Fatalf("account %+v does not belong to employee %+v", account, created)
	}

	// the new employee signs in with the default password
	var pair domain.TokenPair
	if err := client.Call(context.Background(), rpc.PatternLogin, nil, domain.LoginRequest{Email: "budi@example.com", Password: "changeme"}, &pair); err != nil {
		t.Fatalf("login: %v", err)
	}
	var me domain.User
	if err := client.Call(context.Background(), rpc.PatternValidateToken, nil, domain.TokenRequest{Token: pair.AccessToken}, &me); err != nil {
		t.Fatalf("validate: %v", err)
	}

	var profile *domain.Employee
	if err := client.Call(context.Background(), rpc.PatternFindEmployeeByUser, nil, domain.UserIDRequest{UserID: me.ID}, &profile); err != nil {
		t.Fatalf("find by user: %v", err)
	}
	if profile == nil || profile.ID != created.ID || profile.Email != "budi@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}
