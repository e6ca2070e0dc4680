package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgInvalidCredentials = "Invalid Credentials"
	msgInvalidToken       = "Invalid"
)

// dummyHash stands in for the stored hash of an unknown email, so that path spends as
// long in bcrypt as a wrong password does.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("no account uses this password"), bcrypt.DefaultCost)
	return hash
})

type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CheckEmailIfExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error
	DeleteEmployeeUser(ctx context.Context, id int64) error
}

type MailPublisher interface {
	PublishMail(ctx context.Context, msg domain.MailMessage) error
}

type Service struct {
	store           UserStore
	tokens          *Tokens
	mail            MailPublisher
	clock           *clock.Clock
	defaultPassword string
	bcryptCost      int
	compareHash     func(hash, password []byte) error
	logger          *slog.Logger
}

func NewService(store UserStore, tokens *Tokens, mail MailPublisher, clk *clock.Clock, defaultPassword string, logger *slog.Logger) *Service {
	return &Service{
		store:           store,
		tokens:          tokens,
		mail:            mail,
		clock:           clk,
		defaultPassword: defaultPassword,
		bcryptCost:      bcrypt.DefaultCost,
		compareHash:     bcrypt.CompareHashAndPassword,
		logger:          logger,
	}
}

// Login answers every failure with the same message so callers cannot probe accounts.
func (s *Service) Login(ctx context.Context, email, password string, adminOnly bool) (*domain.TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = s.compareHash(dummyHash(), []byte(password))
			return nil, domain.Unauthorized(msgInvalidCredentials)
		}
		return nil, err
	}

	if err := s.compareHash([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, domain.Unauthorized(msgInvalidCredentials)
		}
		return nil, err
	}

	if adminOnly && !user.IsAdmin() {
		return nil, domain.Unauthorized(msgInvalidCredentials)
	}

	accessToken, err := s.tokens.Sign(user.ID, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.Sign(user.ID, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	hash := hashToken(refreshToken)
	if err := s.store.SetRefreshTokenHash(ctx, user.ID, &hash); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshToken issues a new access token for the owner of refreshToken, provided it is
// the latest refresh token handed out to that user.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.tokens.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", domain.Unauthorized(msgInvalidToken)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFound("User not found")
		}
		return "", err
	}

	if user.LatestRefreshTokenHash == nil {
		return "", domain.Unauthorized(msgInvalidToken)
	}
	if subtle.ConstantTimeCompare([]byte(*user.LatestRefreshTokenHash), []byte(hashToken(refreshToken))) != 1 {
		return "", domain.Unauthorized(msgInvalidToken)
	}

	return s.tokens.Sign(user.ID, TokenTypeAccess)
}

func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.store.SetRefreshTokenHash(ctx, userID, nil)
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Verify(token, TokenTypeAccess)
	if err != nil {
		return nil, domain.Unauthorized(msgInvalidCredentials)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(msgInvalidCredentials)
		}
		return nil, err
	}

	return user, nil
}

func (s *Service) UpdatePassword(ctx context.Context, userID int64, req domain.UpdatePasswordRequest) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Unauthorized(msgInvalidCredentials)
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.Unauthorized(msgInvalidCredentials)
		}
		return err
	}

	if req.NewPassword != req.ConfirmNewPassword {
		return domain.BadRequest("Passwords do not match")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, string(passwordHash)); err != nil {
		return err
	}

	// the password is already changed, a lost notification mail must not fail the call
	msg := domain.MailMessage{
		Type: domain.MailTypePasswordChanged,
		To:   user.Email,
		Data: domain.PasswordChangedMailData{
			Email:     user.Email,
			ChangedAt: s.clock.Now().Format("2006-01-02 15:04:05 MST"),
		},
	}
	if err := s.mail.PublishMail(ctx, msg); err != nil {
		s.logger.Warn("password changed mail not queued", slog.Int64("userId", user.ID), slog.String("error", err.Error()))
	}

	return nil
}

// CreateEmployeeUser creates an account with the employee role and the default password.
func (s *Service) CreateEmployeeUser(ctx context.Context, email string, creator *domain.AuthorizedUser) (*domain.User, error) {
	exists, err := s.store.CheckEmailIfExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.BadRequest("Email already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(s.defaultPassword), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         domain.Role{Key: domain.RoleKeyEmployee},
	}
	if creator != nil {
		createdBy := creator.UserID
		user.CreatedBy = &createdBy
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr):
			switch pgErr.ConstraintName {
			case "users_email_key":
				return nil, domain.BadRequest("Email already exists")
			default:
				return nil, err
			}
		default:
			return nil, err
		}
	}

	return user, nil
}

// DeleteEmployeeUser undoes CreateEmployeeUser for an account that was never used.
func (s *Service) DeleteEmployeeUser(ctx context.Context, userID int64) error {
	if err := s.store.DeleteEmployeeUser(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("User not found")
		}
		return err
	}
	return nil
}

// EnsureInitialAdmin creates the first administrator unless the account already exists.
func (s *Service) EnsureInitialAdmin(ctx context.Context, email, password string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return err
	}

	admin := &domain.User{
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         domain.Role{Key: domain.RoleKeyAdmin},
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr):
			switch pgErr.ConstraintName {
			case "users_email_key":
				// already there
				return nil
			default:
				return err
			}
		default:
			return err
		}
	}

	s.logger.Info("initial admin created", slog.String("email", email))
	return nil
}
