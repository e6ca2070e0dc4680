package repository

import (
	"context"
	"database/sql"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

const userColumns = `
	u.id, u.email, u.password_hash, u.created_by, u.latest_refresh_token_hash, u.created_at, u.updated_at,
	r.id, r.name, r.key
`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	user := &domain.User{}
	dst := []any{
		&user.ID, &user.Email, &user.PasswordHash, &user.CreatedBy, &user.LatestRefreshTokenHash, &user.CreatedAt, &user.UpdatedAt,
		&user.Role.ID, &user.Role.Name, &user.Role.Key,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanUser(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.email = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanUser(r.dbpool.QueryRowContext(ctx, query, email))
}

func (r *Repository) CheckEmailIfExists(ctx context.Context, email string) (bool, error) {
	isExists := false

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)
	`
	if err := r.dbpool.QueryRowContext(ctx, query, email).Scan(&isExists); err != nil {
		return false, err
	}

	return isExists, nil
}

// CreateUser inserts user with the role identified by user.Role.Key. A taken email
// surfaces as a *pgconn.PgError on users_email_key.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		WITH inserted AS (
			INSERT INTO users (email, password_hash, role_id, created_by)
			SELECT $1, $2, r.id, $3 FROM roles r WHERE r.key = $4
			RETURNING id, role_id, created_at, updated_at
		)
		SELECT i.id, i.created_at, i.updated_at, r.id, r.name
		FROM inserted i JOIN roles r ON r.id = i.role_id
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{user.Email, user.PasswordHash, user.CreatedBy, user.Role.Key}
	dst := []any{&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Role.ID, &user.Role.Name}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...)
}

func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $1, updated_at = now()
		WHERE id = $2
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return expectOneRow(r.dbpool.ExecContext(ctx, query, passwordHash, id))
}

// SetRefreshTokenHash stores the hash of the latest refresh token, nil logs the user out.
func (r *Repository) SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error {
	query := `
		UPDATE users SET latest_refresh_token_hash = $1
		WHERE id = $2
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, query, hash, id)
	return err
}

// DeleteEmployeeUser removes an employee account that never logged in.
func (r *Repository) DeleteEmployeeUser(ctx context.Context, id int64) error {
	query := `
		DELETE FROM users u
		USING roles r
		WHERE u.id = $1
			AND r.id = u.role_id
			AND r.key = $2
			AND u.latest_refresh_token_hash IS NULL
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return expectOneRow(r.dbpool.ExecContext(ctx, query, id, domain.RoleKeyEmployee))
}

func expectOneRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
