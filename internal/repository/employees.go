package repository

import (
	"context"
	"database/sql"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

const employeeColumns = `e.id, e.name, e.email, e.phone, e.job_title, e.photo_url, e.user_id, e.created_at, e.updated_at`

func employeeDst(e *domain.Employee) []any {
	return []any{&e.ID, &e.Name, &e.Email, &e.Phone, &e.JobTitle, &e.PhotoURL, &e.UserID, &e.CreatedAt, &e.UpdatedAt}
}

func (r *Repository) GetAllEmployees(ctx context.Context) ([]*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees e ORDER BY e.id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]*domain.Employee, 0)
	for rows.Next() {
		e := &domain.Employee{}
		if err := rows.Scan(employeeDst(e)...); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

func (r *Repository) GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees e WHERE e.id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	e := &domain.Employee{}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(employeeDst(e)...); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Repository) GetEmployeeByUserID(ctx context.Context, userID int64) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees e WHERE e.user_id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	e := &domain.Employee{}
	if err := r.dbpool.QueryRowContext(ctx, query, userID).Scan(employeeDst(e)...); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEmployee inserts e and the messages built for it in one transaction.
func (r *Repository) CreateEmployee(ctx context.Context, e *domain.Employee, messages func(*domain.Employee) ([]*domain.OutboxMessage, error)) error {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO employees (name, email, phone, job_title, photo_url, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	args := []any{e.Name, e.Email, e.Phone, e.JobTitle, e.PhotoURL, e.UserID}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}

	if messages != nil {
		msgs, err := messages(e)
		if err != nil {
			return err
		}
		if err := insertOutboxMessages(ctx, tx, msgs); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateEmployee locks the row and lets change mutate it in place. The row is written back
// together with the messages change returns, all in one transaction. A missing row yields
// sql.ErrNoRows.
func (r *Repository) UpdateEmployee(ctx context.Context, id int64, change func(e *domain.Employee) ([]*domain.OutboxMessage, error)) (*domain.Employee, error) {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	e := &domain.Employee{}
	query := `SELECT ` + employeeColumns + ` FROM employees e WHERE e.id = $1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, query, id).Scan(employeeDst(e)...); err != nil {
		return nil, err
	}

	msgs, err := change(e)
	if err != nil {
		return nil, err
	}

	query = `
		UPDATE employees
		SET name = $1, email = $2, phone = $3, job_title = $4, photo_url = $5, updated_at = $6
		WHERE id = $7
	`
	args := []any{e.Name, e.Email, e.Phone, e.JobTitle, e.PhotoURL, e.UpdatedAt, e.ID}
	if err := expectOneRow(tx.ExecContext(ctx, query, args...)); err != nil {
		return nil, err
	}

	if err := insertOutboxMessages(ctx, tx, msgs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return e, nil
}

func insertOutboxMessages(ctx context.Context, tx *sql.Tx, msgs []*domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, exchange, routing_key, type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	for _, msg := range msgs {
		args := []any{msg.ID, msg.Exchange, msg.RoutingKey, msg.Type, []byte(msg.Payload)}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&msg.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}
