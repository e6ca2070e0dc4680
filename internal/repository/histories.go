package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// CreateHistory records h unless a row with the same event id exists. It reports
// whether a row was written.
func (r *Repository) CreateHistory(ctx context.Context, h *domain.History) (bool, error) {
	oldEmployee, err := json.Marshal(h.OldEmployee)
	if err != nil {
		return false, err
	}
	newEmployee, err := json.Marshal(h.NewEmployee)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO histories (event_id, employee_id, old_employee, new_employee, created_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id, created_at
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{h.EventID, h.EmployeeID, oldEmployee, newEmployee, h.CreatedBy}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&h.ID, &h.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *Repository) GetHistoriesByEmployeeID(ctx context.Context, employeeID int64) ([]*domain.History, error) {
	query := `
		SELECT id, event_id, employee_id, old_employee, new_employee, created_by, created_at
		FROM histories WHERE employee_id = $1
		ORDER BY created_at DESC
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histories := make([]*domain.History, 0)
	for rows.Next() {
		h := &domain.History{}
		var oldEmployee, newEmployee []byte
		if err := rows.Scan(&h.ID, &h.EventID, &h.EmployeeID, &oldEmployee, &newEmployee, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(oldEmployee, &h.OldEmployee); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(newEmployee, &h.NewEmployee); err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return histories, nil
}
