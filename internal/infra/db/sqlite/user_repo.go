package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	db *sql.DB
}

func (r *UserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO users (id, telegram_id, username, role, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			role = excluded.role,
			updated_at = excluded.updated_at
	`, u.ID, u.TelegramID, u.Username, string(u.Role), formatTime(u.RegisteredAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save user %d: %w", u.TelegramID, err)
	}
	return nil
}

func (r *UserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	row := exec.QueryRowContext(ctx, `
		SELECT id, telegram_id, username, role, registered_at, updated_at
		FROM users WHERE telegram_id = ?`, tgID)
	return scanUser(row)
}

func (r *UserRepo) Delete(ctx context.Context, tx repository.Tx, tgID int64) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM users WHERE telegram_id = ?`, tgID)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", tgID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) ListByRoles(ctx context.Context, tx repository.Tx, roles ...model.Role) ([]*model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = string(role)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	rows, err := exec.QueryContext(ctx, `
		SELECT id, telegram_id, username, role, registered_at, updated_at
		FROM users WHERE role IN (`+placeholders+`)
		ORDER BY telegram_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                   model.User
		role                string
		registered, updated string
	)
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &role, &registered, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	if u.RegisteredAt, err = parseTime(registered); err != nil {
		return nil, fmt.Errorf("parse registered_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}
