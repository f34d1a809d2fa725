package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, telegram_id, username, role, registered_at, updated_at`

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, telegram_id, username, role, registered_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=EXCLUDED.username, role=EXCLUDED.role, updated_at=EXCLUDED.updated_at;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, u.ID, u.TelegramID, u.Username, string(u.Role), u.RegisteredAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save user %d: %w", u.TelegramID, err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	row := exec.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id=$1;`, tgID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

func (r *PostgresUserRepo) Delete(ctx context.Context, tx repository.Tx, tgID int64) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `DELETE FROM users WHERE telegram_id=$1;`, tgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) ListByRoles(ctx context.Context, tx repository.Tx, roles ...model.Role) ([]*model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = ANY($1) ORDER BY telegram_id;`, names)
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

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &role, &u.RegisteredAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}
