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

var _ repository.AccountRepository = (*PostgresAccountRepo)(nil)

type PostgresAccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{pool: pool}
}

const accountColumns = `id, username, x_user_id, added_by, webhook_id, created_at`

func (r *PostgresAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.MonitoredAccount) error {
	const q = `
INSERT INTO monitored_accounts (id, username, x_user_id, added_by, webhook_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, q, a.ID, a.Username, a.XUserID, a.AddedBy, a.WebhookID, a.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save account @%s: %w", a.Username, err)
	}
	return nil
}

func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.MonitoredAccount, error) {
	return r.findOne(ctx, tx, `SELECT `+accountColumns+` FROM monitored_accounts WHERE lower(username)=lower($1);`, username)
}

func (r *PostgresAccountRepo) FindByXUserID(ctx context.Context, tx repository.Tx, xUserID string) (*model.MonitoredAccount, error) {
	return r.findOne(ctx, tx, `SELECT `+accountColumns+` FROM monitored_accounts WHERE x_user_id=$1 ORDER BY created_at LIMIT 1;`, xUserID)
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.MonitoredAccount, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	a, err := scanAccount(exec.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (r *PostgresAccountRepo) List(ctx context.Context, tx repository.Tx) ([]*model.MonitoredAccount, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, `SELECT `+accountColumns+` FROM monitored_accounts ORDER BY created_at, id;`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.MonitoredAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresAccountRepo) Delete(ctx context.Context, tx repository.Tx, username string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `DELETE FROM monitored_accounts WHERE lower(username)=lower($1);`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.MonitoredAccount, error) {
	var a model.MonitoredAccount
	if err := row.Scan(&a.ID, &a.Username, &a.XUserID, &a.AddedBy, &a.WebhookID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
