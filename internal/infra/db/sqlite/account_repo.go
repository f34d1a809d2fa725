package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*AccountRepo)(nil)

type AccountRepo struct {
	db *sql.DB
}

const accountColumns = `id, username, x_user_id, added_by, webhook_id, created_at`

func (r *AccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.MonitoredAccount) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO monitored_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.XUserID, a.AddedBy, a.WebhookID, formatTime(a.CreatedAt))
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("save account @%s: %w", a.Username, err)
	}
	return nil
}

func (r *AccountRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.MonitoredAccount, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanAccount(exec.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM monitored_accounts WHERE username = ?`, username))
}

func (r *AccountRepo) FindByXUserID(ctx context.Context, tx repository.Tx, xUserID string) (*model.MonitoredAccount, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanAccount(exec.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM monitored_accounts WHERE x_user_id = ?`, xUserID))
}

func (r *AccountRepo) List(ctx context.Context, tx repository.Tx) ([]*model.MonitoredAccount, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM monitored_accounts ORDER BY created_at, id`)
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

func (r *AccountRepo) Delete(ctx context.Context, tx repository.Tx, username string) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM monitored_accounts WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete account @%s: %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAccount(row rowScanner) (*model.MonitoredAccount, error) {
	var (
		a       model.MonitoredAccount
		created string
	)
	err := row.Scan(&a.ID, &a.Username, &a.XUserID, &a.AddedBy, &a.WebhookID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &a, nil
}
