package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
)

var _ repository.AccessRequestRepository = (*PostgresAccessRequestRepo)(nil)

type PostgresAccessRequestRepo struct {
	pool *pgxpool.Pool
}

func NewAccessRequestRepo(pool *pgxpool.Pool) *PostgresAccessRequestRepo {
	return &PostgresAccessRequestRepo{pool: pool}
}

func (r *PostgresAccessRequestRepo) Save(ctx context.Context, tx repository.Tx, req *model.AccessRequest) error {
	const q = `
INSERT INTO access_requests (id, telegram_id, username, status, processed_by, created_at, processed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  status=EXCLUDED.status, processed_by=EXCLUDED.processed_by, processed_at=EXCLUDED.processed_at;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, req.ID, req.TelegramID, req.Username, string(req.Status), req.ProcessedBy, req.CreatedAt, req.ProcessedAt)
	return err
}

func (r *PostgresAccessRequestRepo) FindPending(ctx context.Context, tx repository.Tx, tgID int64) (*model.AccessRequest, error) {
	const q = `
SELECT id, telegram_id, username, status, processed_by, created_at, processed_at
  FROM access_requests
 WHERE telegram_id=$1 AND status='pending'
 ORDER BY created_at DESC LIMIT 1;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var (
		req         model.AccessRequest
		status      string
		processedBy *int64
		processedAt *time.Time
	)
	err = exec.QueryRow(ctx, q, tgID).Scan(&req.ID, &req.TelegramID, &req.Username, &status, &processedBy, &req.CreatedAt, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	req.Status = model.AccessRequestStatus(status)
	req.ProcessedBy = processedBy
	req.ProcessedAt = processedAt
	return &req, nil
}

func (r *PostgresAccessRequestRepo) DeletePending(ctx context.Context, tx repository.Tx, tgID int64) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, `DELETE FROM access_requests WHERE telegram_id=$1 AND status='pending';`, tgID)
	return err
}
