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

var _ repository.AccessRequestRepository = (*AccessRequestRepo)(nil)

type AccessRequestRepo struct {
	db *sql.DB
}

func (r *AccessRequestRepo) Save(ctx context.Context, tx repository.Tx, req *model.AccessRequest) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	var processedAt sql.NullString
	if req.ProcessedAt != nil {
		processedAt = sql.NullString{String: formatTime(*req.ProcessedAt), Valid: true}
	}
	var processedBy sql.NullInt64
	if req.ProcessedBy != nil {
		processedBy = sql.NullInt64{Int64: *req.ProcessedBy, Valid: true}
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO access_requests (id, telegram_id, username, status, processed_by, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed_by = excluded.processed_by,
			processed_at = excluded.processed_at
	`, req.ID, req.TelegramID, req.Username, string(req.Status), processedBy, formatTime(req.CreatedAt), processedAt)
	if err != nil {
		return fmt.Errorf("save access request %s: %w", req.ID, err)
	}
	return nil
}

func (r *AccessRequestRepo) FindPending(ctx context.Context, tx repository.Tx, tgID int64) (*model.AccessRequest, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	var (
		req         model.AccessRequest
		status      string
		processedBy sql.NullInt64
		created     string
		processedAt sql.NullString
	)
	err = exec.QueryRowContext(ctx, `
		SELECT id, telegram_id, username, status, processed_by, created_at, processed_at
		FROM access_requests
		WHERE telegram_id = ? AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, tgID).
		Scan(&req.ID, &req.TelegramID, &req.Username, &status, &processedBy, &created, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pending request %d: %w", tgID, err)
	}
	req.Status = model.AccessRequestStatus(status)
	if processedBy.Valid {
		by := processedBy.Int64
		req.ProcessedBy = &by
	}
	if req.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		at, err := parseTime(processedAt.String)
		if err != nil {
			return nil, err
		}
		req.ProcessedAt = &at
	}
	return &req, nil
}

func (r *AccessRequestRepo) DeletePending(ctx context.Context, tx repository.Tx, tgID int64) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `DELETE FROM access_requests WHERE telegram_id = ? AND status = 'pending'`, tgID)
	return err
}
