package repository

import (
	"context"

	"telegram-x-monitor/internal/domain/model"
)

type AccessRequestRepository interface {
	Save(ctx context.Context, tx Tx, r *model.AccessRequest) error
	FindPending(ctx context.Context, tx Tx, tgID int64) (*model.AccessRequest, error)
	DeletePending(ctx context.Context, tx Tx, tgID int64) error
}
