package repository

import (
	"context"

	"telegram-x-monitor/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Save inserts or updates by telegram id.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	Delete(ctx context.Context, tx Tx, tgID int64) error
	ListByRoles(ctx context.Context, tx Tx, roles ...model.Role) ([]*model.User, error)
}
