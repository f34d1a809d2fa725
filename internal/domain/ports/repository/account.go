package repository

import (
	"context"

	"telegram-x-monitor/internal/domain/model"
)

// -----------------------------
// Monitored accounts
// -----------------------------

type AccountRepository interface {
	// Save inserts a new account; a duplicate username yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, a *model.MonitoredAccount) error
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.MonitoredAccount, error)
	FindByXUserID(ctx context.Context, tx Tx, xUserID string) (*model.MonitoredAccount, error)
	// List returns accounts in registration order.
	List(ctx context.Context, tx Tx) ([]*model.MonitoredAccount, error)
	Delete(ctx context.Context, tx Tx, username string) error
}
