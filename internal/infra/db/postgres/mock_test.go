//go:build !integration

package postgres

import (
	"context"
	"sync/atomic"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
)

// mockInnerUserRepo stands in for the store the cache decorator wraps.
type mockInnerUserRepo struct {
	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	DeleteFunc           func(ctx context.Context, tx repository.Tx, tgID int64) error
	ListByRolesFunc      func(ctx context.Context, tx repository.Tx, roles ...model.Role) ([]*model.User, error)

	reads atomic.Int32
}

var _ repository.UserRepository = (*mockInnerUserRepo)(nil)

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}

func (m *mockInnerUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	m.reads.Add(1)
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}

func (m *mockInnerUserRepo) Delete(ctx context.Context, tx repository.Tx, tgID int64) error {
	return m.DeleteFunc(ctx, tx, tgID)
}

func (m *mockInnerUserRepo) ListByRoles(ctx context.Context, tx repository.Tx, roles ...model.Role) ([]*model.User, error) {
	m.reads.Add(1)
	return m.ListByRolesFunc(ctx, tx, roles...)
}
