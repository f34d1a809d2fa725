package usecase

import (
	"context"
	"errors"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
	"telegram-x-monitor/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AccountUseCase = (*accountUC)(nil)

// AccountUseCase manages the persisted list of monitored X accounts and keeps
// the polling loop's tracked set in sync with it.
type AccountUseCase interface {
	Add(ctx context.Context, actorID int64, username string) (*model.MonitoredAccount, error)
	Remove(ctx context.Context, username string) error
	List(ctx context.Context) ([]*model.MonitoredAccount, error)
	Keys(ctx context.Context) ([]model.EntityKey, error)
	FindByXUserID(ctx context.Context, xUserID string) (*model.MonitoredAccount, error)
}

type accountUC struct {
	accounts repository.AccountRepository
	monitor  MonitorUseCase
	log      *zerolog.Logger
}

func NewAccountUseCase(accounts repository.AccountRepository, monitor MonitorUseCase, logger *zerolog.Logger) *accountUC {
	return &accountUC{accounts: accounts, monitor: monitor, log: logger}
}

// Add resolves username to an X user id, stores it and, when monitoring is running,
// registers it with the loop (seeding its watermark first). domain.ErrNotFound means the X account does not exist.
func (a *accountUC) Add(ctx context.Context, actorID int64, username string) (*model.MonitoredAccount, error) {
	defer logging.TraceDuration(a.log, "AccountUC.Add")()

	username = model.NormalizeUsername(username)
	if username == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := a.accounts.FindByUsername(ctx, repository.NoTX, username); err == nil {
		return nil, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	xUserID, err := a.monitor.ResolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	acc, err := model.NewMonitoredAccount(username, xUserID, actorID)
	if err != nil {
		return nil, err
	}
	if err := a.accounts.Save(ctx, repository.NoTX, acc); err != nil {
		return nil, err
	}
	a.log.Info().Str("account", acc.Username).Str("x_user_id", acc.XUserID).Int64("added_by", actorID).Msg("account added")

	a.monitor.AddEntity(ctx, acc.Key())
	return acc, nil
}

func (a *accountUC) Remove(ctx context.Context, username string) error {
	defer logging.TraceDuration(a.log, "AccountUC.Remove")()

	username = model.NormalizeUsername(username)
	acc, err := a.accounts.FindByUsername(ctx, repository.NoTX, username)
	if err != nil {
		return err
	}
	if err := a.accounts.Delete(ctx, repository.NoTX, acc.Username); err != nil {
		return err
	}
	a.monitor.RemoveEntity(acc.Key())
	a.log.Info().Str("account", acc.Username).Msg("account removed")
	return nil
}

func (a *accountUC) List(ctx context.Context) ([]*model.MonitoredAccount, error) {
	return a.accounts.List(ctx, repository.NoTX)
}

// Keys returns the entity keys of all stored accounts in registration order.
func (a *accountUC) Keys(ctx context.Context) ([]model.EntityKey, error) {
	accs, err := a.accounts.List(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	keys := make([]model.EntityKey, 0, len(accs))
	for _, acc := range accs {
		keys = append(keys, acc.Key())
	}
	return keys, nil
}

func (a *accountUC) FindByXUserID(ctx context.Context, xUserID string) (*model.MonitoredAccount, error) {
	return a.accounts.FindByXUserID(ctx, repository.NoTX, xUserID)
}
