package usecase

import (
	"context"
	"errors"
	"fmt"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
	"telegram-x-monitor/internal/infra/logging"
	"telegram-x-monitor/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var (
	_ UserUseCase         = (*userUC)(nil)
	_ DestinationProvider = (*userUC)(nil)
)

// UserUseCase covers registration, roles and access requests.
type UserUseCase interface {
	RegisterOrFetch(ctx context.Context, tgID int64, username string) (*model.User, error)
	GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	EnsureSuperAdmin(ctx context.Context, tgID int64) error
	RequestAccess(ctx context.Context, tgID int64) (*model.AccessRequest, error)
	Approve(ctx context.Context, actorID, tgID int64) (*model.User, error)
	Deny(ctx context.Context, actorID, tgID int64) error
	Promote(ctx context.Context, tgID int64) (*model.User, error)
	Revoke(ctx context.Context, tgID int64) (*model.User, error)
	AdminChatIDs(ctx context.Context) ([]int64, error)
	SuperAdminChatIDs(ctx context.Context) ([]int64, error)
}

type userUC struct {
	users    repository.UserRepository
	requests repository.AccessRequestRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, requests repository.AccessRequestRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users:    users,
		requests: requests,
		tm:       tm,
		log:      logger,
	}
}

// RegisterOrFetch returns the stored user, creating a pending one on first contact.
func (u *userUC) RegisterOrFetch(ctx context.Context, tgID int64, username string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var user *model.User
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if usr != nil {
			if username != "" && usr.Username != username {
				usr.Username = username
				if err := u.users.Save(ctx, tx, usr); err != nil {
					return err
				}
			}
			user = usr
			return nil
		}

		nu, err := model.NewUser("", tgID, username, model.RolePending)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		metrics.IncUsersRegistered()
		user = nu
		return nil
	})
	return user, err
}

func (u *userUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetByTelegramID")()
	return u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

// EnsureSuperAdmin creates or upgrades the configured super admin.
func (u *userUC) EnsureSuperAdmin(ctx context.Context, tgID int64) error {
	if tgID <= 0 {
		return nil
	}
	return u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			nu, err := model.NewUser("", tgID, "", model.RoleSuperAdmin)
			if err != nil {
				return err
			}
			u.log.Info().Int64("tg_id", tgID).Msg("seeded super admin")
			return u.users.Save(ctx, tx, nu)
		case err != nil:
			return err
		case usr.Role == model.RoleSuperAdmin:
			return nil
		}
		usr.Role = model.RoleSuperAdmin
		return u.users.Save(ctx, tx, usr)
	})
}

// RequestAccess files a new access request, replacing any pending one.
func (u *userUC) RequestAccess(ctx context.Context, tgID int64) (*model.AccessRequest, error) {
	defer logging.TraceDuration(u.log, "UserUC.RequestAccess")()

	var req *model.AccessRequest
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		if err != nil {
			return err
		}
		if usr.Role != model.RolePending {
			return domain.ErrAlreadyExists
		}
		if err := u.requests.DeletePending(ctx, tx, tgID); err != nil {
			return err
		}
		r, err := model.NewAccessRequest(tgID, usr.Username)
		if err != nil {
			return err
		}
		if err := u.requests.Save(ctx, tx, r); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err == nil {
		metrics.IncAccessRequest("requested")
	}
	return req, err
}

// Approve grants the user role to a pending user and closes their request, if any.
func (u *userUC) Approve(ctx context.Context, actorID, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Approve")()

	var user *model.User
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.pendingUser(ctx, tx, tgID)
		if err != nil {
			return err
		}
		if err := u.resolvePending(ctx, tx, actorID, tgID, model.AccessApproved); err != nil {
			return err
		}
		if err := usr.SetRole(model.RoleUser); err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, usr); err != nil {
			return err
		}
		user = usr
		return nil
	})
	if err == nil {
		metrics.IncAccessRequest("approved")
	}
	return user, err
}

// Deny closes the request of a pending user and forgets the user.
func (u *userUC) Deny(ctx context.Context, actorID, tgID int64) error {
	defer logging.TraceDuration(u.log, "UserUC.Deny")()

	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.pendingUser(ctx, tx, tgID); err != nil {
			return err
		}
		if err := u.resolvePending(ctx, tx, actorID, tgID, model.AccessDenied); err != nil {
			return err
		}
		return u.users.Delete(ctx, tx, tgID)
	})
	if err == nil {
		metrics.IncAccessRequest("denied")
	}
	return err
}

func (u *userUC) pendingUser(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	if usr.Role != model.RolePending {
		return nil, domain.ErrNoPendingRequest
	}
	return usr, nil
}

func (u *userUC) resolvePending(ctx context.Context, tx repository.Tx, actorID, tgID int64, status model.AccessRequestStatus) error {
	req, err := u.requests.FindPending(ctx, tx, tgID)
	if errors.Is(err, domain.ErrNotFound) {
		// users created before requests existed have nothing to close
		return nil
	}
	if err != nil {
		return err
	}
	if err := req.Resolve(status, actorID); err != nil {
		return err
	}
	return u.requests.Save(ctx, tx, req)
}

func (u *userUC) Promote(ctx context.Context, tgID int64) (*model.User, error) {
	return u.changeRole(ctx, tgID, model.RoleAdmin)
}

func (u *userUC) Revoke(ctx context.Context, tgID int64) (*model.User, error) {
	return u.changeRole(ctx, tgID, model.RoleUser)
}

func (u *userUC) changeRole(ctx context.Context, tgID int64, role model.Role) (*model.User, error) {
	var user *model.User
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		if err != nil {
			return err
		}
		if usr.Role == model.RolePending {
			return fmt.Errorf("user %d has no access yet: %w", tgID, domain.ErrForbidden)
		}
		if err := usr.SetRole(role); err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, usr); err != nil {
			return err
		}
		user = usr
		return nil
	})
	return user, err
}

// AdminChatIDs lists admins and super admins; they receive relayed posts.
func (u *userUC) AdminChatIDs(ctx context.Context) ([]int64, error) {
	return u.chatIDs(ctx, model.RoleSuperAdmin, model.RoleAdmin)
}

func (u *userUC) SuperAdminChatIDs(ctx context.Context) ([]int64, error) {
	return u.chatIDs(ctx, model.RoleSuperAdmin)
}

func (u *userUC) chatIDs(ctx context.Context, roles ...model.Role) ([]int64, error) {
	users, err := u.users.ListByRoles(ctx, repository.NoTX, roles...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for _, usr := range users {
		ids = append(ids, usr.TelegramID)
	}
	return ids, nil
}
