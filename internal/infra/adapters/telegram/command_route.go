package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/infra/logging"
	"telegram-x-monitor/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":          r.handleStartCommand,
		"request_access": r.handleRequestAccessCommand,
		"status":         r.handleStatusCommand,
		"help":           r.handleHelpCommand,

		"approve_user":     r.adminOnly(r.handleApproveCommand),
		"deny_user":        r.adminOnly(r.handleDenyCommand),
		"add_account":      r.adminOnly(r.handleAddAccountCommand),
		"remove_account":   r.adminOnly(r.handleRemoveAccountCommand),
		"list_accounts":    r.adminOnly(r.handleListAccountsCommand),
		"start_monitoring": r.adminOnly(r.handleStartMonitoringCommand),
		"stop_monitoring":  r.adminOnly(r.handleStopMonitoringCommand),

		"promote_admin": r.superAdminOnly(r.handlePromoteCommand),
		"revoke_admin":  r.superAdminOnly(r.handleRevokeCommand),
	}
}

// adminOnly checks the stored role, so promotions apply without a restart.
func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return r.requireRole(next, (*model.User).IsAdmin, "error_unauthorized")
}

func (r *RealTelegramBotAdapter) superAdminOnly(next commandHandler) commandHandler {
	return r.requireRole(next, (*model.User).IsSuperAdmin, "error_super_admin_only")
}

func (r *RealTelegramBotAdapter) requireRole(next commandHandler, allowed func(*model.User) bool, deniedKey string) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		command := "/" + message.Command()
		u, err := r.currentFacade().UserUC.GetByTelegramID(ctx, message.From.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			metrics.IncAdminCommand(command, "unauthorized")
			return r.reply(ctx, message.Chat.ID, r.translator.T("error_not_registered"))
		case err != nil:
			return r.fail(ctx, message, err)
		case !allowed(u):
			metrics.IncAdminCommand(command, "unauthorized")
			return r.reply(ctx, message.Chat.ID, r.translator.T(deniedKey))
		}
		metrics.IncAdminCommand(command, "authorized")
		return next(ctx, message)
	}
}

// respond sends text and logs err; facade replies are already localized on failure.
func (r *RealTelegramBotAdapter) respond(ctx context.Context, message *tgbotapi.Message, text string, err error) error {
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("command failed")
	}
	return r.reply(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) fail(ctx context.Context, message *tgbotapi.Message, err error) error {
	return r.respond(ctx, message, r.translator.T("error_generic"), err)
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, u, err := r.currentFacade().HandleStart(ctx, message.From.ID, message.From.UserName)
	if err != nil {
		return r.fail(ctx, message, err)
	}
	if err := r.SetMenuCommands(ctx, message.Chat.ID, u.IsAdmin()); err != nil {
		// Log the error but don't block the user
		logging.With(ctx, r.log).Warn().Err(err).Msg("failed to set dynamic menu commands")
	}
	return r.reply(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleRequestAccessCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleRequestAccess(ctx, message.From.ID, message.From.UserName)
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleStatusCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleStatus(ctx, message.From.ID)
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.currentFacade().HandleHelp(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleApproveCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleApprove(ctx, message.From.ID, message.CommandArguments())
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleDenyCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleDeny(ctx, message.From.ID, message.CommandArguments())
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handlePromoteCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandlePromote(ctx, message.CommandArguments())
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleRevokeCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleRevoke(ctx, message.CommandArguments())
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleAddAccountCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleAddAccount(ctx, message.From.ID, message.CommandArguments())
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleRemoveAccountCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleRemoveAccount(ctx, message.CommandArguments())
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleListAccountsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleListAccounts(ctx)
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleStartMonitoringCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleStartMonitoring(ctx)
	return r.respond(ctx, message, text, err)
}

func (r *RealTelegramBotAdapter) handleStopMonitoringCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.currentFacade().HandleStopMonitoring(ctx)
	return r.respond(ctx, message, text, err)
}
