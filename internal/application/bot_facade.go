package application

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/infra/logging"
	"telegram-x-monitor/internal/usecase"

	"github.com/rs/zerolog"
)

// BotFacade composes usecases into high-level bot commands.
// Keep the facade methods returning strings so the Telegram adapter just forwards them to the chat.
type BotFacade struct {
	UserUC    usecase.UserUseCase
	AccountUC usecase.AccountUseCase
	Monitor   usecase.MonitorUseCase

	notifier Notifier
	tr       Translator
	log      *zerolog.Logger
}

func NewBotFacade(
	userUC usecase.UserUseCase,
	accountUC usecase.AccountUseCase,
	monitor usecase.MonitorUseCase,
	notifier Notifier,
	tr Translator,
	logger *zerolog.Logger,
) *BotFacade {
	l := logger.With().Str("component", "bot_facade").Logger()
	return &BotFacade{
		UserUC:    userUC,
		AccountUC: accountUC,
		Monitor:   monitor,
		notifier:  notifier,
		tr:        tr,
		log:       &l,
	}
}

// HandleStart registers or fetches the user and returns the welcome text.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64, username string) (string, *model.User, error) {
	u, err := b.UserUC.RegisterOrFetch(ctx, tgID, username)
	if err != nil {
		return b.tr.T("error_generic"), nil, err
	}
	switch {
	case u.Role == model.RolePending:
		return b.tr.T("welcome_new"), u, nil
	case u.IsAdmin():
		return b.tr.T("welcome_admin", string(u.Role)), u, nil
	default:
		return b.tr.T("welcome_back"), u, nil
	}
}

// HandleRequestAccess files (or replaces) the caller's access request and tells the admins.
func (b *BotFacade) HandleRequestAccess(ctx context.Context, tgID int64, username string) (string, error) {
	if _, err := b.UserUC.RegisterOrFetch(ctx, tgID, username); err != nil {
		return b.tr.T("error_generic"), err
	}
	if _, err := b.UserUC.RequestAccess(ctx, tgID); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return b.tr.T("access_already_granted"), nil
		}
		return b.tr.T("error_generic"), err
	}

	admins, err := b.UserUC.AdminChatIDs(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to load admins for access request notice")
	} else {
		b.notifier.Notify(ctx, admins, b.tr.T("access_request_admin_notice", tgID, username, tgID, tgID))
	}
	return b.tr.T("access_requested"), nil
}

func (b *BotFacade) HandleApprove(ctx context.Context, actorID int64, args string) (string, error) {
	target, ok := parseTelegramID(args)
	if !ok {
		return b.tr.T("usage_approve"), nil
	}
	if _, err := b.UserUC.Approve(ctx, actorID, target); err != nil {
		return b.userError(target, err)
	}
	b.notifier.Notify(ctx, []int64{target}, b.tr.T("access_approved_notice"))
	b.log.Info().Int64("tg_id", target).Int64("by", actorID).Msg("user approved")
	return b.tr.T("user_approved", target), nil
}

func (b *BotFacade) HandleDeny(ctx context.Context, actorID int64, args string) (string, error) {
	target, ok := parseTelegramID(args)
	if !ok {
		return b.tr.T("usage_deny"), nil
	}
	if err := b.UserUC.Deny(ctx, actorID, target); err != nil {
		return b.userError(target, err)
	}
	b.notifier.Notify(ctx, []int64{target}, b.tr.T("access_denied_notice"))
	b.log.Info().Int64("tg_id", target).Int64("by", actorID).Msg("user denied")
	return b.tr.T("user_denied", target), nil
}

func (b *BotFacade) HandlePromote(ctx context.Context, args string) (string, error) {
	target, ok := parseTelegramID(args)
	if !ok {
		return b.tr.T("usage_promote"), nil
	}
	if _, err := b.UserUC.Promote(ctx, target); err != nil {
		return b.userError(target, err)
	}
	b.notifier.Notify(ctx, []int64{target}, b.tr.T("promoted_notice"))
	return b.tr.T("user_promoted", target), nil
}

func (b *BotFacade) HandleRevoke(ctx context.Context, args string) (string, error) {
	target, ok := parseTelegramID(args)
	if !ok {
		return b.tr.T("usage_revoke"), nil
	}
	if _, err := b.UserUC.Revoke(ctx, target); err != nil {
		return b.userError(target, err)
	}
	b.notifier.Notify(ctx, []int64{target}, b.tr.T("revoked_notice"))
	return b.tr.T("user_revoked", target), nil
}

// userError maps expected use case failures to replies; anything else is returned to the caller.
func (b *BotFacade) userError(target int64, err error) (string, error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return b.tr.T("user_not_found"), nil
	case errors.Is(err, domain.ErrNoPendingRequest):
		return b.tr.T("user_no_pending_request", target), nil
	case errors.Is(err, domain.ErrForbidden):
		return b.tr.T("user_role_forbidden"), nil
	}
	return b.tr.T("error_generic"), err
}

func (b *BotFacade) HandleAddAccount(ctx context.Context, actorID int64, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return b.tr.T("usage_add_account"), nil
	}
	username := model.NormalizeUsername(fields[0])
	if username == "" {
		return b.tr.T("usage_add_account"), nil
	}

	acc, err := b.AccountUC.Add(ctx, actorID, username)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return b.tr.T("account_not_exists", username), nil
	case errors.Is(err, domain.ErrAlreadyExists):
		return b.tr.T("account_duplicate", username), nil
	case errors.Is(err, domain.ErrNoCredentials),
		errors.Is(err, domain.ErrCredentialUnauthorized),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrUpstreamUnavailable):
		b.log.Warn().Err(err).Str("account", username).Msg("could not resolve account")
		return b.tr.T("x_unavailable"), nil
	default:
		return b.tr.T("error_generic"), err
	}

	if b.Monitor.IsRunning() {
		return b.tr.T("account_added_monitoring", acc.Username), nil
	}
	return b.tr.T("account_added", acc.Username), nil
}

func (b *BotFacade) HandleRemoveAccount(ctx context.Context, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return b.tr.T("usage_remove_account"), nil
	}
	username := model.NormalizeUsername(fields[0])
	if err := b.AccountUC.Remove(ctx, username); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return b.tr.T("account_not_monitored", username), nil
		}
		return b.tr.T("error_generic"), err
	}
	return b.tr.T("account_removed", username), nil
}

func (b *BotFacade) HandleListAccounts(ctx context.Context) (string, error) {
	accs, err := b.AccountUC.List(ctx)
	if err != nil {
		return b.tr.T("error_generic"), err
	}
	if len(accs) == 0 {
		return b.tr.T("accounts_empty"), nil
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("accounts_header"))
	for _, a := range accs {
		sb.WriteString("\n\n")
		sb.WriteString(b.tr.T("accounts_item", a.Username, a.XUserID, a.AddedBy))
	}
	return sb.String(), nil
}

// HandleStartMonitoring launches the loop for every stored account.
func (b *BotFacade) HandleStartMonitoring(ctx context.Context) (string, error) {
	defer logging.TraceDuration(b.log, "BotFacade.HandleStartMonitoring")()

	keys, err := b.AccountUC.Keys(ctx)
	if err != nil {
		return b.tr.T("error_generic"), err
	}
	if len(keys) == 0 {
		return b.tr.T("monitor_no_accounts"), nil
	}
	if !b.Monitor.Start(ctx, keys) {
		return b.tr.T("monitor_already_running"), nil
	}
	return b.tr.T("monitor_started", len(keys)), nil
}

func (b *BotFacade) HandleStopMonitoring(ctx context.Context) (string, error) {
	if !b.Monitor.Stop(ctx) {
		return b.tr.T("monitor_not_running"), nil
	}
	return b.tr.T("monitor_stopped"), nil
}

// HandleStatus shows the caller's role and, for admins, the monitoring state.
func (b *BotFacade) HandleStatus(ctx context.Context, tgID int64) (string, error) {
	u, err := b.UserUC.GetByTelegramID(ctx, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return b.tr.T("error_not_registered"), nil
		}
		return b.tr.T("error_generic"), err
	}
	text := b.tr.T("status_role", string(u.Role))
	if u.IsAdmin() {
		text += "\n\n" + b.MonitorReport()
	}
	return text, nil
}

// MonitorReport renders the loop status; also used by the scheduled report.
func (b *BotFacade) MonitorReport() string {
	st := b.Monitor.Status()
	lines := make([]string, 0, 4+len(st.Credentials))
	switch {
	case st.Paused && st.PausedUntil != nil:
		lines = append(lines, b.tr.T("status_monitor_paused", st.PausedUntil.Format("15:04:05 MST")))
	case st.Running:
		lines = append(lines, b.tr.T("status_monitor_running"))
	default:
		lines = append(lines, b.tr.T("status_monitor_stopped"))
	}
	lines = append(lines, b.tr.T("status_accounts", len(st.Entities)))
	if st.PollEvery > 0 {
		lines = append(lines, b.tr.T("status_poll", int(st.PollEvery.Seconds())))
	}
	for _, c := range st.Credentials {
		var state string
		switch {
		case !c.Authorized:
			state = b.tr.T("status_credential_revoked")
		case c.Remaining != nil:
			state = b.tr.T("status_credential_remaining", *c.Remaining)
		default:
			state = b.tr.T("status_credential_ok")
		}
		lines = append(lines, b.tr.T("status_credential", strings.ToUpper(string(c.ID)), state))
	}
	return strings.Join(lines, "\n")
}

// HandleHelp lists the commands available to the caller's role.
func (b *BotFacade) HandleHelp(ctx context.Context, tgID int64) string {
	text := b.tr.T("help_base")
	u, err := b.UserUC.GetByTelegramID(ctx, tgID)
	if err != nil {
		return text
	}
	if u.IsAdmin() {
		text += b.tr.T("help_admin")
	}
	if u.IsSuperAdmin() {
		text += b.tr.T("help_super_admin")
	}
	return text
}

func (b *BotFacade) HandleUnknown() string {
	return b.tr.T("error_unknown_command")
}

// AutoStart starts monitoring at boot when there are stored accounts.
func (b *BotFacade) AutoStart(ctx context.Context) (bool, error) {
	keys, err := b.AccountUC.Keys(ctx)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}
	return b.Monitor.Start(ctx, keys), nil
}

func parseTelegramID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
